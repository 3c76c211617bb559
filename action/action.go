// Package action defines the discriminated action record that flows
// through the pipeline.
package action

// UnhandledErrorType is the discriminant synthesized for processing
// failures that no unit configured a fail type for.
const UnhandledErrorType = "UNHANDLED_LOGIC_ERROR"

// Action is an immutable record describing an event. Type is the
// discriminant distinguishing one action shape from another.
type Action struct {
	// Type is the action discriminant. An Action with an empty Type is
	// the zero action and propagates nothing.
	Type string

	// Payload carries the action's data. For error actions this is the
	// underlying error value.
	Payload any

	// Meta carries out-of-band metadata that reducers typically ignore.
	Meta map[string]any

	// Err marks the action as carrying an error payload.
	Err bool
}

// New creates an action with the given discriminant and payload.
func New(typ string, payload any) Action {
	return Action{Type: typ, Payload: payload}
}

// NewError creates an error-flagged action carrying err as its payload.
func NewError(typ string, err error) Action {
	return Action{Type: typ, Payload: err, Err: true}
}

// UnhandledError synthesizes the generic unhandled-logic-error action.
func UnhandledError(err error) Action {
	return NewError(UnhandledErrorType, err)
}

// IsZero reports whether the action carries no discriminant.
func (a Action) IsZero() bool {
	return a.Type == ""
}

// WithMeta returns a copy of the action with the given metadata key set.
// The original action's metadata is not modified.
func (a Action) WithMeta(key string, value any) Action {
	meta := make(map[string]any, len(a.Meta)+1)
	for k, v := range a.Meta {
		meta[k] = v
	}
	meta[key] = value
	a.Meta = meta
	return a
}

// Carrier is implemented by errors that carry their own dispatchable
// action. The dispatch adapter forwards such actions unchanged instead
// of wrapping the error.
type Carrier interface {
	LogicAction() Action
}
