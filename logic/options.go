package logic

import "github.com/dshills/logicflow/action"

// DispatchMode selects how a unit's process stage hands emissions to the
// dispatch adapter. The mode is declared explicitly at registration.
type DispatchMode int

const (
	// DispatchReturn consumes the process function's return value: a
	// direct action, a slice of actions, or a lazy channel of values.
	DispatchReturn DispatchMode = iota

	// DispatchSingle requires exactly one Dispatch call per context. A
	// zero-action call completes the context with no emission.
	DispatchSingle

	// DispatchMultiple allows any number of Dispatch calls; Done marks
	// the end of the context.
	DispatchMultiple
)

// String returns a human-readable mode name.
func (m DispatchMode) String() string {
	switch m {
	case DispatchReturn:
		return "return"
	case DispatchSingle:
		return "single"
	case DispatchMultiple:
		return "multiple"
	default:
		return "unknown"
	}
}

// valid reports whether the mode is one of the declared constants.
func (m DispatchMode) valid() bool {
	return m >= DispatchReturn && m <= DispatchMultiple
}

// ProcessOptions configures emission wrapping for a unit's process
// stage. Resolved once at registration.
type ProcessOptions struct {
	// Mode selects the dispatch contract for the process stage.
	Mode DispatchMode

	// SuccessType wraps discriminant-less emissions as
	// {Type: SuccessType, Payload: value}.
	SuccessType string

	// FailType wraps process failures as {Type: FailType, Payload: err}.
	FailType string

	// WrapSuccess overrides SuccessType with a custom wrapping function.
	WrapSuccess func(v any) action.Action

	// WrapFailure overrides FailType with a custom wrapping function.
	WrapFailure func(err error) action.Action
}
