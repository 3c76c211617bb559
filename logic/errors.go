package logic

import "errors"

// Configuration errors surface synchronously from NewUnit, New, Add,
// Merge, and Replace.
var (
	// ErrNilUnit is returned when a nil unit is registered.
	ErrNilUnit = errors.New("logic: nil unit")

	// ErrDuplicateUnit is returned when the same unit reference is
	// registered twice.
	ErrDuplicateUnit = errors.New("logic: duplicate unit reference")

	// ErrNilPredicate is returned when a unit has no type predicate.
	ErrNilPredicate = errors.New("logic: unit requires a type predicate")

	// ErrValidateAndTransform is returned when a unit declares both a
	// validate and a transform stage.
	ErrValidateAndTransform = errors.New("logic: unit cannot declare both validate and transform")

	// ErrNegativeWindow is returned when a debounce or throttle window
	// is negative.
	ErrNegativeWindow = errors.New("logic: debounce and throttle windows must be non-negative")

	// ErrInvalidMode is returned when a unit declares an unknown
	// dispatch mode.
	ErrInvalidMode = errors.New("logic: invalid dispatch mode")
)

// Pipeline lifecycle errors.
var (
	// ErrNotRunning is returned when dispatching into a stopped pipeline.
	ErrNotRunning = errors.New("logic: pipeline is not running")

	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("logic: pipeline is already running")

	// ErrZeroAction is returned when dispatching an action without a
	// discriminant.
	ErrZeroAction = errors.New("logic: action has no discriminant")
)

// Protocol violations are never returned to callers. They surface as
// anomaly events on the monitor stream; the offending context is frozen
// and the pipeline continues.
var (
	// ErrDecisionAlreadyMade reports a second allow/reject invocation.
	ErrDecisionAlreadyMade = errors.New("logic: allow/reject already invoked for this context")

	// ErrDispatchAfterDone reports a dispatch after the context completed.
	ErrDispatchAfterDone = errors.New("logic: dispatch invoked after completion")

	// ErrDispatchInReturnMode reports a dispatch call from a unit
	// declared in return-value mode.
	ErrDispatchInReturnMode = errors.New("logic: dispatch invoked in return-value mode")

	// ErrUndispatchableValue reports an emission that carries no
	// discriminant while the unit configures no success type.
	ErrUndispatchableValue = errors.New("logic: emission carries no discriminant and no success type is configured")

	// ErrValidateStalled reports a validate stage still undecided past
	// the stall-warning window.
	ErrValidateStalled = errors.New("logic: validate stage undecided past the warn window")

	// ErrProcessStalled reports a dispatch-mode process stage still
	// incomplete past the stall-warning window.
	ErrProcessStalled = errors.New("logic: process stage incomplete past the warn window")
)

// PanicError wraps a panic recovered from a validate or process stage.
type PanicError struct {
	// Unit is the name of the unit whose stage panicked.
	Unit string

	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace captured at recovery.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return "logic: panic in unit " + e.Unit
}
