package logic

import (
	"time"

	"github.com/dshills/logicflow/action"
	"github.com/dshills/logicflow/match"
)

// ValidateFunc is a unit's validate (or transform) stage. It must invoke
// exactly one of vc.Allow, vc.Next, or vc.Reject, possibly after async
// work. A unit without a validate stage allows the inbound action
// unchanged.
type ValidateFunc func(vc *ValidateContext)

// ProcessFunc is a unit's process stage. Its return value is consumed
// according to the unit's DispatchMode; a returned error is wrapped per
// the unit's failure options and dispatched.
type ProcessFunc func(pc *ProcessContext) (any, error)

// UnitConfig declares a logic unit. Zero-value fields take defaults;
// Type is required.
type UnitConfig struct {
	// Name identifies the unit in monitor events and logs. Defaults to
	// "L(<predicate>)".
	Name string

	// Type binds the unit to matching actions.
	Type match.Predicate

	// CancelType cancels the unit's in-flight contexts (and clears its
	// pending debounce) when a matching action enters the pipeline.
	CancelType match.Predicate

	// Debounce delays admission until no new matching action arrives
	// within the window; only the last action of a burst is admitted.
	Debounce time.Duration

	// Throttle admits at most one action per window, leading edge.
	Throttle time.Duration

	// Latest cancels the unit's still-running context when a new action
	// is admitted, before starting the new one.
	Latest bool

	// Validate gates and optionally rewrites the inbound action.
	Validate ValidateFunc

	// Transform is validate under its transforming name; the decision
	// callback is Next. A unit declares at most one of Validate and
	// Transform.
	Transform ValidateFunc

	// Process performs the unit's asynchronous work.
	Process ProcessFunc

	// ProcessOptions configures the dispatch contract and emission
	// wrapping for Process.
	ProcessOptions ProcessOptions
}

// Unit is a registered logic unit. Units are immutable once created and
// are distinguished by reference for Add/Merge/Replace.
type Unit struct {
	name       string
	typePred   match.Predicate
	cancelPred match.Predicate
	debounce   time.Duration
	throttle   time.Duration
	latest     bool
	validate   ValidateFunc
	process    ProcessFunc
	opts       ProcessOptions
}

// NewUnit validates cfg and creates an immutable unit.
func NewUnit(cfg UnitConfig) (*Unit, error) {
	if cfg.Type == nil {
		return nil, ErrNilPredicate
	}
	if cfg.Validate != nil && cfg.Transform != nil {
		return nil, ErrValidateAndTransform
	}
	if cfg.Debounce < 0 || cfg.Throttle < 0 {
		return nil, ErrNegativeWindow
	}
	if !cfg.ProcessOptions.Mode.valid() {
		return nil, ErrInvalidMode
	}

	name := cfg.Name
	if name == "" {
		name = "L(" + cfg.Type.String() + ")"
	}

	validate := cfg.Validate
	if validate == nil {
		validate = cfg.Transform
	}

	return &Unit{
		name:       name,
		typePred:   cfg.Type,
		cancelPred: cfg.CancelType,
		debounce:   cfg.Debounce,
		throttle:   cfg.Throttle,
		latest:     cfg.Latest,
		validate:   validate,
		process:    cfg.Process,
		opts:       cfg.ProcessOptions,
	}, nil
}

// MustUnit creates a unit and panics on configuration errors. Intended
// for static registration tables.
func MustUnit(cfg UnitConfig) *Unit {
	u, err := NewUnit(cfg)
	if err != nil {
		panic(err)
	}
	return u
}

// Name returns the unit's name.
func (u *Unit) Name() string {
	return u.name
}

// Matches reports whether the unit intercepts the action.
func (u *Unit) Matches(a action.Action) bool {
	return u.typePred.Matches(a)
}

// MatchesCancel reports whether the action triggers cancellation for
// this unit.
func (u *Unit) MatchesCancel(a action.Action) bool {
	return u.cancelPred != nil && u.cancelPred.Matches(a)
}

// Latest reports whether the unit runs under take-latest supersession.
func (u *Unit) Latest() bool {
	return u.latest
}

// Options returns the unit's resolved process options.
func (u *Unit) Options() ProcessOptions {
	return u.opts
}

// limited reports whether the unit has an admission window configured.
func (u *Unit) limited() bool {
	return u.debounce > 0 || u.throttle > 0
}
