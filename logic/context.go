package logic

import (
	"context"

	"github.com/dshills/logicflow/action"
)

// Scratch is a per-context key/value store shared exclusively between
// one context's validate and process stages. It is owned by a single
// context and must not be aliased elsewhere; it is not safe for use
// from multiple goroutines at once.
type Scratch struct {
	data map[string]any
}

// newScratch creates an empty scratch store.
func newScratch() *Scratch {
	return &Scratch{data: make(map[string]any)}
}

// Set stores a value.
func (s *Scratch) Set(key string, value any) {
	s.data[key] = value
}

// Get retrieves a value.
func (s *Scratch) Get(key string) (any, bool) {
	v, ok := s.data[key]
	return v, ok
}

// GetString retrieves a string value, or "" when absent or mistyped.
func (s *Scratch) GetString(key string) string {
	if v, ok := s.data[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// GetInt retrieves an int value, or 0 when absent or mistyped.
func (s *Scratch) GetInt(key string) int {
	if v, ok := s.data[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// GetBool retrieves a bool value, or false when absent or mistyped.
func (s *Scratch) GetBool(key string) bool {
	if v, ok := s.data[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// Len returns the number of stored keys.
func (s *Scratch) Len() int {
	return len(s.data)
}

// forceMode overrides the discriminant-based routing rule for a single
// allow/reject call.
type forceMode int

const (
	forceNone forceMode = iota
	forceForward
	forceDispatch
)

// DecisionOption adjusts routing for a single allow/reject call.
type DecisionOption func(*decision)

// ForceForward forwards the decision's action to the next pipeline
// stage even when its discriminant differs from the inbound action.
func ForceForward() DecisionOption {
	return func(d *decision) { d.force = forceForward }
}

// ForceDispatch redispatches the decision's action from the top of the
// pipeline even when its discriminant matches the inbound action.
func ForceDispatch() DecisionOption {
	return func(d *decision) { d.force = forceDispatch }
}

// decision is the resolved outcome of a validate stage.
type decision struct {
	allow bool
	act   action.Action
	force forceMode
}

// ValidateContext is handed to a unit's validate/transform stage. The
// stage must invoke exactly one of Allow, Next, or Reject; a second
// invocation is a protocol violation surfaced on the monitor stream.
type ValidateContext struct {
	ex *execution
}

// Action returns the inbound action under validation.
func (vc *ValidateContext) Action() action.Action {
	return vc.ex.inbound
}

// State returns a snapshot of host state via the pipeline's state
// function, or nil when none is configured.
func (vc *ValidateContext) State() any {
	return vc.ex.pipe.state()
}

// Deps returns the dependencies injected at pipeline construction.
func (vc *ValidateContext) Deps() any {
	return vc.ex.pipe.deps
}

// Scratch returns the context's private key/value store. The same store
// is handed to the process stage.
func (vc *ValidateContext) Scratch() *Scratch {
	return vc.ex.scratch
}

// Ctx returns the context's cancellation signal. It is done once the
// context is cancelled.
func (vc *ValidateContext) Ctx() context.Context {
	return vc.ex.ctx
}

// Allow forwards a (or propagates nothing when a is the zero action)
// and gates the process stage open.
func (vc *ValidateContext) Allow(a action.Action, opts ...DecisionOption) {
	vc.ex.decide(true, a, opts)
}

// Next is Allow under its transforming name.
func (vc *ValidateContext) Next(a action.Action, opts ...DecisionOption) {
	vc.ex.decide(true, a, opts)
}

// Reject routes a per the same forward/redispatch rule as Allow but
// always skips the process stage. A zero action propagates nothing.
func (vc *ValidateContext) Reject(a action.Action, opts ...DecisionOption) {
	vc.ex.decide(false, a, opts)
}

// ProcessContext is handed to a unit's process stage.
type ProcessContext struct {
	ex *execution
}

// Action returns the action the process stage operates on: the action
// produced by Allow when one was given, otherwise the inbound action.
func (pc *ProcessContext) Action() action.Action {
	return pc.ex.processAct
}

// State returns a snapshot of host state via the pipeline's state
// function, or nil when none is configured.
func (pc *ProcessContext) State() any {
	return pc.ex.pipe.state()
}

// Deps returns the dependencies injected at pipeline construction.
func (pc *ProcessContext) Deps() any {
	return pc.ex.pipe.deps
}

// Scratch returns the key/value store handed off from the validate
// stage.
func (pc *ProcessContext) Scratch() *Scratch {
	return pc.ex.scratch
}

// Ctx returns the context's cancellation signal. Async work started by
// the process stage should register cleanup against it or poll it.
func (pc *ProcessContext) Ctx() context.Context {
	return pc.ex.ctx
}

// Dispatch hands a value to the dispatch adapter. The accepted shapes
// and the per-mode contract are documented on DispatchMode.
func (pc *ProcessContext) Dispatch(v any) {
	pc.ex.dispatchValue(v)
}

// Done marks the end of a multiple-dispatch context. It is ignored in
// other modes.
func (pc *ProcessContext) Done() {
	pc.ex.dispatchDone()
}
