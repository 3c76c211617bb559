package logic

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/logicflow/action"
	"github.com/dshills/logicflow/monitor"
)

// execState tracks a context through its lifecycle:
// created → validating → {allowed → processing → completed |
// rejected → completed} | cancelled.
type execState int32

const (
	stateCreated execState = iota
	stateValidating
	stateAllowed
	stateProcessing
	stateRejected
	stateCompleted
	stateCancelled
)

// String returns a human-readable state name.
func (s execState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateValidating:
		return "validating"
	case stateAllowed:
		return "allowed"
	case stateProcessing:
		return "processing"
	case stateRejected:
		return "rejected"
	case stateCompleted:
		return "completed"
	case stateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// execution is one context created per (unit, inbound action) match. It
// is exclusively owned by the coordinator until terminal.
type execution struct {
	id      string
	unit    *Unit
	pipe    *Pipeline
	inbound action.Action

	// seq is the dispatch sequence of the chain walk that created the
	// context; the canceller orders supersession and cancel matches by it.
	seq uint64

	// processAct is the action handed to the process stage: the allowed
	// action when the decision produced one, otherwise the inbound action.
	processAct action.Action

	scratch *Scratch

	ctx    context.Context
	cancel context.CancelFunc

	// stop closes at any terminal state and unsubscribes owned sources.
	stop chan struct{}

	state      atomic.Int32
	decided    atomic.Bool
	decisionCh chan decision
	singleUsed atomic.Bool
	terminal   sync.Once
}

// newExecution creates a context for the unit and inbound action.
func newExecution(p *Pipeline, u *Unit, inbound action.Action, seq uint64) *execution {
	ctx, cancel := context.WithCancel(context.Background())
	ex := &execution{
		id:         uuid.NewString(),
		unit:       u,
		pipe:       p,
		inbound:    inbound,
		seq:        seq,
		processAct: inbound,
		scratch:    newScratch(),
		ctx:        ctx,
		cancel:     cancel,
		stop:       make(chan struct{}),
		decisionCh: make(chan decision, 1),
	}
	ex.state.Store(int32(stateCreated))
	return ex
}

// currentState returns the context's state.
func (ex *execution) currentState() execState {
	return execState(ex.state.Load())
}

// setState advances the state machine. Terminal states are never
// overwritten.
func (ex *execution) setState(s execState) {
	for {
		cur := execState(ex.state.Load())
		if cur == stateCompleted || cur == stateCancelled {
			return
		}
		if ex.state.CompareAndSwap(int32(cur), int32(s)) {
			return
		}
	}
}

// isTerminal reports whether the context reached a terminal state.
func (ex *execution) isTerminal() bool {
	s := ex.currentState()
	return s == stateCompleted || s == stateCancelled
}

// decide resolves the validate stage. The first call wins; any further
// call is a protocol violation surfaced on the monitor stream.
func (ex *execution) decide(allow bool, a action.Action, opts []DecisionOption) {
	d := decision{allow: allow, act: a}
	for _, opt := range opts {
		if opt != nil {
			opt(&d)
		}
	}

	if !ex.decided.CompareAndSwap(false, true) {
		ex.anomaly(ErrDecisionAlreadyMade)
		return
	}

	// Buffered; never blocks the decider.
	select {
	case ex.decisionCh <- d:
	default:
	}
}

// anomaly reports a protocol violation without halting the pipeline.
func (ex *execution) anomaly(err error) {
	ex.pipe.mon.Emit(monitor.Event{
		Action: ex.inbound,
		Op:     monitor.OpAnomaly,
		Name:   ex.unit.name,
		Err:    err,
	})
	ex.pipe.log.Warn().
		Str("unit", ex.unit.name).
		Str("context", ex.id).
		Err(err).
		Msg("protocol violation")
}

// finish moves the context to completed. Idempotent with cancelNow;
// whichever fires first is terminal.
func (ex *execution) finish() {
	ex.terminal.Do(func() {
		ex.state.Store(int32(stateCompleted))
		close(ex.stop)
		ex.cancel()
		ex.pipe.cnl.unregister(ex)
		ex.pipe.mon.Emit(monitor.Event{
			Action: ex.inbound,
			Op:     monitor.OpEnd,
			Name:   ex.unit.name,
		})
		ex.pipe.trk.done()
	})
}

// cancelNow fires the cancellation signal, unsubscribes owned sources,
// and moves the context to cancelled. The signal fires at most once.
func (ex *execution) cancelNow() {
	ex.terminal.Do(func() {
		ex.state.Store(int32(stateCancelled))
		ex.cancel()
		close(ex.stop)
		ex.pipe.cnl.unregister(ex)
		ex.pipe.mon.Emit(monitor.Event{
			Action: ex.inbound,
			Op:     monitor.OpCancelled,
			Name:   ex.unit.name,
		})
		ex.pipe.trk.done()
	})
}

// runProcess drives the process stage. Runs on its own goroutine.
func (ex *execution) runProcess() {
	ex.setState(stateProcessing)

	v, err := ex.callProcess(&ProcessContext{ex: ex})
	if err != nil {
		ex.emitFailure(err)
		ex.finish()
		return
	}

	switch ex.unit.opts.Mode {
	case DispatchReturn:
		ex.consume(v, true)
	case DispatchSingle, DispatchMultiple:
		// Completion arrives via Dispatch/Done, possibly from async work
		// the stage left behind.
		if d := ex.pipe.warnAfter; d > 0 {
			go ex.watchCompletion(d)
		}
	}
}

// watchCompletion emits an anomaly when a dispatch-mode stage has not
// completed within the warn window. It never forces completion.
func (ex *execution) watchCompletion(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ex.stop:
	case <-t.C:
		ex.anomaly(ErrProcessStalled)
	}
}

// callProcess invokes the process function with panic recovery.
func (ex *execution) callProcess(pc *ProcessContext) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				Unit:  ex.unit.name,
				Value: r,
				Stack: string(debug.Stack()),
			}
			ex.pipe.log.Error().
				Str("unit", ex.unit.name).
				Interface("panic", r).
				Msg("process stage panicked")
		}
	}()
	return ex.unit.process(pc)
}

// dispatchValue implements ProcessContext.Dispatch under the unit's
// declared mode.
func (ex *execution) dispatchValue(v any) {
	switch ex.unit.opts.Mode {
	case DispatchReturn:
		ex.anomaly(ErrDispatchInReturnMode)

	case DispatchSingle:
		if ex.currentState() == stateCancelled {
			ex.dropCancelled(v)
			return
		}
		if ex.isTerminal() || !ex.singleUsed.CompareAndSwap(false, true) {
			ex.anomaly(ErrDispatchAfterDone)
			return
		}
		ex.consume(v, true)

	case DispatchMultiple:
		if ex.currentState() == stateCancelled {
			ex.dropCancelled(v)
			return
		}
		if ex.isTerminal() {
			ex.anomaly(ErrDispatchAfterDone)
			return
		}
		ex.consume(v, false)
	}
}

// dispatchDone implements ProcessContext.Done.
func (ex *execution) dispatchDone() {
	if ex.unit.opts.Mode != DispatchMultiple {
		return
	}
	if ex.currentState() == stateCancelled {
		return
	}
	ex.finish()
}

// dropCancelled records an emission silently dropped after cancellation.
func (ex *execution) dropCancelled(v any) {
	ev := monitor.Event{
		Action: ex.inbound,
		Op:     monitor.OpDispCancelled,
		Name:   ex.unit.name,
	}
	if a, ok := v.(action.Action); ok {
		ev.DispAction = a
	}
	ex.pipe.mon.Emit(ev)
}
