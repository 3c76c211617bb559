package logic

import (
	"github.com/dshills/logicflow/action"
	"github.com/dshills/logicflow/monitor"
)

// The dispatch adapter normalizes the varied shapes a process stage may
// hand over - direct values, slices, or lazy channels - into a uniform
// emission sequence back to the store. Channel sources stay subscribed
// until natural completion, an explicit completion signal, or
// cancellation, whichever comes first.

// consume normalizes one emission source. When finishAfter is set the
// context completes once the source drains.
func (ex *execution) consume(v any, finishAfter bool) {
	switch src := v.(type) {
	case nil:
		if finishAfter {
			ex.finish()
		}
	case action.Action:
		ex.emitValue(src)
		if finishAfter {
			ex.finish()
		}
	case *action.Action:
		if src != nil {
			ex.emitValue(*src)
		}
		if finishAfter {
			ex.finish()
		}
	case []action.Action:
		for _, a := range src {
			ex.emitValue(a)
		}
		if finishAfter {
			ex.finish()
		}
	case []any:
		for _, item := range src {
			ex.emitValue(item)
		}
		if finishAfter {
			ex.finish()
		}
	case error:
		ex.emitFailure(src)
		if finishAfter {
			ex.finish()
		}
	case <-chan action.Action:
		go ex.drainActions(src, finishAfter)
	case chan action.Action:
		go ex.drainActions(src, finishAfter)
	case <-chan any:
		go ex.drainValues(src, finishAfter)
	case chan any:
		go ex.drainValues(src, finishAfter)
	default:
		ex.emitValue(src)
		if finishAfter {
			ex.finish()
		}
	}
}

// drainActions subscribes to a lazy action sequence.
func (ex *execution) drainActions(ch <-chan action.Action, finishAfter bool) {
	for {
		select {
		case a, ok := <-ch:
			if !ok {
				if finishAfter {
					ex.finish()
				}
				return
			}
			ex.emitValue(a)
		case <-ex.stop:
			return
		}
	}
}

// drainValues subscribes to a lazy value sequence.
func (ex *execution) drainValues(ch <-chan any, finishAfter bool) {
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				if finishAfter {
					ex.finish()
				}
				return
			}
			ex.emitValue(v)
		case <-ex.stop:
			return
		}
	}
}

// emitValue wraps a single emission and dispatches it. A value already
// carrying a discriminant is dispatched unchanged; otherwise the unit's
// success wrapping applies. Errors route through emitFailure.
func (ex *execution) emitValue(v any) {
	if v == nil {
		return
	}
	if err, ok := v.(error); ok {
		ex.emitFailure(err)
		return
	}

	var a action.Action
	if av, ok := v.(action.Action); ok {
		if av.IsZero() {
			return
		}
		a = av
	} else {
		opts := ex.unit.opts
		switch {
		case opts.WrapSuccess != nil:
			a = opts.WrapSuccess(v)
		case opts.SuccessType != "":
			a = action.New(opts.SuccessType, v)
		default:
			ex.anomaly(ErrUndispatchableValue)
			return
		}
	}
	ex.dispatchOut(a)
}

// emitFailure wraps a process failure. FailType wins; otherwise an
// error carrying its own action is dispatched unchanged; otherwise the
// generic unhandled-logic-error action is synthesized.
func (ex *execution) emitFailure(err error) {
	if err == nil {
		return
	}

	opts := ex.unit.opts
	var a action.Action
	switch {
	case opts.WrapFailure != nil:
		a = opts.WrapFailure(err)
	case opts.FailType != "":
		a = action.NewError(opts.FailType, err)
	default:
		if c, ok := err.(action.Carrier); ok {
			a = c.LogicAction()
		} else {
			a = action.UnhandledError(err)
		}
	}
	ex.dispatchOut(a)
}

// dispatchOut routes one wrapped emission back into the store's cycle.
// Emissions from cancelled contexts are dropped.
func (ex *execution) dispatchOut(a action.Action) {
	if a.IsZero() {
		return
	}
	if ex.currentState() == stateCancelled {
		ex.pipe.mon.Emit(monitor.Event{
			Action:     ex.inbound,
			Op:         monitor.OpDispCancelled,
			Name:       ex.unit.name,
			DispAction: a,
		})
		return
	}
	ex.pipe.mon.Emit(monitor.Event{
		Action:     ex.inbound,
		Op:         monitor.OpDispatch,
		Name:       ex.unit.name,
		DispAction: a,
	})
	ex.pipe.injectFromTop(a)
}
