package logic

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/logicflow/action"
	"github.com/dshills/logicflow/monitor"
)

// task is one chain walk: an action plus the unit position to resume
// from.
type task struct {
	act      action.Action
	startIdx int
	units    []*Unit

	// seq is the task's position in dispatch order. Admission decisions
	// (limiter windows, take-latest supersession, cancel matches) are
	// resolved against it, so dispatch order holds even though chain
	// walks run concurrently.
	seq uint64

	// resumed marks re-entry from a debounce fire; the gate at startIdx
	// has already admitted the action.
	resumed bool

	// fromTop marks an action entering the pipeline: it is matched
	// against cancel predicates and walked from the first unit.
	fromTop bool
}

// Pipeline is the action-processing middleware. It intercepts actions
// bound for the store, drives matching units through their validate and
// process stages, and emits lifecycle events on its monitor stream.
type Pipeline struct {
	registry *Registry

	gmu   sync.RWMutex
	gates map[*Unit]*gate

	stateFn func() any
	deps    any
	sink    func(action.Action)
	log     zerolog.Logger

	mon *monitor.Stream
	trk *tracker
	cnl *canceller

	intake chan task
	done   chan struct{}
	seqCtr atomic.Uint64

	running atomic.Bool
	wg      sync.WaitGroup

	intakeSize int
	monBuffer  int
	warnAfter  time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStateFunc sets the snapshot-consistent state reader exposed to
// validate and process stages.
func WithStateFunc(fn func() any) Option {
	return func(p *Pipeline) { p.stateFn = fn }
}

// WithDependencies injects dependencies exposed to validate and process
// stages.
func WithDependencies(deps any) Option {
	return func(p *Pipeline) { p.deps = deps }
}

// WithSink sets the chain's forward primitive: actions surviving the
// unit chain are handed to it (typically the store's reducer).
func WithSink(fn func(action.Action)) Option {
	return func(p *Pipeline) { p.sink = fn }
}

// WithLogger sets the pipeline's logger. Defaults to a no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithIntakeBuffer sets the intake queue size.
func WithIntakeBuffer(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.intakeSize = n
		}
	}
}

// WithMonitorBuffer sets the monitor stream's per-subscriber buffer.
func WithMonitorBuffer(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.monBuffer = n
		}
	}
}

// WithStallWarning sets how long a context may stay unresolved (a
// validate stage that never decides, a dispatch-mode process that never
// completes) before an anomaly is emitted on the monitor stream. The
// warning never forces progress. Zero disables it.
func WithStallWarning(d time.Duration) Option {
	return func(p *Pipeline) { p.warnAfter = d }
}

// New creates a pipeline over the given units in registration order.
// Configuration errors (nil units, duplicate references) surface here.
func New(units []*Unit, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		registry:   NewRegistry(),
		gates:      make(map[*Unit]*gate),
		log:        zerolog.Nop(),
		trk:        newTracker(),
		cnl:        newCanceller(),
		intakeSize: 256,
		monBuffer:  256,
		warnAfter:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.mon = monitor.NewStream(monitor.WithBuffer(p.monBuffer))
	p.intake = make(chan task, p.intakeSize)
	p.done = make(chan struct{})

	if err := p.Add(units...); err != nil {
		return nil, err
	}
	return p, nil
}

// Start launches the intake loop.
func (p *Pipeline) Start() error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	p.wg.Add(1)
	go p.runLoop()
	p.log.Debug().Int("units", p.registry.Len()).Msg("pipeline started")
	return nil
}

// Stop shuts the pipeline down. It waits for quiescence until ctx is
// done; on expiry all remaining in-flight contexts are cancelled.
func (p *Pipeline) Stop(ctx context.Context) error {
	if !p.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}
	close(p.done)
	p.clearAllPending()
	p.wg.Wait()
	p.drainIntake()

	var err error
	select {
	case <-p.trk.quiescent():
	case <-ctx.Done():
		p.cnl.cancelAll()
		err = ctx.Err()
	}

	p.drainIntake()
	p.mon.Close()
	p.log.Debug().Err(err).Msg("pipeline stopped")
	return err
}

// IsRunning reports whether the pipeline accepts actions.
func (p *Pipeline) IsRunning() bool {
	return p.running.Load()
}

// Dispatch feeds an inbound action into the pipeline. Admission is FIFO
// in call order. Blocks only when the intake buffer is full.
func (p *Pipeline) Dispatch(a action.Action) error {
	if a.IsZero() {
		return ErrZeroAction
	}
	if !p.running.Load() {
		return ErrNotRunning
	}
	if !p.enqueue(task{act: a, fromTop: true}) {
		return ErrNotRunning
	}
	return nil
}

// injectFromTop re-enters an action from the top of the store's cycle:
// redispatched decisions and process-stage emissions route through here
// so every unit observes them.
func (p *Pipeline) injectFromTop(a action.Action) {
	if a.IsZero() {
		return
	}
	p.enqueue(task{act: a, fromTop: true})
}

// enqueue stamps the task's dispatch sequence, counts it as in-flight,
// and queues it. Returns false if the pipeline shut down instead.
func (p *Pipeline) enqueue(t task) bool {
	t.seq = p.seqCtr.Add(1)
	p.trk.add()
	select {
	case <-p.done:
		p.trk.done()
		return false
	default:
	}
	select {
	case p.intake <- t:
		return true
	case <-p.done:
		p.trk.done()
		return false
	}
}

// runLoop is the single intake loop: it serializes admission order and
// fans each chain walk onto its own goroutine.
func (p *Pipeline) runLoop() {
	defer p.wg.Done()
	for {
		select {
		case t := <-p.intake:
			p.admit(t)
		case <-p.done:
			return
		}
	}
}

// drainIntake drops tasks queued during shutdown so the tracker settles.
func (p *Pipeline) drainIntake() {
	for {
		select {
		case <-p.intake:
			p.trk.done()
		default:
			return
		}
	}
}

// admit processes one task at the admission boundary.
func (p *Pipeline) admit(t task) {
	if t.fromTop {
		p.mon.Emit(monitor.Event{Action: t.act, Op: monitor.OpTop})
		p.cancelMatching(t.act, t.seq)
		t.units = p.registry.Snapshot()
	}
	go p.runChain(t)
}

// cancelMatching fires cancellation for every unit whose cancel
// predicate matches the inbound action: pending debounce deliveries are
// cleared and contexts sequenced before the cancel are cancelled,
// including contexts from units replaced out of the registry. The
// sequence barrier also covers contexts dispatched before the cancel
// that have not registered yet.
func (p *Pipeline) cancelMatching(a action.Action, seq uint64) {
	for _, u := range p.registry.Snapshot() {
		if !u.MatchesCancel(a) {
			continue
		}
		if g := p.gateFor(u); g != nil {
			g.clearPendingBefore(seq)
		}
		p.cnl.cancelUnitBefore(u, seq)
	}
	for _, u := range p.cnl.unitsWithWork() {
		if !p.registry.Contains(u) && u.MatchesCancel(a) {
			p.cnl.cancelUnitBefore(u, seq)
		}
	}
}

// runChain walks the action through matching units in registration
// order. A forward decision hands the (possibly rewritten) action to
// the next matching unit; survivors reach the sink.
func (p *Pipeline) runChain(t task) {
	defer p.trk.done()

	act := t.act
	for i := t.startIdx; i < len(t.units); i++ {
		u := t.units[i]
		if !u.Matches(act) {
			continue
		}

		if u.limited() && !(t.resumed && i == t.startIdx) {
			if g := p.gateFor(u); g != nil {
				idx := i
				units := t.units
				verdict := g.admit(t.seq, act, func(late action.Action) {
					p.resumeChain(late, idx, units)
				})
				if verdict != admitNow {
					return
				}
			}
		}

		next, cont := p.executeUnit(u, act, t.seq)
		if !cont {
			return
		}
		act = next
	}

	p.mon.Emit(monitor.Event{Action: act, Op: monitor.OpBottom})
	if p.sink != nil {
		p.sink(act)
	}
}

// resumeChain re-enters the chain at the gated unit with the last
// action of a debounced burst.
func (p *Pipeline) resumeChain(a action.Action, idx int, units []*Unit) {
	if !p.running.Load() {
		return
	}
	p.enqueue(task{act: a, startIdx: idx, units: units, resumed: true})
}

// executeUnit drives one execution context through validate and hands
// allowed contexts to the process stage. It returns the action the
// chain continues with, or cont=false when propagation stops here.
// Admission against the unit's in-flight set is resolved by sequence,
// so take-latest supersession and cancel matches hold in dispatch
// order regardless of goroutine scheduling.
func (p *Pipeline) executeUnit(u *Unit, inbound action.Action, seq uint64) (action.Action, bool) {
	ex := newExecution(p, u, inbound, seq)
	p.trk.add()
	stale, live := p.cnl.admit(ex, u.latest)
	for _, old := range stale {
		old.cancelNow()
	}
	p.mon.Emit(monitor.Event{Action: inbound, Op: monitor.OpBegin, Name: u.name})
	if !live {
		// Superseded or cancelled by a later-sequenced action before
		// this context began.
		ex.cancelNow()
		return action.Action{}, false
	}
	ex.setState(stateValidating)

	if u.validate == nil {
		// Default unit: forward the action unchanged.
		ex.decided.Store(true)
		return p.applyDecision(ex, decision{allow: true, act: inbound})
	}

	p.callValidate(ex)

	var warn <-chan time.Time
	if p.warnAfter > 0 {
		timer := time.NewTimer(p.warnAfter)
		defer timer.Stop()
		warn = timer.C
	}
	for {
		select {
		case d := <-ex.decisionCh:
			if ex.isTerminal() {
				return action.Action{}, false
			}
			return p.applyDecision(ex, d)
		case <-warn:
			ex.anomaly(ErrValidateStalled)
			warn = nil
		case <-ex.ctx.Done():
			return action.Action{}, false
		}
	}
}

// callValidate invokes the validate stage with panic recovery. A panic
// rejects the context with nothing propagated.
func (p *Pipeline) callValidate(ex *execution) {
	defer func() {
		if r := recover(); r != nil {
			perr := &PanicError{
				Unit:  ex.unit.name,
				Value: r,
				Stack: string(debug.Stack()),
			}
			ex.anomaly(perr)
			if ex.decided.CompareAndSwap(false, true) {
				select {
				case ex.decisionCh <- decision{allow: false}:
				default:
				}
			}
		}
	}()
	ex.unit.validate(&ValidateContext{ex: ex})
}

// applyDecision routes a resolved validate decision: forward when the
// discriminant is unchanged, redispatch from the top when it differs,
// subject to per-call force options. Allowed contexts proceed to the
// process stage; rejected contexts always skip it.
func (p *Pipeline) applyDecision(ex *execution, d decision) (action.Action, bool) {
	u := ex.unit
	inbound := ex.inbound

	var redisp bool
	switch d.force {
	case forceForward:
		redisp = false
	case forceDispatch:
		redisp = true
	default:
		redisp = d.act.Type != inbound.Type
	}
	if d.act.IsZero() {
		redisp = false
	}

	if !d.allow {
		ex.setState(stateRejected)
		switch {
		case d.act.IsZero():
			p.mon.Emit(monitor.Event{Action: inbound, Op: monitor.OpFiltered, Name: u.name})
		case redisp:
			p.mon.Emit(monitor.Event{Action: inbound, Op: monitor.OpNextDisp, Name: u.name, NextAction: d.act})
		default:
			p.mon.Emit(monitor.Event{Action: inbound, Op: monitor.OpNext, Name: u.name, NextAction: d.act})
		}
		ex.finish()

		if redisp {
			p.injectFromTop(d.act)
			return action.Action{}, false
		}
		if d.act.IsZero() {
			return action.Action{}, false
		}
		return d.act, true
	}

	ex.setState(stateAllowed)
	if !d.act.IsZero() {
		ex.processAct = d.act
	}
	shouldProcess := u.process != nil && ex.currentState() != stateCancelled

	op := monitor.OpNext
	if redisp {
		op = monitor.OpNextDisp
	}
	p.mon.Emit(monitor.Event{
		Action:        inbound,
		Op:            op,
		Name:          u.name,
		NextAction:    d.act,
		ShouldProcess: shouldProcess,
	})

	if shouldProcess {
		go ex.runProcess()
	} else {
		ex.finish()
	}

	if redisp {
		p.injectFromTop(d.act)
		return action.Action{}, false
	}
	if d.act.IsZero() {
		return action.Action{}, false
	}
	return d.act, true
}

// Add appends units to the registry; duplicates by reference are
// configuration errors.
func (p *Pipeline) Add(units ...*Unit) error {
	if err := p.registry.Add(units...); err != nil {
		return err
	}
	p.ensureGates(units)
	return nil
}

// Merge appends only units not already present by identity.
func (p *Pipeline) Merge(units ...*Unit) error {
	added, err := p.registry.Merge(units...)
	if err != nil {
		return err
	}
	p.ensureGates(added)
	return nil
}

// Replace resets the registry. In-flight contexts from prior units run
// to completion; their pending debounce deliveries are dropped.
func (p *Pipeline) Replace(units ...*Unit) error {
	removed, err := p.registry.Replace(units...)
	if err != nil {
		return err
	}

	p.gmu.Lock()
	for _, u := range removed {
		if g := p.gates[u]; g != nil {
			g.clearPending()
		}
		delete(p.gates, u)
	}
	p.gmu.Unlock()

	p.ensureGates(units)
	return nil
}

// ensureGates creates admission gates for newly registered units.
func (p *Pipeline) ensureGates(units []*Unit) {
	p.gmu.Lock()
	defer p.gmu.Unlock()
	for _, u := range units {
		if u == nil || !u.limited() {
			continue
		}
		if _, ok := p.gates[u]; !ok {
			p.gates[u] = newGate(u)
		}
	}
}

// gateFor returns the unit's admission gate, or nil when unlimited or
// replaced away.
func (p *Pipeline) gateFor(u *Unit) *gate {
	p.gmu.RLock()
	defer p.gmu.RUnlock()
	return p.gates[u]
}

// clearAllPending drops every pending debounce delivery (teardown).
func (p *Pipeline) clearAllPending() {
	p.gmu.Lock()
	defer p.gmu.Unlock()
	for _, g := range p.gates {
		g.clearPending()
	}
}

// Drain blocks until all in-flight work (including async process work
// admitted before the call) reaches quiescence, or ctx is done.
func (p *Pipeline) Drain(ctx context.Context) error {
	select {
	case <-p.trk.quiescent():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WhenComplete returns a channel closed at quiescence and, when fn is
// non-nil, invokes it at that point.
func (p *Pipeline) WhenComplete(fn func()) <-chan struct{} {
	ch := p.trk.quiescent()
	if fn != nil {
		go func() {
			<-ch
			fn()
		}()
	}
	return ch
}

// Monitor returns the pipeline's lifecycle event stream.
func (p *Pipeline) Monitor() *monitor.Stream {
	return p.mon
}

// InFlight returns the current count of non-terminal work.
func (p *Pipeline) InFlight() int {
	return p.trk.inFlight()
}

// Units returns the registered units in registration order.
func (p *Pipeline) Units() []*Unit {
	return p.registry.Snapshot()
}

// state reads a snapshot of host state.
func (p *Pipeline) state() any {
	if p.stateFn != nil {
		return p.stateFn()
	}
	return nil
}
