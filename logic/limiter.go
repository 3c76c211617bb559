package logic

import (
	"sync"
	"time"

	"github.com/dshills/logicflow/action"
)

// admitVerdict is the limiter's decision for one matching action.
type admitVerdict int

const (
	// admitNow admits the action immediately.
	admitNow admitVerdict = iota

	// admitLater holds the action for the debounce window; the last
	// action of the burst re-enters the chain when the timer fires.
	admitLater

	// admitDrop swallows the action (mid-throttle-window arrival).
	admitDrop
)

// gate applies a unit's debounce/throttle admission policy. Debounce is
// trailing edge with timer reset on each arrival; throttle is leading
// edge. When both are set, the debounced survivor is checked against
// the throttle window at fire time.
type gate struct {
	mu       sync.Mutex
	debounce time.Duration
	throttle time.Duration

	// gen invalidates a scheduled fire when a newer arrival resets the
	// window or the pending delivery is cleared.
	gen   uint64
	timer *time.Timer

	// maxSeq is the highest dispatch sequence seen. Concurrent chain
	// walks can reach the gate out of dispatch order; an older arrival
	// is dropped so a debounced burst always delivers its last action.
	maxSeq uint64

	windowStart time.Time
	hasWindow   bool
}

// newGate creates the admission gate for a unit.
func newGate(u *Unit) *gate {
	return &gate{debounce: u.debounce, throttle: u.throttle}
}

// admit gates one matching action in dispatch-sequence order. resume
// re-enters the chain for a debounced delivery; it is invoked from the
// timer goroutine.
func (g *gate) admit(seq uint64, a action.Action, resume func(action.Action)) admitVerdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	if seq <= g.maxSeq {
		return admitDrop
	}
	g.maxSeq = seq

	if g.debounce > 0 {
		g.gen++
		gen := g.gen
		if g.timer != nil {
			g.timer.Stop()
		}
		g.timer = time.AfterFunc(g.debounce, func() {
			g.fire(gen, a, resume)
		})
		return admitLater
	}

	if !g.admitWindowLocked(time.Now()) {
		return admitDrop
	}
	return admitNow
}

// fire delivers a debounced action if no newer arrival superseded it.
func (g *gate) fire(gen uint64, a action.Action, resume func(action.Action)) {
	g.mu.Lock()
	if gen != g.gen {
		g.mu.Unlock()
		return
	}
	g.timer = nil
	ok := g.admitWindowLocked(time.Now())
	g.mu.Unlock()

	if ok {
		resume(a)
	}
}

// admitWindowLocked applies the leading-edge throttle window.
func (g *gate) admitWindowLocked(now time.Time) bool {
	if g.throttle <= 0 {
		return true
	}
	if !g.hasWindow || now.Sub(g.windowStart) >= g.throttle {
		g.windowStart = now
		g.hasWindow = true
		return true
	}
	return false
}

// clearPending drops any debounced delivery still waiting on its timer.
func (g *gate) clearPending() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// clearPendingBefore drops any pending delivery and bars arrivals
// sequenced before seq, so a cancel clears a burst even when some of
// the burst's chain walks have not reached the gate yet.
func (g *gate) clearPendingBefore(seq uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if seq > g.maxSeq {
		g.maxSeq = seq
	}
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// hasPending reports whether a debounced delivery is waiting.
func (g *gate) hasPending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.timer != nil
}
