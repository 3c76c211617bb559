package logic

import (
	"sync"
	"testing"
	"time"

	"github.com/dshills/logicflow/action"
	"github.com/dshills/logicflow/match"
)

// resumeLog records debounced deliveries from the gate's timer goroutine.
type resumeLog struct {
	mu   sync.Mutex
	acts []action.Action
}

func (r *resumeLog) record(a action.Action) {
	r.mu.Lock()
	r.acts = append(r.acts, a)
	r.mu.Unlock()
}

func (r *resumeLog) snapshot() []action.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]action.Action, len(r.acts))
	copy(out, r.acts)
	return out
}

func TestGateDebounceDeliversLastOfBurst(t *testing.T) {
	u := MustUnit(UnitConfig{Type: match.Exact("A"), Debounce: 40 * time.Millisecond})
	g := newGate(u)
	log := &resumeLog{}

	for i := 0; i < 5; i++ {
		v := g.admit(uint64(i+1), action.New("A", i), log.record)
		if v != admitLater {
			t.Fatalf("admit #%d = %v, want admitLater", i, v)
		}
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	got := log.snapshot()
	if len(got) != 1 {
		t.Fatalf("delivered %d actions, want 1", len(got))
	}
	if got[0].Payload != 4 {
		t.Errorf("delivered payload %v, want the burst's last (4)", got[0].Payload)
	}
}

func TestGateDebounceClearPending(t *testing.T) {
	u := MustUnit(UnitConfig{Type: match.Exact("A"), Debounce: 30 * time.Millisecond})
	g := newGate(u)
	log := &resumeLog{}

	g.admit(1, action.New("A", 1), log.record)
	if !g.hasPending() {
		t.Error("hasPending() = false with a timer armed")
	}

	g.clearPending()
	if g.hasPending() {
		t.Error("hasPending() = true after clearPending")
	}

	time.Sleep(80 * time.Millisecond)
	if got := log.snapshot(); len(got) != 0 {
		t.Errorf("cleared delivery still fired: %v", got)
	}
}

func TestGateThrottleLeadingEdge(t *testing.T) {
	u := MustUnit(UnitConfig{Type: match.Exact("A"), Throttle: 60 * time.Millisecond})
	g := newGate(u)

	if v := g.admit(1, action.New("A", 1), nil); v != admitNow {
		t.Fatalf("first admit = %v, want admitNow", v)
	}
	if v := g.admit(2, action.New("A", 2), nil); v != admitDrop {
		t.Fatalf("mid-window admit = %v, want admitDrop", v)
	}

	time.Sleep(80 * time.Millisecond)
	if v := g.admit(3, action.New("A", 3), nil); v != admitNow {
		t.Fatalf("post-window admit = %v, want admitNow", v)
	}
}

func TestGateDebounceWithThrottle(t *testing.T) {
	u := MustUnit(UnitConfig{
		Type:     match.Exact("A"),
		Debounce: 20 * time.Millisecond,
		Throttle: 150 * time.Millisecond,
	})
	g := newGate(u)
	log := &resumeLog{}

	// First debounced delivery opens the throttle window.
	g.admit(1, action.New("A", 1), log.record)
	time.Sleep(60 * time.Millisecond)

	// Second delivery fires inside the window and is swallowed.
	g.admit(2, action.New("A", 2), log.record)
	time.Sleep(60 * time.Millisecond)

	got := log.snapshot()
	if len(got) != 1 {
		t.Fatalf("delivered %d actions, want 1", len(got))
	}
	if got[0].Payload != 1 {
		t.Errorf("delivered payload %v, want 1", got[0].Payload)
	}
}

func TestGateDropsOutOfOrderArrival(t *testing.T) {
	u := MustUnit(UnitConfig{Type: match.Exact("A"), Debounce: 30 * time.Millisecond})
	g := newGate(u)
	log := &resumeLog{}

	// Chain walks run concurrently, so the second dispatch can reach
	// the gate first. The straggler must not restart the window with
	// the burst's older action.
	if v := g.admit(2, action.New("A", 2), log.record); v != admitLater {
		t.Fatalf("admit(2) = %v, want admitLater", v)
	}
	if v := g.admit(1, action.New("A", 1), log.record); v != admitDrop {
		t.Fatalf("late admit(1) = %v, want admitDrop", v)
	}

	time.Sleep(80 * time.Millisecond)
	got := log.snapshot()
	if len(got) != 1 {
		t.Fatalf("delivered %d actions, want 1", len(got))
	}
	if got[0].Payload != 2 {
		t.Errorf("delivered payload %v, want the newest (2)", got[0].Payload)
	}
}

func TestGateClearPendingBeforeBarsOlderArrivals(t *testing.T) {
	u := MustUnit(UnitConfig{Type: match.Exact("A"), Debounce: 30 * time.Millisecond})
	g := newGate(u)
	log := &resumeLog{}

	g.admit(1, action.New("A", 1), log.record)
	g.clearPendingBefore(3)
	if g.hasPending() {
		t.Error("hasPending() = true after clearPendingBefore")
	}

	// An arrival dispatched before the cancel but reaching the gate
	// after it must stay dropped.
	if v := g.admit(2, action.New("A", 2), log.record); v != admitDrop {
		t.Fatalf("pre-cancel straggler admit = %v, want admitDrop", v)
	}
	if v := g.admit(4, action.New("A", 4), log.record); v != admitLater {
		t.Fatalf("post-cancel admit = %v, want admitLater", v)
	}

	time.Sleep(80 * time.Millisecond)
	got := log.snapshot()
	if len(got) != 1 || got[0].Payload != 4 {
		t.Errorf("delivered %v, want only payload 4", got)
	}
}
