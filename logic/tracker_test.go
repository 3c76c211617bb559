package logic

import (
	"testing"
	"time"
)

func TestTrackerQuiescentWhenIdle(t *testing.T) {
	trk := newTracker()
	select {
	case <-trk.quiescent():
	default:
		t.Error("quiescent() channel open with nothing in flight")
	}
}

func TestTrackerWaitsForWork(t *testing.T) {
	trk := newTracker()
	trk.add()
	trk.add()

	ch := trk.quiescent()
	select {
	case <-ch:
		t.Fatal("quiescent() fired with work in flight")
	default:
	}

	trk.done()
	select {
	case <-ch:
		t.Fatal("quiescent() fired with one unit still in flight")
	case <-time.After(10 * time.Millisecond):
	}

	trk.done()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("quiescent() did not fire at zero")
	}
}

func TestTrackerReleasesAllWaiters(t *testing.T) {
	trk := newTracker()
	trk.add()

	a := trk.quiescent()
	b := trk.quiescent()
	trk.done()

	for _, ch := range []<-chan struct{}{a, b} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("waiter not released at zero")
		}
	}
}

func TestTrackerInFlight(t *testing.T) {
	trk := newTracker()
	if got := trk.inFlight(); got != 0 {
		t.Errorf("inFlight() = %d, want 0", got)
	}
	trk.add()
	trk.add()
	trk.done()
	if got := trk.inFlight(); got != 1 {
		t.Errorf("inFlight() = %d, want 1", got)
	}
}
