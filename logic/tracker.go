package logic

import "sync"

// tracker counts non-terminal work: chain walks in progress and live
// execution contexts. It backs the drain primitive: waiters are
// released when the count reaches zero.
type tracker struct {
	mu      sync.Mutex
	count   int
	waiters []chan struct{}
}

// newTracker creates a tracker at zero.
func newTracker() *tracker {
	return &tracker{}
}

// add counts one unit of in-flight work.
func (t *tracker) add() {
	t.mu.Lock()
	t.count++
	t.mu.Unlock()
}

// done releases one unit of in-flight work, waking waiters at zero.
func (t *tracker) done() {
	t.mu.Lock()
	t.count--
	if t.count <= 0 {
		t.count = 0
		for _, w := range t.waiters {
			close(w)
		}
		t.waiters = nil
	}
	t.mu.Unlock()
}

// quiescent returns a channel closed when the count reaches zero. The
// channel is already closed if nothing is in flight.
func (t *tracker) quiescent() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan struct{})
	if t.count == 0 {
		close(ch)
		return ch
	}
	t.waiters = append(t.waiters, ch)
	return ch
}

// inFlight returns the current count.
func (t *tracker) inFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}
