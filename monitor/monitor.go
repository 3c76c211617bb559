// Package monitor provides the pipeline's observability stream: an
// append-only multicast of lifecycle events with no history replay.
// New subscribers see only future events.
package monitor

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/logicflow/action"
)

// Op identifies a lifecycle transition.
type Op string

// Lifecycle operations emitted by the pipeline.
const (
	// OpTop marks an action entering the pipeline.
	OpTop Op = "top"

	// OpBegin marks a unit beginning work on an action.
	OpBegin Op = "begin"

	// OpNext marks a forward decision that keeps the action in the chain.
	OpNext Op = "next"

	// OpNextDisp marks a forward decision that redispatched a new action
	// from the top of the pipeline.
	OpNextDisp Op = "nextDisp"

	// OpFiltered marks a rejection that propagates nothing further.
	OpFiltered Op = "filtered"

	// OpCancelled marks a context whose cancellation signal fired.
	OpCancelled Op = "cancelled"

	// OpDispatch marks an emission from a process stage reaching the store.
	OpDispatch Op = "dispatch"

	// OpDispCancelled marks an emission dropped because its context was
	// already cancelled.
	OpDispCancelled Op = "dispCancelled"

	// OpEnd marks a context reaching a terminal state.
	OpEnd Op = "end"

	// OpBottom marks an action leaving the chain toward the store.
	OpBottom Op = "bottom"

	// OpAnomaly marks a protocol violation (double decision, dispatch
	// after completion). The offending context is frozen; the pipeline
	// continues.
	OpAnomaly Op = "anomaly"
)

// Event is an immutable snapshot of a lifecycle transition.
type Event struct {
	// Action is the inbound action the transition belongs to.
	Action action.Action

	// Op is the transition kind.
	Op Op

	// Name is the logic unit's name, empty for pipeline-level transitions.
	Name string

	// NextAction is the action produced by a forward decision, if any.
	NextAction action.Action

	// DispAction is the dispatched emission, if any.
	DispAction action.Action

	// ShouldProcess reports whether the process stage was gated open by
	// the decision. Meaningful for OpNext and OpNextDisp.
	ShouldProcess bool

	// Err carries the anomaly or failure, if any.
	Err error
}

// Subscription is a live attachment to the stream. Events arrive on C
// until Cancel is called or the stream closes.
type Subscription struct {
	id     string
	c      chan Event
	stream *Stream
	once   sync.Once
}

// C returns the subscription's event channel. The channel is closed when
// the subscription is cancelled or the stream shuts down.
func (s *Subscription) C() <-chan Event {
	return s.c
}

// ID returns the unique subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Cancel detaches the subscription and closes its channel.
func (s *Subscription) Cancel() {
	s.stream.remove(s.id)
}

// Stream is a multicast publisher of lifecycle events. It is safe for
// concurrent use. Emissions never block: a subscriber that falls behind
// its buffer has events dropped and counted.
type Stream struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	buffer int
	closed bool

	emitted atomic.Uint64
	dropped atomic.Uint64
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithBuffer sets the per-subscriber channel buffer size.
func WithBuffer(n int) StreamOption {
	return func(s *Stream) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// NewStream creates a monitor stream.
func NewStream(opts ...StreamOption) *Stream {
	s := &Stream{
		subs:   make(map[string]*Subscription),
		buffer: 256,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe attaches a new subscriber. Only events emitted after the
// call are delivered.
func (s *Stream) Subscribe() *Subscription {
	sub := &Subscription{
		id:     uuid.NewString(),
		c:      make(chan Event, s.buffer),
		stream: s,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sub.once.Do(func() { close(sub.c) })
		return sub
	}
	s.subs[sub.id] = sub
	return sub
}

// Emit publishes an event to all current subscribers. Full subscriber
// buffers drop the event for that subscriber.
func (s *Stream) Emit(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	s.emitted.Add(1)
	for _, sub := range s.subs {
		select {
		case sub.c <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}

// Close shuts the stream down and closes all subscriber channels.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, sub := range s.subs {
		sub.once.Do(func() { close(sub.c) })
		delete(s.subs, id)
	}
}

// Emitted returns the total number of events published.
func (s *Stream) Emitted() uint64 {
	return s.emitted.Load()
}

// Dropped returns the number of per-subscriber deliveries dropped due to
// full buffers.
func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

// SubscriberCount returns the number of attached subscribers.
func (s *Stream) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// remove detaches a subscription by ID.
func (s *Stream) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return
	}
	delete(s.subs, id)
	sub.once.Do(func() { close(sub.c) })
}
