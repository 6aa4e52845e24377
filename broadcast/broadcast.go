// Package broadcast fans run events out to any number of observers.
//
// Publishing never blocks: each subscriber owns a buffered channel and
// events that don't fit are dropped for that subscriber only. Observers
// that fall behind can recover the full picture from the live log buffer
// and status snapshot.
package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 256

// EventType distinguishes log lines from status transitions.
type EventType string

const (
	// LogUpdate carries one output line of a running script.
	LogUpdate EventType = "log_update"
	// StatusUpdate carries the new status of a script.
	StatusUpdate EventType = "status_update"
)

// Event is a single notification delivered to observers.
type Event struct {
	Type   EventType `json:"type"`
	Script string    `json:"script"`
	Line   string    `json:"line,omitempty"`
	Status string    `json:"status,omitempty"`
	Time   time.Time `json:"time"`
}

// Subscription is one observer's view of the event stream.
type Subscription struct {
	ID string

	ch      chan Event
	b       *Broadcaster
	dropped atomic.Uint64
	once    sync.Once
}

// Events returns the channel events are delivered on. It is closed when
// the subscription is cancelled.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close removes the subscription from the broadcaster.
func (s *Subscription) Close() {
	s.b.unsubscribe(s)
}

// Broadcaster delivers events to all current subscribers.
type Broadcaster struct {
	bufferSize int
	onChange   func(int)

	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithBufferSize sets the per-subscriber channel capacity.
func WithBufferSize(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithSubscriberHook registers a function called with the subscriber count
// whenever it changes.
func WithSubscriberHook(fn func(int)) Option {
	return func(b *Broadcaster) {
		b.onChange = fn
	}
}

// New creates a Broadcaster.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		bufferSize: DefaultBufferSize,
		subs:       make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new observer. Subscribing to a closed broadcaster
// returns a subscription whose channel is already closed.
func (b *Broadcaster) Subscribe() *Subscription {
	s := &Subscription{
		ID: uuid.NewString(),
		ch: make(chan Event, b.bufferSize),
		b:  b,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.once.Do(func() { close(s.ch) })
		return s
	}
	b.subs[s.ID] = s
	count := len(b.subs)
	b.mu.Unlock()

	b.notify(count)
	return s
}

// Publish delivers ev to every subscriber without blocking.
func (b *Broadcaster) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}

// PublishLog publishes a log_update event.
func (b *Broadcaster) PublishLog(script, line string) {
	b.Publish(Event{Type: LogUpdate, Script: script, Line: line})
}

// PublishStatus publishes a status_update event.
func (b *Broadcaster) PublishStatus(script, status string) {
	b.Publish(Event{Type: StatusUpdate, Script: script, Status: status})
}

// Subscribers returns the number of active subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close cancels every subscription. Later publishes are no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*Subscription)
	for _, s := range subs {
		s.once.Do(func() { close(s.ch) })
	}
	b.mu.Unlock()

	b.notify(0)
}

func (b *Broadcaster) unsubscribe(s *Subscription) {
	b.mu.Lock()
	if _, ok := b.subs[s.ID]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs, s.ID)
	s.once.Do(func() { close(s.ch) })
	count := len(b.subs)
	b.mu.Unlock()

	b.notify(count)
}

func (b *Broadcaster) notify(count int) {
	if b.onChange != nil {
		b.onChange(count)
	}
}
