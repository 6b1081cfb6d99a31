// Package bus is the in-process publish/subscribe transport decoupling the
// storage, schema, and transform layers.
//
// Delivery is asynchronous: Publish enqueues and returns immediately; a
// single dispatcher goroutine drains the queue and invokes handlers. No
// lock is held while a handler runs, so handlers may publish further
// events without deadlocking.
package bus

import (
	"context"
	"log/slog"
	"sync"
)

// Handler receives events for a subscribed topic.
type Handler func(Event)

type subscriber struct {
	id      int
	handler Handler
}

// Bus is an asynchronous topic-based publish/subscribe dispatcher.
type Bus struct {
	mu     sync.Mutex
	subs   map[Topic][]subscriber
	nextID int

	events []Event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

// New creates a Bus. Run must be called for events to be delivered.
func New() *Bus {
	return &Bus{
		subs:   make(map[Topic][]subscriber),
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Subscribe registers a handler for a topic and returns an unsubscribe
// function. Safe to call from any goroutine, including from handlers.
func (b *Bus) Subscribe(topic Topic, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscriber{id: id, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[topic]
		for i, s := range subs {
			if s.id == id {
				b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish enqueues an event for asynchronous delivery.
// Returns false if the bus has been closed.
func (b *Bus) Publish(e Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	b.events = append(b.events, e)

	// Non-blocking signal; a buffer of 1 coalesces multiple signals.
	select {
	case b.signal <- struct{}{}:
	default:
	}
	return true
}

// Run delivers events until the context is cancelled or Close is called.
// Must be called from exactly one goroutine.
func (b *Bus) Run(ctx context.Context) error {
	slog.Debug("bus starting")

	for {
		e, ok := b.tryDequeue()
		if ok {
			b.deliver(e)
			continue
		}

		select {
		case <-ctx.Done():
			b.Close()
			return ctx.Err()
		case <-b.signal:
			if b.drained() {
				slog.Debug("bus stopping: closed and drained")
				return nil
			}
		}
	}
}

// Close stops publishing. The dispatcher drains events already enqueued
// and then returns from Run.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.signal)
}

func (b *Bus) tryDequeue() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 {
		return Event{}, false
	}

	e := b.events[0]
	b.events[0] = Event{} // release payload for GC
	if len(b.events) == 1 {
		b.events = b.events[:0]
	} else {
		b.events = b.events[1:]
	}
	return e, true
}

func (b *Bus) drained() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed && len(b.events) == 0
}

// deliver invokes handlers on a snapshot of the subscriber list so that
// handlers can subscribe or unsubscribe without holding up delivery.
func (b *Bus) deliver(e Event) {
	b.mu.Lock()
	subs := append([]subscriber(nil), b.subs[e.Topic]...)
	b.mu.Unlock()

	for _, s := range subs {
		s.handler(e)
	}
}

// Pending returns the number of undelivered events. Used for tests and
// diagnostics.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
