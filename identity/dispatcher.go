package identity

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type listener struct {
	id     uuid.UUID
	fn     AuthChangeFunc
	active atomic.Bool
}

type pendingEvent struct {
	event   EventType
	session *Session
}

// Dispatcher fans provider events out to subscribers, preserving emit order.
// Events are queued and drained by whichever goroutine finds the queue idle, so
// a listener may safely trigger further emits.
type Dispatcher struct {
	mu        sync.Mutex
	listeners []*listener
	queue     []pendingEvent
	draining  bool
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Subscribe registers fn and returns its Subscription.
func (d *Dispatcher) Subscribe(fn AuthChangeFunc) Subscription {
	l := &listener{id: uuid.New(), fn: fn}
	l.active.Store(true)

	d.mu.Lock()
	d.listeners = append(d.listeners, l)
	d.mu.Unlock()

	return NewSubscription(func() {
		l.active.Store(false)
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, existing := range d.listeners {
			if existing.id == l.id {
				d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
				break
			}
		}
	})
}

// Emit queues an event for all current subscribers. Each listener gets its own
// copy of the session.
func (d *Dispatcher) Emit(event EventType, session *Session) {
	d.mu.Lock()
	d.queue = append(d.queue, pendingEvent{event: event, session: session.Clone()})
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.draining = true

	for len(d.queue) > 0 {
		next := d.queue[0]
		d.queue = d.queue[1:]
		targets := append([]*listener(nil), d.listeners...)
		d.mu.Unlock()

		for _, l := range targets {
			if l.active.Load() {
				l.fn(next.event, next.session.Clone())
			}
		}

		d.mu.Lock()
	}

	d.draining = false
	d.mu.Unlock()
}

// Len returns the number of active subscribers.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}
