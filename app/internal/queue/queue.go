// SPDX-License-Identifier: Unlicense OR MIT

// Package queue implements the bounded event queue between protocol
// callbacks and the application.
package queue

import "fbwin.org/io/event"

// DefaultCapacity is the capacity of a Ring created without one.
const DefaultCapacity = 256

// Ring is a fixed capacity FIFO of events. When full, Push discards the
// oldest unread event. The zero value is not usable; use New.
type Ring struct {
	events []event.Event
	head   int
	count  int
	// dropped counts events lost to overflow.
	dropped int
}

// New returns a ring holding up to capacity events. A non-positive
// capacity selects DefaultCapacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{events: make([]event.Event, capacity)}
}

// Push appends e. It never fails; on overflow the oldest event is
// dropped to make room.
func (r *Ring) Push(e event.Event) {
	n := len(r.events)
	if r.count == n {
		r.events[r.head] = nil
		r.head = (r.head + 1) % n
		r.count--
		r.dropped++
	}
	r.events[(r.head+r.count)%n] = e
	r.count++
}

// Pop removes and returns the oldest event.
func (r *Ring) Pop() (event.Event, bool) {
	if r.count == 0 {
		return nil, false
	}
	e := r.events[r.head]
	r.events[r.head] = nil
	r.head = (r.head + 1) % len(r.events)
	r.count--
	return e, true
}

// Len returns the number of queued events.
func (r *Ring) Len() int { return r.count }

// Cap returns the capacity of the ring.
func (r *Ring) Cap() int { return len(r.events) }

// Dropped returns the number of events discarded by overflow since the
// ring was created or last reset.
func (r *Ring) Dropped() int { return r.dropped }

// Reset discards all queued events.
func (r *Ring) Reset() {
	for i := range r.events {
		r.events[i] = nil
	}
	r.head, r.count, r.dropped = 0, 0, 0
}
