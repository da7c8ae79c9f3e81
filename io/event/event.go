// SPDX-License-Identifier: Unlicense OR MIT

// Package event contains types for event handling.
package event

import "time"

// Event is the marker interface for events.
type Event interface {
	ImplementsEvent()
	// Timestamp is the time the event was generated, in milliseconds
	// resolution. Key events carry the compositor's timestamp, other
	// events the monotonic clock when they were queued.
	Timestamp() time.Duration
}
