// SPDX-License-Identifier: Unlicense OR MIT

// Package system contains events usually handled at the top-level
// program level.
package system

import (
	"image"
	"time"
)

// QuitEvent is generated when the window is asked to close, either by
// the compositor or by a lost display connection.
type QuitEvent struct {
	Time time.Duration
}

// A ResizeEvent is generated when the committed window size changes.
// The framebuffer returned after the event has the new size.
type ResizeEvent struct {
	Size image.Point
	Time time.Duration
}

func (QuitEvent) ImplementsEvent()   {}
func (ResizeEvent) ImplementsEvent() {}

func (e QuitEvent) Timestamp() time.Duration   { return e.Time }
func (e ResizeEvent) Timestamp() time.Duration { return e.Time }
