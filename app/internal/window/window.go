// SPDX-License-Identifier: Unlicense OR MIT

//go:build unix

// Package window implements the window session on top of a compositor
// protocol backend.
package window

import (
	"errors"
	"log"
	"strings"
	"time"

	"fbwin.org/app/internal/keyboard"
	"fbwin.org/app/internal/shm"
)

// ErrMissingGlobal is wrapped by construction errors caused by a
// compositor that lacks a required global.
var ErrMissingGlobal = errors.New("window: required global missing")

// errConnectionLost reports a hangup seen by poll.
var errConnectionLost = errors.New("window: connection to compositor lost")

// Options configure a session.
type Options struct {
	Title         string
	AppID         string
	Width, Height int
	// QueueSize is the event queue capacity. Zero selects the default.
	QueueSize int
	// Keymaps compiles keymaps sent by the compositor. Without it keys
	// are reported without keysym or rune.
	Keymaps keyboard.Compiler
	Logger  *log.Logger
	// Now returns the timestamp for events the compositor doesn't stamp.
	// It defaults to the monotonic clock.
	Now func() time.Duration
}

// Globals lists the compositor globals a backend discovered.
type Globals struct {
	Compositor bool
	Shm        bool
	WmBase     bool
	Seat       bool
}

func (g Globals) missing() string {
	var names []string
	if !g.Compositor {
		names = append(names, "wl_compositor")
	}
	if !g.Shm {
		names = append(names, "wl_shm")
	}
	if !g.WmBase {
		names = append(names, "xdg_wm_base")
	}
	return strings.Join(names, ", ")
}

// Backend is the compositor protocol. Backend methods other than the
// read API are only called from the goroutine running the session, and
// backends call Handler methods only from within DispatchPending,
// Dispatch and Roundtrip.
type Backend interface {
	// CreateBuffer registers shared memory with the compositor.
	shm.Registrar

	// Fd returns the descriptor to poll for incoming events.
	Fd() int
	// Flush writes buffered requests. It returns an error wrapping
	// syscall.EAGAIN if the socket is full.
	Flush() error
	// PrepareRead announces the intent to read. It fails while events
	// are queued for dispatch.
	PrepareRead() error
	// ReadEvents reads and queues events after a successful PrepareRead.
	ReadEvents() error
	// CancelRead withdraws the intent announced by PrepareRead.
	CancelRead()
	// DispatchPending dispatches queued events.
	DispatchPending() (int, error)
	// Dispatch dispatches queued events, blocking for new ones if the
	// queue is empty.
	Dispatch() (int, error)
	// Roundtrip blocks until the compositor processed all requests.
	Roundtrip() error

	// Discover binds the globals and installs h.
	Discover(h Handler) (Globals, error)
	// CreateWindow creates the surface and toplevel and commits the
	// surface.
	CreateWindow(title, appID string, width, height int) error
	// SetOpaqueRegion marks the window area opaque.
	SetOpaqueRegion(width, height int)
	AckConfigure(serial uint32)
	Pong(serial uint32)
	// Present attaches buf, damages the full buffer and commits.
	Present(buf shm.Handle, width, height int)
	GetKeyboard()
	ReleaseKeyboard()
	DestroyWindow()
	ReleaseGlobals()
	// Disconnect closes the connection and every descriptor owned by
	// the backend, including descriptors of undispatched events.
	Disconnect()
}

// Handler receives compositor callbacks.
type Handler interface {
	Configure(serial uint32)
	ToplevelConfigure(width, height int32)
	Close()
	Ping(serial uint32)
	SeatCapabilities(keyboard bool)
	SeatRemoved()
	// Keymap receives ownership of fd.
	Keymap(format uint32, fd int, size uint32)
	Enter(serial uint32)
	Leave(serial uint32)
	Key(serial, t, code uint32, pressed bool)
	KeyModifiers(serial, depressed, latched, locked, group uint32)
	RepeatInfo(rate, delay int32)
	BufferRelease(buf shm.Handle)
	ProtocolError(err error)
}
