// SPDX-License-Identifier: Unlicense OR MIT

//go:build unix

package app

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"fbwin.org/app/internal/keyboard"
	"fbwin.org/app/internal/window"
	"fbwin.org/io/event"
	"fbwin.org/io/key"
)

// Option configures a window.
type Option func(*config)

type config struct {
	appID     string
	display   string
	queueSize int
	logger    *log.Logger
}

// AppID sets the application id the compositor uses to group and
// decorate the window. It defaults to ID.
func AppID(id string) Option {
	return func(c *config) {
		c.appID = id
	}
}

// Display selects the compositor socket. Relative names are resolved
// against XDG_RUNTIME_DIR. The default is taken from WAYLAND_DISPLAY.
func Display(name string) Option {
	return func(c *config) {
		c.display = name
	}
}

// QueueSize sets the capacity of the event queue. When full, the oldest
// events are dropped.
func QueueSize(n int) Option {
	return func(c *config) {
		c.queueSize = n
	}
}

// Logger sets the logger for warnings. The default logs to standard
// error.
func Logger(l *log.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// Platform drivers, set by the platform specific files.
var (
	backendDriver func(display string, logger *log.Logger) (window.Backend, error)
	keymapDriver  func() (keyboard.Compiler, func(), error)
)

// Window is a toplevel window with a framebuffer.
type Window struct {
	s       *window.Session
	fb      Framebuffer
	release func()
}

// Create opens a window of the given size and blocks until the
// compositor has configured it.
func Create(title string, width, height int, options ...Option) (*Window, error) {
	cfg := config{
		appID:  ID,
		logger: log.New(os.Stderr, "fbwin: ", log.LstdFlags),
	}
	for _, o := range options {
		o(&cfg)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("app: invalid window size %dx%d", width, height)
	}
	if backendDriver == nil {
		return nil, errors.New("app: no display backend available")
	}
	w := &Window{release: func() {}}
	var keymaps keyboard.Compiler
	if keymapDriver != nil {
		c, release, err := keymapDriver()
		if err != nil {
			cfg.logger.Printf("app: keymaps unavailable: %v", err)
		} else {
			keymaps, w.release = c, release
		}
	}
	b, err := backendDriver(cfg.display, cfg.logger)
	if err != nil {
		w.release()
		return nil, err
	}
	s, err := window.New(b, window.Options{
		Title:     title,
		AppID:     cfg.appID,
		Width:     width,
		Height:    height,
		QueueSize: cfg.queueSize,
		Keymaps:   keymaps,
		Logger:    cfg.logger,
	})
	if err != nil {
		w.release()
		return nil, err
	}
	w.s = s
	return w, nil
}

// Destroy closes the window and the compositor connection. It is safe
// to call on a nil Window.
func (w *Window) Destroy() {
	if w == nil || w.s == nil {
		return
	}
	w.s.Destroy()
	w.s = nil
	w.release()
	w.fb = Framebuffer{}
}

// Framebuffer returns the buffer to draw the next frame into. It is
// unavailable until the window is configured and after it is closed.
// The buffer is valid until the next call to Present, WaitEvents,
// PollEvents or Destroy.
func (w *Window) Framebuffer() (*Framebuffer, bool) {
	if w.s == nil {
		return nil, false
	}
	e, ok := w.s.Framebuffer()
	if !ok {
		return nil, false
	}
	w.fb = Framebuffer{
		Pix:    e.Data,
		Width:  e.Width,
		Height: e.Height,
		Stride: e.Stride,
	}
	return &w.fb, true
}

// Present displays the framebuffer returned by the last call to
// Framebuffer.
func (w *Window) Present() {
	if w.s == nil {
		return
	}
	w.s.Present()
	w.fb = Framebuffer{}
}

// WaitEvents reads and dispatches compositor events for up to timeout.
// A negative timeout waits until at least one event arrives; zero
// doesn't wait. It reports whether the window is still open. Events may
// resize the window, which invalidates the last Framebuffer.
func (w *Window) WaitEvents(timeout time.Duration) bool {
	if w.s == nil {
		return false
	}
	return w.s.Wait(timeout)
}

// PollEvents is shorthand for WaitEvents(0).
func (w *Window) PollEvents() bool {
	return w.WaitEvents(0)
}

// NextEvent returns the oldest queued event.
func (w *Window) NextEvent() (event.Event, bool) {
	if w.s == nil {
		return nil, false
	}
	return w.s.NextEvent()
}

// ShouldClose reports whether the window was closed.
func (w *Window) ShouldClose() bool {
	return w.s == nil || w.s.Closed()
}

// Width returns the committed width in pixels.
func (w *Window) Width() int {
	if w.s == nil {
		return 0
	}
	return w.s.Size().X
}

// Height returns the committed height in pixels.
func (w *Window) Height() int {
	if w.s == nil {
		return 0
	}
	return w.s.Size().Y
}

// HasFocus reports whether the window has keyboard focus.
func (w *Window) HasFocus() bool {
	return w.s != nil && w.s.Focused()
}

// Modifiers returns the modifiers currently held.
func (w *Window) Modifiers() key.Modifiers {
	if w.s == nil {
		return 0
	}
	return w.s.Modifiers()
}

// KeyRepeat returns the key repeat rate in keys per second and the
// delay before repeating starts. A zero rate disables repeating.
func (w *Window) KeyRepeat() (rate int, delay time.Duration) {
	if w.s == nil {
		return 0, 0
	}
	return w.s.KeyRepeat()
}

// Err returns the error that closed the window, or nil if the window is
// open or was closed by the compositor.
func (w *Window) Err() error {
	if w.s == nil {
		return nil
	}
	return w.s.Err()
}
