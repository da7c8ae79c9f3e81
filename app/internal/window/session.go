// SPDX-License-Identifier: Unlicense OR MIT

//go:build unix

package window

import (
	"errors"
	"fmt"
	"image"
	"log"
	"time"

	syscall "golang.org/x/sys/unix"

	"fbwin.org/app/internal/keyboard"
	"fbwin.org/app/internal/queue"
	"fbwin.org/app/internal/shm"
	"fbwin.org/io/event"
	"fbwin.org/io/key"
	"fbwin.org/io/system"
)

// Stage is the lifecycle stage of a Session.
type Stage uint8

const (
	StageConnecting Stage = iota
	StageDiscovering
	StageFailed
	StageSurfaceCreated
	StageAwaitingConfigure
	StageReady
	StageClosed
)

func (s Stage) String() string {
	switch s {
	case StageConnecting:
		return "StageConnecting"
	case StageDiscovering:
		return "StageDiscovering"
	case StageFailed:
		return "StageFailed"
	case StageSurfaceCreated:
		return "StageSurfaceCreated"
	case StageAwaitingConfigure:
		return "StageAwaitingConfigure"
	case StageReady:
		return "StageReady"
	case StageClosed:
		return "StageClosed"
	default:
		panic("unexpected Stage value")
	}
}

// Session is a toplevel window with a shared memory framebuffer.
type Session struct {
	b     Backend
	log   *log.Logger
	now   func() time.Duration
	stage Stage

	width, height int
	configured    bool
	closed        bool
	destroyed     bool
	focus         bool
	mods          key.Modifiers
	serial        uint32
	err           error
	// broken is set once the connection failed.
	broken bool

	keyboard    bool
	repeatRate  int
	repeatDelay time.Duration

	events *queue.Ring
	kbd    *keyboard.Translator
	pool   *shm.Pool
}

// New creates a window on b and blocks until the compositor configured
// it. The session takes ownership of b; on failure b is disconnected.
func New(b Backend, opts Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = monotonic
	}
	s := &Session{
		b:      b,
		log:    opts.Logger,
		now:    opts.Now,
		width:  opts.Width,
		height: opts.Height,
		events: queue.New(opts.QueueSize),
		kbd:    keyboard.New(opts.Keymaps, opts.Logger),
	}
	if err := s.create(opts); err != nil {
		s.stage = StageFailed
		s.teardown()
		return nil, err
	}
	s.stage = StageReady
	if s.closed {
		// Closed by the compositor before the first configure.
		s.stage = StageClosed
	}
	return s, nil
}

func (s *Session) create(opts Options) error {
	s.stage = StageDiscovering
	g, err := s.b.Discover(s)
	if err != nil {
		s.broken = true
		return err
	}
	if m := g.missing(); m != "" {
		return fmt.Errorf("%w: %s", ErrMissingGlobal, m)
	}
	pool, err := shm.NewPool(s.b, s.width, s.height, s.log)
	if err != nil {
		return err
	}
	s.pool = pool
	if err := s.b.CreateWindow(opts.Title, opts.AppID, s.width, s.height); err != nil {
		s.broken = true
		return err
	}
	s.stage = StageSurfaceCreated
	if err := s.b.Flush(); err != nil && !errors.Is(err, syscall.EAGAIN) {
		s.broken = true
		return err
	}
	s.stage = StageAwaitingConfigure
	for !s.configured {
		if _, err := s.b.Dispatch(); err != nil {
			s.broken = true
			return fmt.Errorf("window: waiting for configure: %w", err)
		}
		if s.err != nil {
			return s.err
		}
	}
	return nil
}

// Destroy tears down the window and disconnects. It is safe to call on
// a nil or already destroyed session.
func (s *Session) Destroy() {
	if s == nil || s.destroyed {
		return
	}
	s.teardown()
	s.stage = StageClosed
	s.closed = true
}

func (s *Session) teardown() {
	s.destroyed = true
	s.pool.Destroy()
	s.pool = nil
	if s.keyboard {
		s.b.ReleaseKeyboard()
		s.keyboard = false
	}
	s.kbd.Destroy()
	s.b.DestroyWindow()
	// Flush the destructors before the globals go away.
	if !s.broken {
		if err := s.b.Roundtrip(); err != nil {
			s.log.Printf("window: roundtrip during teardown: %v", err)
		}
	}
	s.b.ReleaseGlobals()
	s.b.Disconnect()
	s.events.Reset()
}

// fail closes the session because the connection broke.
func (s *Session) fail(err error) {
	s.broken = true
	s.kill(err)
}

// kill closes the session because of err.
func (s *Session) kill(err error) {
	if s.err == nil {
		s.err = err
	}
	s.close()
}

func (s *Session) close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.stage == StageReady {
		s.stage = StageClosed
	}
	s.events.Push(system.QuitEvent{Time: s.now()})
}

// Wait pumps protocol I/O for up to timeout. A negative timeout blocks
// until events arrive, zero only dispatches what is readable now. It
// reports whether the window is still open.
func (s *Session) Wait(timeout time.Duration) bool {
	if s.closed || s.destroyed {
		return false
	}
	// Dispatch queued events until the read intent is granted.
	if err := s.prepareRead(); err != nil {
		s.fail(err)
		return false
	}
	if s.closed {
		s.b.CancelRead()
		return false
	}
	events := int16(syscall.POLLIN)
	if err := s.b.Flush(); err != nil {
		if !errors.Is(err, syscall.EAGAIN) {
			s.b.CancelRead()
			s.fail(err)
			return false
		}
		// Poll for POLLOUT to know when the rest can be written.
		events |= syscall.POLLOUT
	}
	revents, err := s.poll(events, timeout)
	if err != nil {
		s.b.CancelRead()
		s.fail(err)
		return false
	}
	switch {
	case revents&syscall.POLLIN != 0:
		if err := s.b.ReadEvents(); err != nil {
			s.fail(err)
			return false
		}
		if _, err := s.b.DispatchPending(); err != nil {
			s.fail(err)
		}
	case revents&(syscall.POLLERR|syscall.POLLHUP) != 0:
		s.b.CancelRead()
		s.fail(errConnectionLost)
	default:
		s.b.CancelRead()
	}
	return !s.closed
}

func (s *Session) prepareRead() error {
	for {
		perr := s.b.PrepareRead()
		if perr == nil {
			return nil
		}
		n, err := s.b.DispatchPending()
		if err != nil {
			return err
		}
		if n == 0 {
			return perr
		}
	}
}

// poll waits for the backend descriptor, retrying on EINTR with the
// remaining time.
func (s *Session) poll(events int16, timeout time.Duration) (int16, error) {
	fds := []syscall.PollFd{{Fd: int32(s.b.Fd()), Events: events}}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		ms := -1
		switch {
		case timeout == 0:
			ms = 0
		case timeout > 0:
			rem := time.Until(deadline)
			if rem < 0 {
				rem = 0
			}
			ms = int((rem + time.Millisecond - 1) / time.Millisecond)
		}
		fds[0].Revents = 0
		_, err := syscall.Poll(fds, ms)
		if err == syscall.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("window: poll: %w", err)
		}
		return fds[0].Revents, nil
	}
}

// Framebuffer selects the next free buffer for drawing. It fails unless
// the session is ready.
func (s *Session) Framebuffer() (*shm.Entry, bool) {
	if s.stage != StageReady || s.closed {
		return nil, false
	}
	e := s.pool.Free()
	return e, e != nil
}

// Present hands the selected buffer to the compositor and advances the
// rotation.
func (s *Session) Present() {
	if s.stage != StageReady || s.closed || !s.pool.Valid() {
		return
	}
	e := s.pool.Current()
	s.pool.MarkBusy(e)
	s.b.Present(e.Handle, e.Width, e.Height)
	if err := s.b.Flush(); err != nil && !errors.Is(err, syscall.EAGAIN) {
		s.fail(err)
	}
	s.pool.Advance()
}

// NextEvent pops the oldest queued event.
func (s *Session) NextEvent() (event.Event, bool) {
	return s.events.Pop()
}

// Stage returns the lifecycle stage.
func (s *Session) Stage() Stage { return s.stage }

// Closed reports whether the window was closed.
func (s *Session) Closed() bool { return s.closed }

// Err returns the error that closed the session, if any.
func (s *Session) Err() error { return s.err }

func (s *Session) Size() image.Point { return image.Pt(s.width, s.height) }

func (s *Session) Focused() bool { return s.focus }

func (s *Session) Modifiers() key.Modifiers { return s.mods }

// KeyRepeat returns the repeat rate in keys per second and the delay
// before repeating starts, as announced by the compositor.
func (s *Session) KeyRepeat() (int, time.Duration) { return s.repeatRate, s.repeatDelay }

// Dropped returns the number of events lost to queue overflow.
func (s *Session) Dropped() int { return s.events.Dropped() }

func (s *Session) push(e event.Event) {
	s.events.Push(e)
}

// Configure acknowledges an xdg_surface configure.
func (s *Session) Configure(serial uint32) {
	s.serial = serial
	s.b.AckConfigure(serial)
	s.configured = true
}

// ToplevelConfigure resizes the buffer pool when the compositor sets a
// new positive size.
func (s *Session) ToplevelConfigure(width, height int32) {
	w, h := int(width), int(height)
	if w <= 0 || h <= 0 || (w == s.width && h == s.height) {
		return
	}
	if s.pool == nil {
		return
	}
	if err := s.pool.Resize(w, h); err != nil {
		s.kill(fmt.Errorf("window: resize to %dx%d: %w", w, h, err))
		return
	}
	s.width, s.height = w, h
	s.b.SetOpaqueRegion(w, h)
	s.push(system.ResizeEvent{Size: image.Pt(w, h), Time: s.now()})
}

func (s *Session) Close() {
	s.close()
}

// Ping answers the keep-alive immediately.
func (s *Session) Ping(serial uint32) {
	s.b.Pong(serial)
}

func (s *Session) SeatCapabilities(keyboard bool) {
	if s.destroyed {
		return
	}
	switch {
	case keyboard && !s.keyboard:
		s.b.GetKeyboard()
		s.keyboard = true
	case !keyboard && s.keyboard:
		s.b.ReleaseKeyboard()
		s.keyboard = false
		s.dropFocus()
	}
}

func (s *Session) SeatRemoved() {
	s.keyboard = false
	s.dropFocus()
}

func (s *Session) dropFocus() {
	s.mods = 0
	if s.focus {
		s.focus = false
		s.push(key.FocusEvent{Focus: false, Time: s.now()})
	}
}

func (s *Session) Keymap(format uint32, fd int, size uint32) {
	if s.destroyed {
		syscall.Close(fd)
		return
	}
	s.kbd.LoadKeymap(format, fd, size)
	s.mods = s.kbd.Modifiers()
}

func (s *Session) Enter(serial uint32) {
	s.serial = serial
	if !s.focus {
		s.focus = true
		s.push(key.FocusEvent{Focus: true, Time: s.now()})
	}
}

func (s *Session) Leave(serial uint32) {
	s.serial = serial
	s.dropFocus()
}

func (s *Session) Key(serial, t, code uint32, pressed bool) {
	s.serial = serial
	s.push(s.kbd.Key(code, time.Duration(t)*time.Millisecond, pressed))
}

func (s *Session) KeyModifiers(serial, depressed, latched, locked, group uint32) {
	s.serial = serial
	s.kbd.UpdateModifiers(depressed, latched, locked, group)
	s.mods = s.kbd.Modifiers()
}

func (s *Session) RepeatInfo(rate, delay int32) {
	s.repeatRate = int(rate)
	s.repeatDelay = time.Duration(delay) * time.Millisecond
}

func (s *Session) BufferRelease(buf shm.Handle) {
	if s.pool != nil {
		s.pool.Release(buf)
	}
}

func (s *Session) ProtocolError(err error) {
	s.fail(err)
}

// monotonic returns CLOCK_MONOTONIC with millisecond resolution.
func monotonic() time.Duration {
	var ts syscall.Timespec
	if err := syscall.ClockGettime(syscall.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return time.Duration(ts.Nano()) / time.Millisecond * time.Millisecond
}
