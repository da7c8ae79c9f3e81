// SPDX-License-Identifier: Unlicense OR MIT

//go:build unix

// Package wltest provides a scripted compositor backend for testing
// window sessions.
//
// Events sent with Send travel through a real pipe, so the descriptor
// returned by Fd becomes readable exactly when events are waiting to be
// read.
package wltest

import (
	"errors"
	"fmt"
	"image"
	"strings"

	syscall "golang.org/x/sys/unix"

	"fbwin.org/app/internal/shm"
	"fbwin.org/app/internal/window"
)

// ErrPendingEvents is returned by PrepareRead while events are queued.
var ErrPendingEvents = errors.New("wltest: events pending dispatch")

// ErrWouldBlock is returned by Dispatch when no events were sent.
var ErrWouldBlock = errors.New("wltest: dispatch would block forever")

type event struct {
	fn func(h window.Handler)
	// fd is a descriptor owned by the event until it is dispatched.
	fd int
}

// Buffer is a buffer created by CreateBuffer.
type Buffer struct {
	ID            int
	Width, Height int
	Stride        int
	Destroyed     bool

	b *Backend
}

func (b *Buffer) Destroy() {
	if b.Destroyed {
		panic(fmt.Sprintf("buffer %d destroyed twice", b.ID))
	}
	b.Destroyed = true
	b.b.record("destroy_buffer %d", b.ID)
}

// Backend implements window.Backend.
type Backend struct {
	// Globals is returned by Discover.
	Globals window.Globals
	// DiscoverErr fails Discover.
	DiscoverErr error
	// BufferErr fails CreateBuffer.
	BufferErr error
	// FlushErr is returned by Flush.
	FlushErr error
	// ConfigureSize is sent in the toplevel configure that follows
	// CreateWindow.
	ConfigureSize image.Point
	// NoConfigure suppresses the initial configure.
	NoConfigure bool

	// Requests logs every request in order.
	Requests []string
	Buffers  []*Buffer
	Attached *Buffer

	h        window.Handler
	rfd, wfd int
	wire     []event
	queue    []event
	readers  int
	serial   uint32
	keyboard bool
	closed   bool
}

// New returns a backend advertising every global.
func New() (*Backend, error) {
	var p [2]int
	if err := syscall.Pipe2(p[:], syscall.O_NONBLOCK|syscall.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("wltest: pipe: %w", err)
	}
	return &Backend{
		Globals: window.Globals{Compositor: true, Shm: true, WmBase: true, Seat: true},
		rfd:     p[0],
		wfd:     p[1],
	}, nil
}

func (b *Backend) record(format string, args ...interface{}) {
	b.Requests = append(b.Requests, fmt.Sprintf(format, args...))
}

// Count returns the number of requests with the given prefix.
func (b *Backend) Count(prefix string) int {
	n := 0
	for _, r := range b.Requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

// Index returns the position of the first request with the given
// prefix, or -1.
func (b *Backend) Index(prefix string) int {
	for i, r := range b.Requests {
		if strings.HasPrefix(r, prefix) {
			return i
		}
	}
	return -1
}

// Send puts an event on the wire.
func (b *Backend) Send(fn func(h window.Handler)) {
	b.send(event{fn: fn, fd: -1})
}

func (b *Backend) send(e event) {
	b.wire = append(b.wire, e)
	if b.wfd >= 0 {
		syscall.Write(b.wfd, []byte{0})
	}
}

// Queue adds an event that was already read but not dispatched.
func (b *Backend) Queue(fn func(h window.Handler)) {
	b.queue = append(b.queue, event{fn: fn, fd: -1})
}

// SendKeymap sends a keymap event carrying fd. The backend owns fd until
// the event is dispatched.
func (b *Backend) SendKeymap(format uint32, fd int, size uint32) {
	b.send(event{
		fn: func(h window.Handler) { h.Keymap(format, fd, size) },
		fd: fd,
	})
}

// Release sends a release event for buf.
func (b *Backend) Release(buf *Buffer) {
	b.Send(func(h window.Handler) { h.BufferRelease(buf) })
}

// Hangup closes the write end of the connection.
func (b *Backend) Hangup() {
	if b.wfd >= 0 {
		syscall.Close(b.wfd)
		b.wfd = -1
	}
}

// Readers returns the number of outstanding PrepareRead calls.
func (b *Backend) Readers() int { return b.readers }

// Live returns the number of buffers not destroyed.
func (b *Backend) Live() int {
	n := 0
	for _, buf := range b.Buffers {
		if !buf.Destroyed {
			n++
		}
	}
	return n
}

// Closed reports whether Disconnect was called.
func (b *Backend) Closed() bool { return b.closed }

// Keyboard reports whether a keyboard is acquired.
func (b *Backend) Keyboard() bool { return b.keyboard }

func (b *Backend) Fd() int { return b.rfd }

func (b *Backend) Flush() error {
	b.record("flush")
	return b.FlushErr
}

func (b *Backend) PrepareRead() error {
	if len(b.queue) > 0 {
		return ErrPendingEvents
	}
	b.readers++
	return nil
}

func (b *Backend) ReadEvents() error {
	if b.readers == 0 {
		return errors.New("wltest: ReadEvents without PrepareRead")
	}
	b.readers--
	b.read()
	return nil
}

func (b *Backend) CancelRead() {
	if b.readers == 0 {
		panic("wltest: CancelRead without PrepareRead")
	}
	b.readers--
	b.record("cancel_read")
}

// read drains the pipe and moves the wire to the queue.
func (b *Backend) read() {
	var buf [64]byte
	for {
		n, err := syscall.Read(b.rfd, buf[:])
		if n <= 0 || err != nil {
			break
		}
	}
	b.queue = append(b.queue, b.wire...)
	b.wire = nil
}

func (b *Backend) DispatchPending() (int, error) {
	n := 0
	for len(b.queue) > 0 {
		e := b.queue[0]
		b.queue = b.queue[1:]
		e.fn(b.h)
		n++
	}
	return n, nil
}

func (b *Backend) Dispatch() (int, error) {
	if len(b.queue) == 0 {
		if len(b.wire) == 0 {
			return 0, ErrWouldBlock
		}
		b.read()
	}
	return b.DispatchPending()
}

func (b *Backend) Roundtrip() error {
	b.record("roundtrip")
	b.read()
	_, err := b.DispatchPending()
	return err
}

func (b *Backend) Discover(h window.Handler) (window.Globals, error) {
	b.h = h
	b.record("discover")
	return b.Globals, b.DiscoverErr
}

func (b *Backend) CreateBuffer(fd, size, width, height, stride int) (shm.Handle, error) {
	if b.BufferErr != nil {
		return nil, b.BufferErr
	}
	var st syscall.Stat_t
	if err := syscall.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("wltest: fstat: %w", err)
	}
	if int(st.Size) < size || stride*height > size {
		return nil, fmt.Errorf("wltest: buffer %dx%d stride %d exceeds %d byte file", width, height, stride, st.Size)
	}
	buf := &Buffer{ID: len(b.Buffers), Width: width, Height: height, Stride: stride, b: b}
	b.Buffers = append(b.Buffers, buf)
	b.record("create_buffer %d %dx%d", buf.ID, width, height)
	return buf, nil
}

func (b *Backend) CreateWindow(title, appID string, width, height int) error {
	b.record("create_window %q %q %dx%d", title, appID, width, height)
	if !b.NoConfigure {
		sz := b.ConfigureSize
		b.Configure(sz.X, sz.Y)
	}
	return nil
}

// Configure sends a toplevel configure followed by a surface configure.
func (b *Backend) Configure(width, height int) {
	b.serial++
	serial := b.serial
	b.Send(func(h window.Handler) { h.ToplevelConfigure(int32(width), int32(height)) })
	b.Send(func(h window.Handler) { h.Configure(serial) })
}

func (b *Backend) SetOpaqueRegion(width, height int) {
	b.record("opaque_region %dx%d", width, height)
}

func (b *Backend) AckConfigure(serial uint32) {
	b.record("ack_configure %d", serial)
}

func (b *Backend) Pong(serial uint32) {
	b.record("pong %d", serial)
}

func (b *Backend) Present(buf shm.Handle, width, height int) {
	b.Attached = buf.(*Buffer)
	b.record("attach %d", b.Attached.ID)
	b.record("damage_buffer %dx%d", width, height)
	b.record("commit")
}

func (b *Backend) GetKeyboard() {
	b.keyboard = true
	b.record("get_keyboard")
}

func (b *Backend) ReleaseKeyboard() {
	b.keyboard = false
	b.record("release_keyboard")
}

func (b *Backend) DestroyWindow() {
	b.record("destroy_window")
}

func (b *Backend) ReleaseGlobals() {
	b.record("release_globals")
}

func (b *Backend) Disconnect() {
	if b.closed {
		panic("wltest: disconnected twice")
	}
	b.closed = true
	b.record("disconnect")
	for _, e := range append(b.wire, b.queue...) {
		if e.fd >= 0 {
			syscall.Close(e.fd)
		}
	}
	b.wire, b.queue = nil, nil
	b.Hangup()
	syscall.Close(b.rfd)
	b.rfd = -1
}
