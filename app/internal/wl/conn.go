// SPDX-License-Identifier: Unlicense OR MIT

//go:build linux || freebsd

// Package wl implements the client side of the Wayland wire protocol
// for the handful of interfaces a shared memory toplevel window needs.
//
// The read API follows libwayland: a reader announces its intent with
// PrepareRead, flushes, polls Fd and then calls either ReadEvents or
// CancelRead. Events are queued in wire order and delivered to listeners
// by DispatchPending.
package wl

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	syscall "golang.org/x/sys/unix"
)

var (
	// ErrPendingEvents is returned by PrepareRead while events are queued
	// but not yet dispatched.
	ErrPendingEvents = errors.New("wayland: events pending dispatch")
	// ErrNotReading is returned by ReadEvents without a prior PrepareRead.
	ErrNotReading = errors.New("wayland: no read prepared")
	// ErrClosed is reported when the compositor closes the connection.
	ErrClosed = errors.New("wayland: connection closed")
)

// ProtocolError is a fatal error event sent by the compositor.
type ProtocolError struct {
	Object    uint32
	Interface string
	Code      uint32
	Message   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wayland: protocol error %d on %s@%d: %s", e.Code, e.Interface, e.Object, e.Message)
}

// object is a client side protocol object.
type object interface {
	proxy() *Proxy
	dispatch(m *Message)
}

// Proxy is the state common to all protocol objects.
type Proxy struct {
	conn    *Conn
	id      uint32
	iface   *Interface
	version uint32
	// zombie objects are destroyed but their id is not yet released by
	// the compositor. Events for them are discarded.
	zombie bool
}

func (p *Proxy) proxy() *Proxy { return p }

// ID returns the object id.
func (p *Proxy) ID() uint32 { return p.id }

// Version returns the interface version the object was created with.
func (p *Proxy) Version() uint32 { return p.version }

func (p *Proxy) send(opcode uint16, args ...interface{}) {
	if p.zombie {
		return
	}
	p.conn.send(p.id, opcode, args...)
}

// destroy marks p destroyed after sending its destructor request.
func (p *Proxy) destroy(opcode uint16, args ...interface{}) {
	p.send(opcode, args...)
	p.zombie = true
}

// Conn is a client connection to a compositor.
type Conn struct {
	fd      int
	log     *log.Logger
	display *Display
	objects map[uint32]object
	free    []uint32
	nextID  uint32

	out    []byte
	outFds []int
	in     []byte
	inFds  []int
	queue  []*Message

	readers int
	err     error
}

// Dial connects to the compositor named by the environment. An inherited
// WAYLAND_SOCKET descriptor takes precedence; otherwise name, or
// WAYLAND_DISPLAY if name is empty, is resolved against
// XDG_RUNTIME_DIR.
func Dial(name string, logger *log.Logger) (*Conn, error) {
	if s := os.Getenv("WAYLAND_SOCKET"); s != "" && name == "" {
		fd, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("wayland: invalid WAYLAND_SOCKET %q", s)
		}
		os.Unsetenv("WAYLAND_SOCKET")
		syscall.CloseOnExec(fd)
		return NewConn(fd, logger), nil
	}
	path, err := socketPath(name)
	if err != nil {
		return nil, err
	}
	fd, err := syscall.Socket(syscall.AF_UNIX, syscall.SOCK_STREAM|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("wayland: socket: %w", err)
	}
	if err := syscall.Connect(fd, &syscall.SockaddrUnix{Name: path}); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("wayland: connect %s: %w", path, err)
	}
	return NewConn(fd, logger), nil
}

func socketPath(name string) (string, error) {
	if name == "" {
		name = os.Getenv("WAYLAND_DISPLAY")
	}
	if name == "" {
		name = "wayland-0"
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		return "", errors.New("wayland: XDG_RUNTIME_DIR not set")
	}
	return filepath.Join(dir, name), nil
}

// NewConn returns a connection over the connected stream socket fd. The
// connection owns fd.
func NewConn(fd int, logger *log.Logger) *Conn {
	if logger == nil {
		logger = log.Default()
	}
	c := &Conn{
		fd:      fd,
		log:     logger,
		objects: make(map[uint32]object),
		nextID:  1,
	}
	c.display = &Display{}
	c.register(c.display, displayInterface, 1)
	return c
}

// Fd returns the connection socket for polling.
func (c *Conn) Fd() int { return c.fd }

// Err returns the error that broke the connection, if any.
func (c *Conn) Err() error { return c.err }

// Display returns the wl_display object.
func (c *Conn) Display() *Display { return c.display }

func (c *Conn) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// register assigns an id to obj.
func (c *Conn) register(obj object, iface *Interface, version uint32) {
	var id uint32
	if n := len(c.free); n > 0 {
		id = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		id = c.nextID
		c.nextID++
	}
	p := obj.proxy()
	*p = Proxy{conn: c, id: id, iface: iface, version: version}
	c.objects[id] = obj
}

func (c *Conn) release(id uint32) {
	if _, ok := c.objects[id]; !ok {
		return
	}
	delete(c.objects, id)
	c.free = append(c.free, id)
}

// send queues a request. Descriptor arguments are duplicated; the caller
// keeps ownership of its copy.
func (c *Conn) send(id uint32, opcode uint16, args ...interface{}) {
	if c.err != nil {
		return
	}
	out, fds, err := encode(c.out, id, opcode, args)
	if err != nil {
		c.fail(err)
		return
	}
	for _, f := range fds {
		dup, err := syscall.FcntlInt(uintptr(f), syscall.F_DUPFD_CLOEXEC, 0)
		if err != nil {
			c.closeOutFds()
			c.fail(fmt.Errorf("wayland: dup: %w", err))
			return
		}
		c.outFds = append(c.outFds, dup)
	}
	c.out = out
	if len(c.out) > maxMessageSize || len(c.outFds) > maxFds-4 {
		if err := c.Flush(); err != nil && err != syscall.EAGAIN {
			c.fail(err)
		}
	}
}

func (c *Conn) closeOutFds() {
	for _, f := range c.outFds {
		syscall.Close(f)
	}
	c.outFds = nil
}

// Flush writes queued requests. It returns syscall.EAGAIN if the socket
// buffer is full; the remaining requests stay queued.
func (c *Conn) Flush() error {
	if c.err != nil {
		return c.err
	}
	for len(c.out) > 0 {
		var oob []byte
		fds := c.outFds
		if len(fds) > maxFds {
			fds = fds[:maxFds]
		}
		if len(fds) > 0 {
			oob = syscall.UnixRights(fds...)
		}
		n, err := syscall.SendmsgN(c.fd, c.out, oob, nil, syscall.MSG_DONTWAIT|syscall.MSG_NOSIGNAL)
		switch err {
		case nil:
		case syscall.EINTR:
			continue
		case syscall.EAGAIN:
			return err
		default:
			err = fmt.Errorf("wayland: sendmsg: %w", err)
			c.fail(err)
			return err
		}
		for _, f := range fds {
			syscall.Close(f)
		}
		c.outFds = c.outFds[len(fds):]
		c.out = c.out[n:]
	}
	c.out = c.out[:0]
	return nil
}

// PrepareRead announces the intent to read events. It fails with
// ErrPendingEvents if events must be dispatched first.
func (c *Conn) PrepareRead() error {
	if c.err != nil {
		return c.err
	}
	if len(c.queue) > 0 {
		return ErrPendingEvents
	}
	c.readers++
	return nil
}

// CancelRead releases a read prepared by PrepareRead.
func (c *Conn) CancelRead() {
	if c.readers > 0 {
		c.readers--
	}
}

// ReadEvents reads available data from the socket and queues the complete
// events. It does not block.
func (c *Conn) ReadEvents() error {
	if c.readers == 0 {
		return ErrNotReading
	}
	c.readers--
	if c.err != nil {
		return c.err
	}
	buf := make([]byte, maxMessageSize)
	oob := make([]byte, syscall.CmsgSpace(maxFds*4))
	for {
		n, oobn, _, _, err := syscall.Recvmsg(c.fd, buf, oob, syscall.MSG_DONTWAIT|syscall.MSG_CMSG_CLOEXEC)
		switch err {
		case nil:
		case syscall.EINTR:
			continue
		case syscall.EAGAIN:
			return nil
		default:
			err = fmt.Errorf("wayland: recvmsg: %w", err)
			c.fail(err)
			return err
		}
		if err := c.receiveFds(oob[:oobn]); err != nil {
			c.fail(err)
			return err
		}
		if n == 0 {
			c.fail(ErrClosed)
			return ErrClosed
		}
		c.in = append(c.in, buf[:n]...)
		if err := c.decode(); err != nil {
			c.fail(err)
			return err
		}
		return nil
	}
}

func (c *Conn) receiveFds(oob []byte) error {
	if len(oob) == 0 {
		return nil
	}
	msgs, err := syscall.ParseSocketControlMessage(oob)
	if err != nil {
		return fmt.Errorf("wayland: control message: %w", err)
	}
	for i := range msgs {
		fds, err := syscall.ParseUnixRights(&msgs[i])
		if err != nil {
			continue
		}
		c.inFds = append(c.inFds, fds...)
	}
	return nil
}

// decode moves complete messages from the input buffer to the queue.
func (c *Conn) decode() error {
	for len(c.in) >= headerSize {
		id, opcode, size := header(c.in)
		if size < headerSize || size > maxMessageSize {
			return fmt.Errorf("wayland: invalid message size %d", size)
		}
		if len(c.in) < size {
			break
		}
		obj, ok := c.objects[id]
		if !ok {
			// The sender is unknown, so its descriptors can't be
			// accounted for.
			c.log.Printf("wayland: event %d for unknown object %d", opcode, id)
			c.in = c.in[size:]
			continue
		}
		nfds, err := obj.proxy().iface.fdCount(opcode)
		if err != nil {
			return err
		}
		if len(c.inFds) < nfds {
			break
		}
		m := &Message{
			Opcode: opcode,
			target: obj,
			data:   append([]byte(nil), c.in[headerSize:size]...),
			fds:    append([]int(nil), c.inFds[:nfds]...),
		}
		c.inFds = c.inFds[nfds:]
		c.in = c.in[size:]
		c.queue = append(c.queue, m)
	}
	if len(c.in) == 0 {
		c.in = nil
	}
	return nil
}

// DispatchPending delivers queued events to their listeners and returns
// the number of events dispatched.
func (c *Conn) DispatchPending() (int, error) {
	n := 0
	for len(c.queue) > 0 && c.err == nil {
		m := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		if !m.target.proxy().zombie {
			m.target.dispatch(m)
			n++
		}
		closeFds(m.fds)
		if err := m.Err(); err != nil {
			c.fail(fmt.Errorf("wayland: %s event %d: %w", m.target.proxy().iface.Name, m.Opcode, err))
		}
	}
	if len(c.queue) == 0 {
		c.queue = nil
	}
	return n, c.err
}

func closeFds(fds []int) {
	for _, f := range fds {
		syscall.Close(f)
	}
}

// Dispatch dispatches queued events or, if there are none, blocks until
// events arrive and dispatches them.
func (c *Conn) Dispatch() (int, error) {
	if err := c.PrepareRead(); err != nil {
		if err == ErrPendingEvents {
			return c.DispatchPending()
		}
		return 0, err
	}
	if err := c.Flush(); err != nil && err != syscall.EAGAIN {
		c.CancelRead()
		return 0, err
	}
	fds := []syscall.PollFd{{Fd: int32(c.fd), Events: syscall.POLLIN}}
	for {
		_, err := syscall.Poll(fds, -1)
		if err == syscall.EINTR {
			continue
		}
		if err != nil {
			c.CancelRead()
			c.fail(fmt.Errorf("wayland: poll: %w", err))
			return 0, c.err
		}
		break
	}
	if fds[0].Revents&syscall.POLLIN == 0 {
		c.CancelRead()
		c.fail(ErrClosed)
		return 0, c.err
	}
	if err := c.ReadEvents(); err != nil {
		return 0, err
	}
	return c.DispatchPending()
}

// Roundtrip blocks until the compositor has processed every request sent
// so far, dispatching events in the meantime.
func (c *Conn) Roundtrip() error {
	done := false
	c.Sync(func(uint32) { done = true })
	for !done {
		if _, err := c.Dispatch(); err != nil {
			return err
		}
	}
	return nil
}

// Pending returns the number of queued undispatched events.
func (c *Conn) Pending() int { return len(c.queue) }

// Close closes the connection and every descriptor it holds. Requests
// not yet flushed are discarded.
func (c *Conn) Close() error {
	if c.fd < 0 {
		return nil
	}
	for _, m := range c.queue {
		closeFds(m.fds)
	}
	c.queue = nil
	closeFds(c.inFds)
	c.inFds = nil
	c.closeOutFds()
	c.out = nil
	err := syscall.Close(c.fd)
	c.fd = -1
	c.fail(ErrClosed)
	return err
}
