// SPDX-License-Identifier: Unlicense OR MIT

//go:build unix

// Package shm implements the double-buffered pool of shared memory
// pixel buffers handed to the compositor.
package shm

import (
	"fmt"
	"log"

	"golang.org/x/sys/unix"
)

// BufferCount is the number of entries in a Pool.
const BufferCount = 2

// BytesPerPixel is the size of an XRGB8888 pixel.
const BytesPerPixel = 4

// Registrar registers a shared memory file with the compositor.
type Registrar interface {
	// CreateBuffer returns a displayable buffer backed by size bytes
	// of fd. The registrar must not retain fd past the call.
	CreateBuffer(fd, size, width, height, stride int) (Handle, error)
}

// Handle is a displayable buffer returned by a Registrar.
type Handle interface {
	Destroy()
}

// Entry is one shared memory pixel buffer.
type Entry struct {
	// Handle is the compositor side of the buffer.
	Handle Handle
	// Data is the mapping of the buffer memory.
	Data   []byte
	Width  int
	Height int
	Stride int

	fd   int
	size int
	busy bool
}

// CreateEntry allocates and maps an XRGB8888 buffer of the given size and
// registers it with reg.
func CreateEntry(reg Registrar, width, height int) (*Entry, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("shm: invalid buffer size %dx%d", width, height)
	}
	stride := width * BytesPerPixel
	e := &Entry{
		Width:  width,
		Height: height,
		Stride: stride,
		fd:     -1,
		size:   stride * height,
	}
	fd, err := allocate(e.size)
	if err != nil {
		return nil, err
	}
	e.fd = fd
	data, err := unix.Mmap(fd, 0, e.size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		e.Destroy()
		return nil, fmt.Errorf("shm: mmap: %w", err)
	}
	e.Data = data
	h, err := reg.CreateBuffer(fd, e.size, width, height, stride)
	if err != nil {
		e.Destroy()
		return nil, fmt.Errorf("shm: create buffer: %w", err)
	}
	e.Handle = h
	return e, nil
}

// Destroy releases the buffer handle, the mapping and the descriptor.
// It is safe on partially initialized entries.
func (e *Entry) Destroy() {
	if e.Handle != nil {
		e.Handle.Destroy()
		e.Handle = nil
	}
	if e.Data != nil {
		unix.Munmap(e.Data)
		e.Data = nil
	}
	if e.fd >= 0 {
		unix.Close(e.fd)
		e.fd = -1
	}
	e.busy = false
}

// Busy reports whether the compositor owns the entry.
func (e *Entry) Busy() bool { return e.busy }

// Fd returns the backing descriptor, or -1.
func (e *Entry) Fd() int { return e.fd }

// Size returns the size of the mapping in bytes.
func (e *Entry) Size() int { return e.size }

// Pool is a fixed set of BufferCount entries and a rotation cursor.
type Pool struct {
	reg     Registrar
	log     *log.Logger
	entries [BufferCount]*Entry
	cur     int
}

// NewPool creates a pool of width×height entries. On failure every entry
// created so far is destroyed.
func NewPool(reg Registrar, width, height int, logger *log.Logger) (*Pool, error) {
	if logger == nil {
		logger = log.Default()
	}
	p := &Pool{reg: reg, log: logger}
	if err := p.create(width, height); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pool) create(width, height int) error {
	for i := range p.entries {
		e, err := CreateEntry(p.reg, width, height)
		if err != nil {
			p.destroyEntries()
			return fmt.Errorf("shm: buffer %d: %w", i, err)
		}
		p.entries[i] = e
	}
	p.cur = 0
	return nil
}

func (p *Pool) destroyEntries() {
	for i, e := range p.entries {
		if e != nil {
			e.Destroy()
			p.entries[i] = nil
		}
	}
}

// Valid reports whether the pool holds a full set of entries.
func (p *Pool) Valid() bool {
	for _, e := range p.entries {
		if e == nil {
			return false
		}
	}
	return true
}

// Free returns the next entry in rotation order that is not busy and
// makes it current. If every entry is busy it logs a warning and returns
// the current entry anyway: blocking here would stall the event loop.
func (p *Pool) Free() *Entry {
	if !p.Valid() {
		return nil
	}
	for i := range p.entries {
		idx := (p.cur + i) % len(p.entries)
		if e := p.entries[idx]; !e.busy {
			p.cur = idx
			return e
		}
	}
	p.log.Printf("shm: all %d buffers busy, reusing buffer %d", len(p.entries), p.cur)
	return p.entries[p.cur]
}

// Current returns the entry selected by the last call to Free.
func (p *Pool) Current() *Entry {
	return p.entries[p.cur]
}

// Index returns the rotation position of e, or -1.
func (p *Pool) Index(e *Entry) int {
	for i, e2 := range p.entries {
		if e2 == e && e != nil {
			return i
		}
	}
	return -1
}

// MarkBusy records that e is attached to the surface.
func (p *Pool) MarkBusy(e *Entry) { e.busy = true }

// MarkFree records that the compositor released e.
func (p *Pool) MarkFree(e *Entry) { e.busy = false }

// Advance moves the rotation cursor to the next entry.
func (p *Pool) Advance() {
	p.cur = (p.cur + 1) % len(p.entries)
}

// Release marks the entry owning h free. It reports whether h belonged
// to the pool; releases for destroyed buffers are ignored.
func (p *Pool) Release(h Handle) bool {
	for _, e := range p.entries {
		if e != nil && e.Handle == h {
			p.MarkFree(e)
			return true
		}
	}
	return false
}

// Resize replaces every entry with one of the new size. The old entries
// are destroyed first. On failure the pool is left empty.
func (p *Pool) Resize(width, height int) error {
	p.destroyEntries()
	return p.create(width, height)
}

// Destroy releases all entries.
func (p *Pool) Destroy() {
	if p == nil {
		return
	}
	p.destroyEntries()
}
