// SPDX-License-Identifier: Unlicense OR MIT

//go:build (linux && !android && !nowayland) || freebsd

package window

import (
	"errors"
	"fmt"
	"log"

	"golang.org/x/exp/slices"

	"fbwin.org/app/internal/shm"
	"fbwin.org/app/internal/wl"
)

// Wanted global versions.
const (
	compositorVersion = 4
	shmVersion        = 1
	wmBaseVersion     = 1
	seatVersion       = 7
)

type global struct {
	name    uint32
	iface   string
	version uint32
}

// Wayland is the Backend for a Wayland compositor.
type Wayland struct {
	conn     *wl.Conn
	h        Handler
	reported bool

	reg        *wl.Registry
	globals    []global
	compositor *wl.Compositor
	wm         *wl.WmBase
	shm        *wl.Shm
	seat       *wl.Seat
	seatName   uint32
	keyboard   *wl.Keyboard

	surf   *wl.Surface
	wmSurf *wl.XdgSurface
	topLvl *wl.Toplevel
}

// wlBuffer is the shm.Handle of a wl_buffer.
type wlBuffer struct {
	buf *wl.Buffer
}

func (b *wlBuffer) Destroy() {
	b.buf.Destroy()
}

// NewWayland connects to the compositor named display, or the one named
// by the environment if display is empty.
func NewWayland(display string, logger *log.Logger) (*Wayland, error) {
	c, err := wl.Dial(display, logger)
	if err != nil {
		return nil, err
	}
	return newWayland(c), nil
}

func newWayland(c *wl.Conn) *Wayland {
	return &Wayland{conn: c}
}

func (w *Wayland) Fd() int { return w.conn.Fd() }

func (w *Wayland) Flush() error { return w.conn.Flush() }

func (w *Wayland) PrepareRead() error { return w.conn.PrepareRead() }

func (w *Wayland) ReadEvents() error { return w.conn.ReadEvents() }

func (w *Wayland) CancelRead() { w.conn.CancelRead() }

func (w *Wayland) DispatchPending() (int, error) {
	n, err := w.conn.DispatchPending()
	return n, w.check(err)
}

func (w *Wayland) Dispatch() (int, error) {
	n, err := w.conn.Dispatch()
	return n, w.check(err)
}

func (w *Wayland) Roundtrip() error {
	return w.check(w.conn.Roundtrip())
}

// check reports a compositor error event to the handler once.
func (w *Wayland) check(err error) error {
	var perr *wl.ProtocolError
	if errors.As(err, &perr) && !w.reported && w.h != nil {
		w.reported = true
		w.h.ProtocolError(err)
	}
	return err
}

func (w *Wayland) Discover(h Handler) (Globals, error) {
	w.h = h
	w.reg = w.conn.Registry(wl.RegistryListener{
		Global:       w.onGlobal,
		GlobalRemove: w.onGlobalRemove,
	})
	// Wait for the compositor to announce its globals.
	if err := w.Roundtrip(); err != nil {
		return Globals{}, fmt.Errorf("window: registry roundtrip: %w", err)
	}
	return Globals{
		Compositor: w.compositor != nil,
		Shm:        w.shm != nil,
		WmBase:     w.wm != nil,
		Seat:       w.seat != nil,
	}, nil
}

func bindVersion(advertised, wanted uint32) uint32 {
	if advertised < wanted {
		return advertised
	}
	return wanted
}

func (w *Wayland) onGlobal(name uint32, iface string, version uint32) {
	w.globals = append(w.globals, global{name: name, iface: iface, version: version})
	switch iface {
	case wl.CompositorName:
		if w.compositor == nil {
			w.compositor = w.reg.BindCompositor(name, bindVersion(version, compositorVersion))
		}
	case wl.ShmName:
		if w.shm == nil {
			w.shm = w.reg.BindShm(name, bindVersion(version, shmVersion), wl.ShmListener{})
		}
	case wl.WmBaseName:
		if w.wm == nil {
			w.wm = w.reg.BindWmBase(name, bindVersion(version, wmBaseVersion), wl.WmBaseListener{
				Ping: func(serial uint32) { w.h.Ping(serial) },
			})
		}
	case wl.SeatName:
		if w.seat == nil {
			w.seatName = name
			w.seat = w.reg.BindSeat(name, bindVersion(version, seatVersion), wl.SeatListener{
				Capabilities: func(caps uint32) {
					w.h.SeatCapabilities(caps&wl.SeatCapabilityKeyboard != 0)
				},
			})
		}
	}
}

func (w *Wayland) onGlobalRemove(name uint32) {
	i := slices.IndexFunc(w.globals, func(g global) bool { return g.name == name })
	if i == -1 {
		return
	}
	w.globals = slices.Delete(w.globals, i, i+1)
	if w.seat != nil && name == w.seatName {
		w.ReleaseKeyboard()
		w.seat.Release()
		w.seat = nil
		w.h.SeatRemoved()
	}
}

// CreateBuffer implements shm.Registrar. The pool is destroyed right
// away; the buffer keeps the memory alive on the compositor side.
func (w *Wayland) CreateBuffer(fd, size, width, height, stride int) (shm.Handle, error) {
	pool := w.shm.CreatePool(fd, size)
	h := new(wlBuffer)
	h.buf = pool.CreateBuffer(0, width, height, stride, wl.ShmFormatXRGB8888, wl.BufferListener{
		Release: func(*wl.Buffer) { w.h.BufferRelease(h) },
	})
	pool.Destroy()
	if err := w.conn.Err(); err != nil {
		return nil, err
	}
	return h, nil
}

func (w *Wayland) CreateWindow(title, appID string, width, height int) error {
	w.surf = w.compositor.CreateSurface()
	w.wmSurf = w.wm.GetXdgSurface(w.surf, wl.XdgSurfaceListener{
		Configure: func(serial uint32) { w.h.Configure(serial) },
	})
	w.topLvl = w.wmSurf.GetToplevel(wl.ToplevelListener{
		Configure: func(width, height int32, states []byte) { w.h.ToplevelConfigure(width, height) },
		Close:     func() { w.h.Close() },
	})
	w.topLvl.SetTitle(title)
	if appID != "" {
		w.topLvl.SetAppID(appID)
	}
	w.SetOpaqueRegion(width, height)
	w.surf.Commit()
	return w.conn.Err()
}

func (w *Wayland) SetOpaqueRegion(width, height int) {
	reg := w.compositor.CreateRegion()
	reg.Add(0, 0, width, height)
	w.surf.SetOpaqueRegion(reg)
	reg.Destroy()
}

func (w *Wayland) AckConfigure(serial uint32) {
	w.wmSurf.AckConfigure(serial)
}

func (w *Wayland) Pong(serial uint32) {
	w.wm.Pong(serial)
}

func (w *Wayland) Present(buf shm.Handle, width, height int) {
	b := buf.(*wlBuffer)
	w.surf.Attach(b.buf, 0, 0)
	w.surf.DamageBuffer(0, 0, width, height)
	w.surf.Commit()
}

func (w *Wayland) GetKeyboard() {
	if w.seat == nil || w.keyboard != nil {
		return
	}
	w.keyboard = w.seat.GetKeyboard(wl.KeyboardListener{
		Keymap: func(format uint32, fd int, size uint32) { w.h.Keymap(format, fd, size) },
		Enter:  func(serial, surf uint32, keys []byte) { w.h.Enter(serial) },
		Leave:  func(serial, surf uint32) { w.h.Leave(serial) },
		Key: func(serial, t, key, state uint32) {
			w.h.Key(serial, t, key, state == wl.KeyStatePressed)
		},
		Modifiers: func(serial, depressed, latched, locked, group uint32) {
			w.h.KeyModifiers(serial, depressed, latched, locked, group)
		},
		RepeatInfo: func(rate, delay int32) { w.h.RepeatInfo(rate, delay) },
	})
}

func (w *Wayland) ReleaseKeyboard() {
	if w.keyboard != nil {
		w.keyboard.Release()
		w.keyboard = nil
	}
}

func (w *Wayland) DestroyWindow() {
	if w.topLvl != nil {
		w.topLvl.Destroy()
		w.topLvl = nil
	}
	if w.wmSurf != nil {
		w.wmSurf.Destroy()
		w.wmSurf = nil
	}
	if w.surf != nil {
		w.surf.Destroy()
		w.surf = nil
	}
}

func (w *Wayland) ReleaseGlobals() {
	w.ReleaseKeyboard()
	if w.seat != nil {
		w.seat.Release()
		w.seat = nil
	}
	if w.shm != nil {
		w.shm.Destroy()
		w.shm = nil
	}
	if w.compositor != nil {
		w.compositor.Destroy()
		w.compositor = nil
	}
	if w.wm != nil {
		w.wm.Destroy()
		w.wm = nil
	}
	if w.reg != nil {
		w.reg.Destroy()
		w.reg = nil
	}
	w.globals = nil
}

func (w *Wayland) Disconnect() {
	w.conn.Flush()
	w.conn.Close()
}
