// SPDX-License-Identifier: Unlicense OR MIT

//go:build linux || freebsd

package wl

var (
	displayInterface    = &Interface{Name: "wl_display", Events: []string{"ous", "u"}}
	registryInterface   = &Interface{Name: "wl_registry", Events: []string{"usu", "u"}}
	callbackInterface   = &Interface{Name: "wl_callback", Events: []string{"u"}}
	compositorInterface = &Interface{Name: "wl_compositor"}
	regionInterface     = &Interface{Name: "wl_region"}
	surfaceInterface    = &Interface{Name: "wl_surface", Events: []string{"o", "o", "i", "u"}}
	shmInterface        = &Interface{Name: "wl_shm", Events: []string{"u"}}
	shmPoolInterface    = &Interface{Name: "wl_shm_pool"}
	bufferInterface     = &Interface{Name: "wl_buffer", Events: []string{""}}
	seatInterface       = &Interface{Name: "wl_seat", Events: []string{"u", "s"}}
	keyboardInterface   = &Interface{Name: "wl_keyboard", Events: []string{"uhu", "uoa", "uo", "uuuu", "uuuuu", "ii"}}
	wmBaseInterface     = &Interface{Name: "xdg_wm_base", Events: []string{"u"}}
	xdgSurfaceInterface = &Interface{Name: "xdg_surface", Events: []string{"u"}}
	toplevelInterface   = &Interface{Name: "xdg_toplevel", Events: []string{"iia", "", "ii", "a"}}
)

// Global interface names.
const (
	CompositorName = "wl_compositor"
	ShmName        = "wl_shm"
	SeatName       = "wl_seat"
	WmBaseName     = "xdg_wm_base"
)

// ShmFormatXRGB8888 is the wl_shm format of 32-bit pixels with an unused
// alpha byte.
const ShmFormatXRGB8888 = 1

// Seat capabilities.
const (
	SeatCapabilityPointer  = 1
	SeatCapabilityKeyboard = 2
	SeatCapabilityTouch    = 4
)

// wl_keyboard key states.
const (
	KeyStateReleased = 0
	KeyStatePressed  = 1
)

// Display is the wl_display singleton.
type Display struct {
	Proxy
}

func (d *Display) dispatch(m *Message) {
	c := d.conn
	switch m.Opcode {
	case 0:
		id, code, msg := m.Uint32(), m.Uint32(), m.String()
		iface := "unknown"
		if obj, ok := c.objects[id]; ok {
			iface = obj.proxy().iface.Name
		}
		c.fail(&ProtocolError{Object: id, Interface: iface, Code: code, Message: msg})
	case 1:
		c.release(m.Uint32())
	}
}

// Sync requests a callback that fires once the compositor has processed
// every prior request.
func (c *Conn) Sync(done func(data uint32)) *Callback {
	cb := &Callback{done: done}
	c.register(cb, callbackInterface, 1)
	c.display.send(0, cb)
	return cb
}

// Registry creates a registry object. Globals are announced to l.
func (c *Conn) Registry(l RegistryListener) *Registry {
	r := &Registry{l: l}
	c.register(r, registryInterface, 1)
	c.display.send(1, r)
	return r
}

// Callback is a wl_callback.
type Callback struct {
	Proxy
	done func(data uint32)
}

func (cb *Callback) dispatch(m *Message) {
	data := m.Uint32()
	// The compositor destroys the callback after done.
	cb.zombie = true
	if cb.done != nil {
		cb.done(data)
	}
}

// RegistryListener receives global announcements.
type RegistryListener struct {
	Global       func(name uint32, iface string, version uint32)
	GlobalRemove func(name uint32)
}

// Registry is a wl_registry.
type Registry struct {
	Proxy
	l RegistryListener
}

func (r *Registry) dispatch(m *Message) {
	switch m.Opcode {
	case 0:
		name, iface, version := m.Uint32(), m.String(), m.Uint32()
		if r.l.Global != nil && m.Err() == nil {
			r.l.Global(name, iface, version)
		}
	case 1:
		name := m.Uint32()
		if r.l.GlobalRemove != nil {
			r.l.GlobalRemove(name)
		}
	}
}

func (r *Registry) bind(name uint32, obj object, iface *Interface, version uint32) {
	r.conn.register(obj, iface, version)
	r.send(0, name, iface.Name, version, obj)
}

// Destroy destroys the registry on the client side.
func (r *Registry) Destroy() { r.zombie = true }

// BindCompositor binds the wl_compositor global name.
func (r *Registry) BindCompositor(name, version uint32) *Compositor {
	c := new(Compositor)
	r.bind(name, c, compositorInterface, version)
	return c
}

// BindShm binds the wl_shm global name.
func (r *Registry) BindShm(name, version uint32, l ShmListener) *Shm {
	s := &Shm{l: l}
	r.bind(name, s, shmInterface, version)
	return s
}

// BindSeat binds the wl_seat global name.
func (r *Registry) BindSeat(name, version uint32, l SeatListener) *Seat {
	s := &Seat{l: l}
	r.bind(name, s, seatInterface, version)
	return s
}

// BindWmBase binds the xdg_wm_base global name.
func (r *Registry) BindWmBase(name, version uint32, l WmBaseListener) *WmBase {
	w := &WmBase{l: l}
	r.bind(name, w, wmBaseInterface, version)
	return w
}

// noEvents is embedded by objects without events.
type noEvents struct{}

func (noEvents) dispatch(m *Message) {}

// Compositor is a wl_compositor.
type Compositor struct {
	Proxy
	noEvents
}

// CreateSurface creates a surface.
func (c *Compositor) CreateSurface() *Surface {
	s := new(Surface)
	c.conn.register(s, surfaceInterface, c.version)
	c.send(0, s)
	return s
}

// CreateRegion creates a region.
func (c *Compositor) CreateRegion() *Region {
	r := new(Region)
	c.conn.register(r, regionInterface, c.version)
	c.send(1, r)
	return r
}

// Destroy destroys the compositor on the client side.
func (c *Compositor) Destroy() { c.zombie = true }

// Region is a wl_region.
type Region struct {
	Proxy
	noEvents
}

func (r *Region) Destroy() { r.destroy(0) }

func (r *Region) Add(x, y, width, height int) {
	r.send(1, int32(x), int32(y), int32(width), int32(height))
}

// Surface is a wl_surface.
type Surface struct {
	Proxy
	noEvents
}

func (s *Surface) Destroy() { s.destroy(0) }

// Attach attaches b, or detaches the current buffer if b is nil.
func (s *Surface) Attach(b *Buffer, x, y int) {
	if b == nil {
		s.send(1, nil, int32(x), int32(y))
		return
	}
	s.send(1, b, int32(x), int32(y))
}

// Damage marks a region in surface coordinates damaged.
func (s *Surface) Damage(x, y, width, height int) {
	s.send(2, int32(x), int32(y), int32(width), int32(height))
}

func (s *Surface) SetOpaqueRegion(r *Region) {
	s.send(4, r)
}

func (s *Surface) Commit() { s.send(6) }

// DamageBuffer marks a region in buffer coordinates damaged. It requires
// version 4; older surfaces fall back to Damage.
func (s *Surface) DamageBuffer(x, y, width, height int) {
	if s.version < 4 {
		s.Damage(x, y, width, height)
		return
	}
	s.send(9, int32(x), int32(y), int32(width), int32(height))
}

// ShmListener receives wl_shm events.
type ShmListener struct {
	Format func(format uint32)
}

// Shm is a wl_shm.
type Shm struct {
	Proxy
	l ShmListener
}

func (s *Shm) dispatch(m *Message) {
	if f := m.Uint32(); s.l.Format != nil {
		s.l.Format(f)
	}
}

// CreatePool creates a pool backed by size bytes of fd. The caller keeps
// ownership of fd.
func (s *Shm) CreatePool(f, size int) *ShmPool {
	p := new(ShmPool)
	s.conn.register(p, shmPoolInterface, s.version)
	s.send(0, p, fd(f), int32(size))
	return p
}

// Destroy releases the shm global. wl_shm.release exists from version 2.
func (s *Shm) Destroy() {
	if s.version >= 2 {
		s.destroy(1)
		return
	}
	s.zombie = true
}

// ShmPool is a wl_shm_pool.
type ShmPool struct {
	Proxy
	noEvents
}

// CreateBuffer creates a buffer from the pool memory.
func (p *ShmPool) CreateBuffer(offset, width, height, stride int, format uint32, l BufferListener) *Buffer {
	b := &Buffer{l: l}
	p.conn.register(b, bufferInterface, 1)
	p.send(0, b, int32(offset), int32(width), int32(height), int32(stride), format)
	return b
}

// Destroy destroys the pool. Buffers created from it stay valid.
func (p *ShmPool) Destroy() { p.destroy(1) }

// BufferListener receives wl_buffer events.
type BufferListener struct {
	Release func(b *Buffer)
}

// Buffer is a wl_buffer.
type Buffer struct {
	Proxy
	l BufferListener
}

func (b *Buffer) dispatch(m *Message) {
	if b.l.Release != nil {
		b.l.Release(b)
	}
}

func (b *Buffer) Destroy() { b.destroy(0) }

// SeatListener receives wl_seat events.
type SeatListener struct {
	Capabilities func(caps uint32)
	Name         func(name string)
}

// Seat is a wl_seat.
type Seat struct {
	Proxy
	l SeatListener
}

func (s *Seat) dispatch(m *Message) {
	switch m.Opcode {
	case 0:
		if caps := m.Uint32(); s.l.Capabilities != nil {
			s.l.Capabilities(caps)
		}
	case 1:
		if name := m.String(); s.l.Name != nil && m.Err() == nil {
			s.l.Name(name)
		}
	}
}

// GetKeyboard creates the keyboard device of the seat.
func (s *Seat) GetKeyboard(l KeyboardListener) *Keyboard {
	k := &Keyboard{l: l}
	s.conn.register(k, keyboardInterface, s.version)
	s.send(1, k)
	return k
}

// Release destroys the seat. wl_seat.release exists from version 5.
func (s *Seat) Release() {
	if s.version >= 5 {
		s.destroy(3)
		return
	}
	s.zombie = true
}

// KeyboardListener receives wl_keyboard events. Keymap receives ownership
// of fd; if Keymap is nil the descriptor is closed.
type KeyboardListener struct {
	Keymap     func(format uint32, fd int, size uint32)
	Enter      func(serial uint32, surface uint32, keys []byte)
	Leave      func(serial uint32, surface uint32)
	Key        func(serial, time, key, state uint32)
	Modifiers  func(serial, depressed, latched, locked, group uint32)
	RepeatInfo func(rate, delay int32)
}

// Keyboard is a wl_keyboard.
type Keyboard struct {
	Proxy
	l KeyboardListener
}

func (k *Keyboard) dispatch(m *Message) {
	l := k.l
	switch m.Opcode {
	case 0:
		format, f, size := m.Uint32(), m.Fd(), m.Uint32()
		if f < 0 {
			return
		}
		if l.Keymap == nil || m.Err() != nil {
			closeFds([]int{f})
			return
		}
		l.Keymap(format, f, size)
	case 1:
		serial, surf, keys := m.Uint32(), m.Uint32(), m.Array()
		if l.Enter != nil && m.Err() == nil {
			l.Enter(serial, surf, keys)
		}
	case 2:
		serial, surf := m.Uint32(), m.Uint32()
		if l.Leave != nil {
			l.Leave(serial, surf)
		}
	case 3:
		serial, t, key, state := m.Uint32(), m.Uint32(), m.Uint32(), m.Uint32()
		if l.Key != nil && m.Err() == nil {
			l.Key(serial, t, key, state)
		}
	case 4:
		serial, dep, lat, lock, group := m.Uint32(), m.Uint32(), m.Uint32(), m.Uint32(), m.Uint32()
		if l.Modifiers != nil && m.Err() == nil {
			l.Modifiers(serial, dep, lat, lock, group)
		}
	case 5:
		rate, delay := m.Int32(), m.Int32()
		if l.RepeatInfo != nil && m.Err() == nil {
			l.RepeatInfo(rate, delay)
		}
	}
}

// Release destroys the keyboard. wl_keyboard.release exists from
// version 3.
func (k *Keyboard) Release() {
	if k.version >= 3 {
		k.destroy(0)
		return
	}
	k.zombie = true
}

// WmBaseListener receives xdg_wm_base events.
type WmBaseListener struct {
	Ping func(serial uint32)
}

// WmBase is a xdg_wm_base.
type WmBase struct {
	Proxy
	l WmBaseListener
}

func (w *WmBase) dispatch(m *Message) {
	if serial := m.Uint32(); w.l.Ping != nil {
		w.l.Ping(serial)
	}
}

func (w *WmBase) Destroy() { w.destroy(0) }

func (w *WmBase) Pong(serial uint32) { w.send(3, serial) }

// GetXdgSurface assigns the xdg_surface role to s.
func (w *WmBase) GetXdgSurface(s *Surface, l XdgSurfaceListener) *XdgSurface {
	x := &XdgSurface{l: l}
	w.conn.register(x, xdgSurfaceInterface, w.version)
	w.send(2, x, s)
	return x
}

// XdgSurfaceListener receives xdg_surface events.
type XdgSurfaceListener struct {
	Configure func(serial uint32)
}

// XdgSurface is a xdg_surface.
type XdgSurface struct {
	Proxy
	l XdgSurfaceListener
}

func (x *XdgSurface) dispatch(m *Message) {
	if serial := m.Uint32(); x.l.Configure != nil {
		x.l.Configure(serial)
	}
}

func (x *XdgSurface) Destroy() { x.destroy(0) }

// GetToplevel creates the toplevel role object.
func (x *XdgSurface) GetToplevel(l ToplevelListener) *Toplevel {
	t := &Toplevel{l: l}
	x.conn.register(t, toplevelInterface, x.version)
	x.send(1, t)
	return t
}

func (x *XdgSurface) AckConfigure(serial uint32) { x.send(4, serial) }

// ToplevelListener receives xdg_toplevel events.
type ToplevelListener struct {
	Configure func(width, height int32, states []byte)
	Close     func()
}

// Toplevel is a xdg_toplevel.
type Toplevel struct {
	Proxy
	l ToplevelListener
}

func (t *Toplevel) dispatch(m *Message) {
	switch m.Opcode {
	case 0:
		w, h, states := m.Int32(), m.Int32(), m.Array()
		if t.l.Configure != nil && m.Err() == nil {
			t.l.Configure(w, h, states)
		}
	case 1:
		if t.l.Close != nil {
			t.l.Close()
		}
	}
}

func (t *Toplevel) Destroy() { t.destroy(0) }

func (t *Toplevel) SetTitle(title string) { t.send(2, title) }

func (t *Toplevel) SetAppID(id string) { t.send(3, id) }
