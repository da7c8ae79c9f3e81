// SPDX-License-Identifier: Unlicense OR MIT

//go:build linux

package window_test

import (
	"bytes"
	"errors"
	"image"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"

	"fbwin.org/app/internal/keyboard"
	"fbwin.org/app/internal/window"
	"fbwin.org/app/internal/wltest"
	"fbwin.org/io/event"
	"fbwin.org/io/key"
	"fbwin.org/io/system"
)

const testNow = 7 * time.Millisecond

func newBackend(t *testing.T) *wltest.Backend {
	t.Helper()
	b, err := wltest.New()
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func options(logBuf *bytes.Buffer) window.Options {
	return window.Options{
		Title:  "test",
		Width:  320,
		Height: 240,
		Logger: log.New(logBuf, "", 0),
		Now:    func() time.Duration { return testNow },
	}
}

func newSession(t *testing.T, b *wltest.Backend, opts window.Options) *window.Session {
	t.Helper()
	s, err := window.New(b, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Destroy)
	return s
}

func ready(t *testing.T) (*window.Session, *wltest.Backend, *bytes.Buffer) {
	t.Helper()
	b := newBackend(t)
	logBuf := new(bytes.Buffer)
	return newSession(t, b, options(logBuf)), b, logBuf
}

func drain(s *window.Session) []event.Event {
	var evts []event.Event
	for {
		e, ok := s.NextEvent()
		if !ok {
			return evts
		}
		evts = append(evts, e)
	}
}

func numFDs(t *testing.T) int32 {
	t.Helper()
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		t.Fatal(err)
	}
	n, err := p.NumFDs()
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func memfd(t *testing.T, content string) (int, uint32) {
	t.Helper()
	fd, err := unix.MemfdCreate("keymap", unix.MFD_CLOEXEC)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := unix.Write(fd, []byte(content)); err != nil {
		t.Fatal(err)
	}
	return fd, uint32(len(content))
}

func TestCreate(t *testing.T) {
	s, b, _ := ready(t)
	if s.Stage() != window.StageReady {
		t.Errorf("stage %v, want StageReady", s.Stage())
	}
	if got := s.Size(); got != image.Pt(320, 240) {
		t.Errorf("size %v", got)
	}
	if b.Count("ack_configure 1") != 1 {
		t.Errorf("first configure not acknowledged: %q", b.Requests)
	}
	if b.Live() != 2 {
		t.Errorf("%d live buffers, want 2", b.Live())
	}
	if i, j := b.Index("create_buffer"), b.Index("create_window"); i == -1 || i > j {
		t.Errorf("buffers must be created before the window: %q", b.Requests)
	}
	e, ok := s.Framebuffer()
	if !ok || e.Width != 320 || e.Height != 240 || e.Stride != 320*4 || len(e.Data) != 320*240*4 {
		t.Errorf("framebuffer %+v, %v", e, ok)
	}
	if evts := drain(s); len(evts) != 0 {
		t.Errorf("unexpected events %v", evts)
	}
}

func TestCreateFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(b *wltest.Backend)
		check func(t *testing.T, err error)
	}{
		{"missing shm", func(b *wltest.Backend) { b.Globals.Shm = false }, func(t *testing.T, err error) {
			if !errors.Is(err, window.ErrMissingGlobal) || !strings.Contains(err.Error(), "wl_shm") {
				t.Errorf("error %v", err)
			}
		}},
		{"missing wm base", func(b *wltest.Backend) { b.Globals.WmBase = false }, func(t *testing.T, err error) {
			if !errors.Is(err, window.ErrMissingGlobal) || !strings.Contains(err.Error(), "xdg_wm_base") {
				t.Errorf("error %v", err)
			}
		}},
		{"discover error", func(b *wltest.Backend) { b.DiscoverErr = errors.New("registry failed") }, nil},
		{"buffer error", func(b *wltest.Backend) { b.BufferErr = errors.New("no memory") }, nil},
		{"no configure", func(b *wltest.Backend) { b.NoConfigure = true }, func(t *testing.T, err error) {
			if !errors.Is(err, wltest.ErrWouldBlock) {
				t.Errorf("error %v", err)
			}
		}},
	}
	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			before := numFDs(t)
			b := newBackend(t)
			tst.setup(b)
			s, err := window.New(b, options(new(bytes.Buffer)))
			if err == nil {
				s.Destroy()
				t.Fatal("New succeeded")
			}
			if tst.check != nil {
				tst.check(t, err)
			}
			if !b.Closed() {
				t.Error("backend not disconnected")
			}
			if b.Live() != 0 {
				t.Errorf("%d buffers left alive", b.Live())
			}
			if after := numFDs(t); after != before {
				t.Errorf("%d descriptors before, %d after", before, after)
			}
		})
	}
}

func TestConfigureNonPositive(t *testing.T) {
	s, b, _ := ready(t)
	nbuf := len(b.Buffers)
	acks := b.Count("ack_configure")
	b.Configure(0, 0)
	b.Send(func(h window.Handler) { h.ToplevelConfigure(-1, 300) })
	b.Send(func(h window.Handler) { h.ToplevelConfigure(300, 0) })
	b.Configure(320, 240)
	if !s.Wait(0) {
		t.Fatal("window closed")
	}
	if got := s.Size(); got != image.Pt(320, 240) {
		t.Errorf("size changed to %v", got)
	}
	if len(b.Buffers) != nbuf {
		t.Errorf("buffers recreated")
	}
	if evts := drain(s); len(evts) != 0 {
		t.Errorf("events %v", evts)
	}
	if n := b.Count("ack_configure") - acks; n != 2 {
		t.Errorf("%d configures acknowledged, want 2", n)
	}
}

func TestResize(t *testing.T) {
	s, b, _ := ready(t)
	old := append([]*wltest.Buffer(nil), b.Buffers...)
	b.Configure(640, 480)
	if !s.Wait(0) {
		t.Fatal("window closed")
	}
	evts := drain(s)
	want := []event.Event{system.ResizeEvent{Size: image.Pt(640, 480), Time: testNow}}
	if len(evts) != 1 || evts[0] != want[0] {
		t.Fatalf("events %v, want %v", evts, want)
	}
	for _, buf := range old {
		if !buf.Destroyed {
			t.Errorf("old buffer %d not destroyed", buf.ID)
		}
	}
	if b.Live() != 2 {
		t.Errorf("%d live buffers", b.Live())
	}
	if b.Count("opaque_region 640x480") != 1 {
		t.Errorf("opaque region not updated: %q", b.Requests)
	}
	e, ok := s.Framebuffer()
	if !ok || e.Width != 640 || e.Height != 480 {
		t.Errorf("framebuffer %dx%d", e.Width, e.Height)
	}
}

func TestResizeFailure(t *testing.T) {
	s, b, _ := ready(t)
	b.BufferErr = errors.New("no memory")
	b.Configure(500, 400)
	if s.Wait(0) {
		t.Fatal("window still open after failed resize")
	}
	if err := s.Err(); err == nil || !strings.Contains(err.Error(), "no memory") {
		t.Errorf("Err() = %v", err)
	}
	if evts := drain(s); len(evts) != 1 || evts[0] != (system.QuitEvent{Time: testNow}) {
		t.Errorf("events %v", evts)
	}
	if _, ok := s.Framebuffer(); ok {
		t.Error("framebuffer available after failed resize")
	}
	if b.Live() != 0 {
		t.Errorf("%d live buffers", b.Live())
	}
}

func TestResizeFailureTeardown(t *testing.T) {
	s, b, _ := ready(t)
	b.BufferErr = errors.New("no memory")
	b.Configure(500, 400)
	s.Wait(0)
	s.Destroy()
	// The connection is still healthy, so the destructors are flushed.
	if n := b.Count("roundtrip"); n != 1 {
		t.Errorf("%d roundtrips during teardown, want 1: %q", n, b.Requests)
	}
}

func TestBrokenConnectionTeardown(t *testing.T) {
	s, b, _ := ready(t)
	b.FlushErr = unix.EPIPE
	s.Wait(0)
	s.Destroy()
	if n := b.Count("roundtrip"); n != 0 {
		t.Errorf("%d roundtrips on a broken connection: %q", n, b.Requests)
	}
	if !b.Closed() {
		t.Error("backend not disconnected")
	}
}

func TestRotation(t *testing.T) {
	s, b, _ := ready(t)
	e1, ok := s.Framebuffer()
	if !ok {
		t.Fatal("no framebuffer")
	}
	s.Present()
	if !e1.Busy() {
		t.Error("presented buffer not busy")
	}
	if b.Attached != e1.Handle {
		t.Error("wrong buffer attached")
	}
	if b.Count("damage_buffer 320x240") != 1 || b.Count("commit") != 1 {
		t.Errorf("requests %q", b.Requests)
	}
	e2, ok := s.Framebuffer()
	if !ok || e2 == e1 {
		t.Fatal("second framebuffer is not a different buffer")
	}
	if e2.Busy() {
		t.Error("free buffer busy")
	}
	if !s.Wait(0) || !e1.Busy() {
		t.Error("buffer freed without release")
	}
	b.Release(e1.Handle.(*wltest.Buffer))
	if !s.Wait(0) {
		t.Fatal("window closed")
	}
	if e1.Busy() {
		t.Error("buffer busy after release")
	}
}

func TestAllBuffersBusy(t *testing.T) {
	s, _, logBuf := ready(t)
	for i := 0; i < 2; i++ {
		if _, ok := s.Framebuffer(); !ok {
			t.Fatal("no framebuffer")
		}
		s.Present()
	}
	e, ok := s.Framebuffer()
	if !ok || e == nil {
		t.Fatal("Framebuffer failed with all buffers busy")
	}
	if !strings.Contains(logBuf.String(), "all 2 buffers busy") {
		t.Errorf("log = %q", logBuf.String())
	}
}

func TestPing(t *testing.T) {
	s, b, _ := ready(t)
	b.Send(func(h window.Handler) { h.Ping(42) })
	if !s.Wait(0) {
		t.Fatal("window closed")
	}
	if b.Count("pong 42") != 1 {
		t.Errorf("ping not answered: %q", b.Requests)
	}
}

func TestClose(t *testing.T) {
	s, b, _ := ready(t)
	b.Send(func(h window.Handler) { h.Close() })
	if s.Wait(-1) {
		t.Fatal("Wait reports open window after close")
	}
	if s.Stage() != window.StageClosed {
		t.Errorf("stage %v", s.Stage())
	}
	if evts := drain(s); len(evts) != 1 || evts[0] != (system.QuitEvent{Time: testNow}) {
		t.Errorf("events %v", evts)
	}
	if s.Wait(0) {
		t.Error("Wait after close")
	}
	if _, ok := s.Framebuffer(); ok {
		t.Error("framebuffer available after close")
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v after compositor close", s.Err())
	}
}

func TestCloseBeforeConfigure(t *testing.T) {
	b := newBackend(t)
	b.NoConfigure = true
	b.Send(func(h window.Handler) { h.Close() })
	b.Configure(0, 0)
	s := newSession(t, b, options(new(bytes.Buffer)))
	if s.Stage() != window.StageClosed || !s.Closed() {
		t.Errorf("stage %v closed=%v, want StageClosed", s.Stage(), s.Closed())
	}
	if _, ok := s.Framebuffer(); ok {
		t.Error("framebuffer available on a closed window")
	}
	if s.Wait(0) {
		t.Error("Wait reports an open window")
	}
	if evts := drain(s); len(evts) != 1 || evts[0] != (system.QuitEvent{Time: testNow}) {
		t.Errorf("events %v", evts)
	}
}

func TestSeatRemoved(t *testing.T) {
	s, b, _ := ready(t)
	b.Send(func(h window.Handler) { h.SeatCapabilities(true) })
	b.Send(func(h window.Handler) { h.Enter(1) })
	s.Wait(0)
	if !s.Focused() {
		t.Fatal("window not focused")
	}
	drain(s)
	b.Send(func(h window.Handler) { h.SeatRemoved() })
	s.Wait(0)
	if s.Focused() || s.Modifiers() != 0 {
		t.Errorf("focus %v modifiers %v after seat removal", s.Focused(), s.Modifiers())
	}
	if evts := drain(s); len(evts) != 1 || evts[0] != (key.FocusEvent{Focus: false, Time: testNow}) {
		t.Errorf("events %v, want focus out", evts)
	}
	// A new seat acquires a new keyboard.
	b.Send(func(h window.Handler) { h.SeatCapabilities(true) })
	s.Wait(0)
	if n := b.Count("get_keyboard"); n != 2 {
		t.Errorf("%d keyboards acquired, want 2", n)
	}
}

func TestEventOrder(t *testing.T) {
	s, b, _ := ready(t)
	b.Send(func(h window.Handler) { h.Enter(1) })
	b.Send(func(h window.Handler) { h.Key(2, 100, 30, true) })
	b.Send(func(h window.Handler) { h.Key(3, 110, 30, false) })
	b.Configure(800, 600)
	b.Send(func(h window.Handler) { h.Leave(4) })
	b.Send(func(h window.Handler) { h.Close() })
	if s.Wait(0) {
		t.Fatal("window open after close")
	}
	want := []event.Event{
		key.FocusEvent{Focus: true, Time: testNow},
		key.Event{Code: 30, State: key.Press, Time: 100 * time.Millisecond},
		key.Event{Code: 30, State: key.Release, Time: 110 * time.Millisecond},
		system.ResizeEvent{Size: image.Pt(800, 600), Time: testNow},
		key.FocusEvent{Focus: false, Time: testNow},
		system.QuitEvent{Time: testNow},
	}
	evts := drain(s)
	if len(evts) != len(want) {
		t.Fatalf("events %v, want %v", evts, want)
	}
	for i := range want {
		if evts[i] != want[i] {
			t.Errorf("event %d = %#v, want %#v", i, evts[i], want[i])
		}
	}
}

func TestQueueOverflow(t *testing.T) {
	b := newBackend(t)
	opts := options(new(bytes.Buffer))
	opts.QueueSize = 4
	s := newSession(t, b, opts)
	for i := 0; i < 3; i++ {
		b.Send(func(h window.Handler) { h.Enter(0) })
		b.Send(func(h window.Handler) { h.Leave(0) })
	}
	s.Wait(0)
	evts := drain(s)
	if len(evts) != 4 || s.Dropped() != 2 {
		t.Fatalf("%d events, %d dropped", len(evts), s.Dropped())
	}
	for i, e := range evts {
		if want := i%2 == 0; e.(key.FocusEvent).Focus != want {
			t.Errorf("event %d = %v", i, e)
		}
	}
}

func TestWaitDispatchesQueued(t *testing.T) {
	s, b, _ := ready(t)
	b.Queue(func(h window.Handler) { h.Enter(1) })
	if !s.Wait(0) {
		t.Fatal("window closed")
	}
	if !s.Focused() {
		t.Error("queued event not dispatched")
	}
	if b.Readers() != 0 {
		t.Errorf("%d read intents outstanding", b.Readers())
	}
}

func TestWaitTimeout(t *testing.T) {
	s, b, _ := ready(t)
	cancels := b.Count("cancel_read")
	start := time.Now()
	if !s.Wait(30 * time.Millisecond) {
		t.Fatal("window closed")
	}
	if d := time.Since(start); d < 25*time.Millisecond {
		t.Errorf("Wait returned after %v", d)
	}
	if b.Count("cancel_read") != cancels+1 || b.Readers() != 0 {
		t.Error("read intent not cancelled")
	}
}

func TestWaitHangup(t *testing.T) {
	s, b, _ := ready(t)
	b.Hangup()
	if s.Wait(-1) {
		t.Fatal("Wait reports open window after hangup")
	}
	if s.Err() == nil {
		t.Error("no error after hangup")
	}
	if b.Readers() != 0 {
		t.Error("read intent not cancelled")
	}
	if evts := drain(s); len(evts) != 1 || evts[0] != (system.QuitEvent{Time: testNow}) {
		t.Errorf("events %v", evts)
	}
}

func TestWaitFlushError(t *testing.T) {
	s, b, _ := ready(t)
	b.FlushErr = unix.EAGAIN
	if !s.Wait(0) {
		t.Fatal("EAGAIN closed the window")
	}
	b.FlushErr = unix.EPIPE
	if s.Wait(0) {
		t.Fatal("window open after flush failure")
	}
	if !errors.Is(s.Err(), unix.EPIPE) {
		t.Errorf("Err() = %v", s.Err())
	}
	if b.Readers() != 0 {
		t.Error("read intent not cancelled")
	}
}

func TestProtocolError(t *testing.T) {
	s, b, _ := ready(t)
	b.Send(func(h window.Handler) { h.ProtocolError(errors.New("invalid object")) })
	if s.Wait(0) {
		t.Fatal("window open after protocol error")
	}
	if s.Err() == nil || s.Err().Error() != "invalid object" {
		t.Errorf("Err() = %v", s.Err())
	}
}

type testCompiler struct{}

func (testCompiler) Compile(data []byte) (keyboard.Keymap, error) { return testKeymap{}, nil }

type testKeymap struct{}

func (testKeymap) NewState() (keyboard.State, error) { return new(testState), nil }
func (testKeymap) Destroy()                          {}

type testState struct{ mask uint32 }

func (s *testState) UpdateMask(depressed, latched, locked, group uint32) {
	s.mask = depressed | latched | locked
}

func (s *testState) OneSym(keycode uint32) key.Sym {
	if keycode == 38 {
		return 'a'
	}
	return 0
}

func (s *testState) ModActive(name string) bool {
	return name == keyboard.ModNameCtrl && s.mask&4 != 0
}

func (s *testState) UTF8(keycode uint32) []byte {
	if keycode == 38 {
		return []byte("a")
	}
	return nil
}

func (s *testState) Destroy() {}

func TestKeyboard(t *testing.T) {
	b := newBackend(t)
	opts := options(new(bytes.Buffer))
	opts.Keymaps = testCompiler{}
	s := newSession(t, b, opts)
	b.Send(func(h window.Handler) { h.SeatCapabilities(true) })
	b.Send(func(h window.Handler) { h.RepeatInfo(25, 600) })
	if !s.Wait(0) || !b.Keyboard() {
		t.Fatal("keyboard not acquired")
	}
	fd, size := memfd(t, "xkb_keymap {};")
	b.SendKeymap(keyboard.FormatXKBV1, fd, size)
	b.Send(func(h window.Handler) { h.Enter(1) })
	// Control depressed, caps lock and num lock locked.
	b.Send(func(h window.Handler) { h.KeyModifiers(2, 4, 0, 2|16, 0) })
	b.Send(func(h window.Handler) { h.Key(3, 1234, 30, true) })
	if !s.Wait(0) {
		t.Fatal("window closed")
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != unix.EBADF {
		t.Error("keymap descriptor left open")
	}
	if s.Modifiers() != key.ModCtrl {
		t.Errorf("modifiers %v", s.Modifiers())
	}
	if rate, delay := s.KeyRepeat(); rate != 25 || delay != 600*time.Millisecond {
		t.Errorf("repeat %d %v", rate, delay)
	}
	want := []event.Event{
		key.FocusEvent{Focus: true, Time: testNow},
		key.Event{Code: 30, Sym: 'a', Name: "A", Modifiers: key.ModCtrl, Rune: 'a', State: key.Press, Time: 1234 * time.Millisecond},
	}
	evts := drain(s)
	if len(evts) != 2 || evts[0] != want[0] || evts[1] != want[1] {
		t.Fatalf("events %#v, want %#v", evts, want)
	}
	b.Send(func(h window.Handler) { h.SeatCapabilities(false) })
	s.Wait(0)
	if b.Keyboard() || b.Count("release_keyboard") != 1 {
		t.Errorf("keyboard not released: %q", b.Requests)
	}
	if s.Focused() || s.Modifiers() != 0 {
		t.Error("focus kept after keyboard removal")
	}
}

func TestDestroy(t *testing.T) {
	var nilSession *window.Session
	nilSession.Destroy()

	s, b, _ := ready(t)
	b.Send(func(h window.Handler) { h.SeatCapabilities(true) })
	s.Wait(0)
	if _, ok := s.Framebuffer(); !ok {
		t.Fatal("no framebuffer")
	}
	s.Present()
	s.Destroy()
	// A second Destroy must not disconnect again.
	s.Destroy()
	order := []string{"destroy_buffer", "release_keyboard", "destroy_window", "roundtrip", "release_globals", "disconnect"}
	last := -1
	for _, req := range order {
		i := b.Index(req)
		if i <= last {
			t.Fatalf("%s out of order: %q", req, b.Requests)
		}
		last = i
	}
	if b.Live() != 0 {
		t.Errorf("%d live buffers", b.Live())
	}
	if s.Wait(0) {
		t.Error("Wait succeeded on destroyed session")
	}
}

func TestTeardownReleasesDescriptors(t *testing.T) {
	numFDs(t)
	for _, broken := range []bool{false, true} {
		before := numFDs(t)
		b := newBackend(t)
		s, err := window.New(b, options(new(bytes.Buffer)))
		if err != nil {
			t.Fatal(err)
		}
		b.Send(func(h window.Handler) { h.SeatCapabilities(true) })
		s.Wait(0)
		if _, ok := s.Framebuffer(); !ok {
			t.Fatal("no framebuffer")
		}
		// Leave a busy buffer and an undispatched keymap behind.
		s.Present()
		fd, size := memfd(t, "xkb_keymap {};")
		b.SendKeymap(keyboard.FormatXKBV1, fd, size)
		if broken {
			b.FlushErr = unix.EPIPE
			s.Wait(0)
		}
		s.Destroy()
		if after := numFDs(t); after != before {
			t.Errorf("broken=%v: %d descriptors before, %d after", broken, before, after)
		}
	}
}
