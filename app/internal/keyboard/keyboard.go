// SPDX-License-Identifier: Unlicense OR MIT

//go:build unix

// Package keyboard translates wl_keyboard callbacks into key events
// using a compiled keymap.
package keyboard

import (
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"golang.org/x/sys/unix"

	"fbwin.org/io/key"
)

// FormatXKBV1 is the wl_keyboard keymap format for xkb text keymaps.
const FormatXKBV1 = 1

// Modifier names understood by State.ModActive.
const (
	ModNameShift = "Shift"
	ModNameCtrl  = "Control"
	ModNameAlt   = "Mod1"
	ModNameLogo  = "Mod4"
)

// Compiler compiles keymap source into a Keymap.
type Compiler interface {
	// Compile compiles an xkb_v1 text keymap. The data is only valid
	// for the duration of the call.
	Compile(data []byte) (Keymap, error)
}

// Keymap is a compiled keymap.
type Keymap interface {
	NewState() (State, error)
	Destroy()
}

// State tracks modifiers and layout group for a Keymap.
type State interface {
	UpdateMask(depressed, latched, locked, group uint32)
	// OneSym resolves an xkb keycode to a single keysym.
	OneSym(keycode uint32) key.Sym
	// ModActive reports whether the named modifier is effectively active.
	ModActive(name string) bool
	// UTF8 returns the text produced by keycode.
	UTF8(keycode uint32) []byte
	Destroy()
}

// Translator owns the compiled keymap and state.
type Translator struct {
	compiler Compiler
	log      *log.Logger
	keymap   Keymap
	state    State
	mods     key.Modifiers
}

// New returns a Translator. A nil compiler disables keymap loading; keys
// are then reported with zero keysym and rune.
func New(c Compiler, logger *log.Logger) *Translator {
	if logger == nil {
		logger = log.Default()
	}
	return &Translator{compiler: c, log: logger}
}

// Code converts an evdev scancode to an xkb keycode. From the
// wl_keyboard.keymap documentation for xkb_v1: "to determine the xkb
// keycode, clients must add 8 to the key event keycode."
func Code(scancode uint32) uint32 {
	return scancode + 8
}

// LoadKeymap replaces the keymap with the one described by fd. The
// descriptor is closed in every case. An unsupported format keeps the
// previous keymap; a compile failure leaves the translator without one.
func (t *Translator) LoadKeymap(format uint32, fd int, size uint32) {
	defer unix.Close(fd)
	if format != FormatXKBV1 {
		t.log.Printf("keyboard: ignoring keymap of unsupported format %d", format)
		return
	}
	t.destroyKeymap()
	if t.compiler == nil || size == 0 {
		return
	}
	// Since wl_seat version 7 the keymap must be mapped MAP_PRIVATE.
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		t.log.Printf("keyboard: mmap of keymap failed: %v", err)
		return
	}
	defer unix.Munmap(data)
	if err := t.compile(data); err != nil {
		t.log.Printf("keyboard: %v", err)
	}
}

func (t *Translator) compile(data []byte) error {
	km, err := t.compiler.Compile(data)
	if err != nil {
		return fmt.Errorf("compile keymap: %w", err)
	}
	st, err := km.NewState()
	if err != nil {
		km.Destroy()
		return fmt.Errorf("create state: %w", err)
	}
	t.keymap, t.state = km, st
	return nil
}

// HasKeymap reports whether a keymap is loaded.
func (t *Translator) HasKeymap() bool {
	return t.state != nil
}

// UpdateModifiers feeds the raw masks to the state and recomputes the
// modifier set.
func (t *Translator) UpdateModifiers(depressed, latched, locked, group uint32) {
	if t.state == nil {
		return
	}
	t.state.UpdateMask(depressed, latched, locked, group)
	var mods key.Modifiers
	if t.state.ModActive(ModNameShift) {
		mods |= key.ModShift
	}
	if t.state.ModActive(ModNameCtrl) {
		mods |= key.ModCtrl
	}
	if t.state.ModActive(ModNameAlt) {
		mods |= key.ModAlt
	}
	if t.state.ModActive(ModNameLogo) {
		mods |= key.ModSuper
	}
	t.mods = mods
}

// Modifiers returns the current modifier set.
func (t *Translator) Modifiers() key.Modifiers {
	return t.mods
}

// Key translates a key callback.
func (t *Translator) Key(scancode uint32, timestamp time.Duration, pressed bool) key.Event {
	e := key.Event{
		Code:      scancode,
		Modifiers: t.mods,
		State:     key.Release,
		Time:      timestamp,
	}
	if pressed {
		e.State = key.Press
	}
	if t.state == nil {
		return e
	}
	kc := Code(scancode)
	e.Sym = t.state.OneSym(kc)
	e.Name = Name(e.Sym)
	// Ensure that a physical backtab key is translated to
	// Shift-Tab.
	if e.Sym == key.SymISOLeftTab {
		e.Modifiers |= key.ModShift
	}
	if pressed {
		e.Rune = DecodeRune(t.state.UTF8(kc))
	}
	return e
}

// Destroy releases the keymap and state.
func (t *Translator) Destroy() {
	t.destroyKeymap()
}

func (t *Translator) destroyKeymap() {
	if t.state != nil {
		t.state.Destroy()
		t.state = nil
	}
	if t.keymap != nil {
		t.keymap.Destroy()
		t.keymap = nil
	}
	t.mods = 0
}

// DecodeRune decodes the first UTF-8 sequence of b. Malformed input and
// control characters decode to 0.
func DecodeRune(b []byte) rune {
	if len(b) == 0 || b[0] < 0x20 {
		return 0
	}
	r, size := utf8.DecodeRune(b)
	if r == utf8.RuneError && size <= 1 {
		return 0
	}
	return r
}
