// SPDX-License-Identifier: Unlicense OR MIT

// Package key implements key and focus events.
package key

import (
	"strings"
	"time"
)

// A FocusEvent is generated when the window gains or loses
// keyboard focus.
type FocusEvent struct {
	Focus bool
	Time  time.Duration
}

// An Event is generated when a key is pressed or released.
type Event struct {
	// Code is the raw evdev scancode reported by the compositor.
	Code uint32
	// Sym is the keysym the code resolved to under the current
	// keymap and modifier state, or 0 if no keymap is loaded.
	Sym Sym
	// Name of the key, or the empty string for keys without a name.
	Name Name
	// Modifiers is the set of active modifiers when the key was pressed.
	Modifiers Modifiers
	// Rune is the text produced by the key press, or 0 for release
	// events and keys that do not produce printable text.
	Rune rune
	// State is the state of the key when the event was fired.
	State State
	Time  time.Duration
}

// State is the state of a key during an event.
type State uint8

const (
	// Press is the state of a pressed key.
	Press State = iota
	// Release is the state of a key that has been released.
	Release
)

// Modifiers is a set of modifier keys.
type Modifiers uint32

const (
	// ModShift is the shift modifier key.
	ModShift Modifiers = 1 << iota
	// ModCtrl is the ctrl modifier key.
	ModCtrl
	// ModAlt is the alt modifier key.
	ModAlt
	// ModSuper is the "logo" modifier key, often
	// represented by a Windows logo.
	ModSuper
)

// Sym is an XKB keysym.
type Sym uint32

// Keysyms for keys with a Name. Values are from xkbcommon-keysyms.h.
const (
	SymSpace      Sym = 0x0020
	SymBackSpace  Sym = 0xff08
	SymTab        Sym = 0xff09
	SymReturn     Sym = 0xff0d
	SymEscape     Sym = 0xff1b
	SymHome       Sym = 0xff50
	SymLeft       Sym = 0xff51
	SymUp         Sym = 0xff52
	SymRight      Sym = 0xff53
	SymDown       Sym = 0xff54
	SymPageUp     Sym = 0xff55
	SymPageDown   Sym = 0xff56
	SymEnd        Sym = 0xff57
	SymInsert     Sym = 0xff63
	SymKPSpace    Sym = 0xff80
	SymKPTab      Sym = 0xff89
	SymKPEnter    Sym = 0xff8d
	SymF1         Sym = 0xffbe
	SymF12        Sym = 0xffc9
	SymShiftL     Sym = 0xffe1
	SymShiftR     Sym = 0xffe2
	SymControlL   Sym = 0xffe3
	SymControlR   Sym = 0xffe4
	SymAltL       Sym = 0xffe9
	SymAltR       Sym = 0xffea
	SymSuperL     Sym = 0xffeb
	SymSuperR     Sym = 0xffec
	SymDelete     Sym = 0xffff
	SymISOLeftTab Sym = 0xfe20
)

// Name is the identifier for a keyboard key.
//
// For letters, the upper case form is used. The shift modifier is taken
// into account, all other modifiers are ignored.
type Name string

const (
	// Names for special keys.
	NameLeftArrow      Name = "←"
	NameRightArrow     Name = "→"
	NameUpArrow        Name = "↑"
	NameDownArrow      Name = "↓"
	NameReturn         Name = "⏎"
	NameEnter          Name = "⌤"
	NameEscape         Name = "⎋"
	NameHome           Name = "⇱"
	NameEnd            Name = "⇲"
	NameDeleteBackward Name = "⌫"
	NameDeleteForward  Name = "⌦"
	NamePageUp         Name = "⇞"
	NamePageDown       Name = "⇟"
	NameInsert         Name = "Insert"
	NameTab            Name = "Tab"
	NameSpace          Name = "Space"
	NameCtrl           Name = "Ctrl"
	NameShift          Name = "Shift"
	NameAlt            Name = "Alt"
	NameSuper          Name = "Super"
)

// Contain reports whether m contains all modifiers
// in m2.
func (m Modifiers) Contain(m2 Modifiers) bool {
	return m&m2 == m2
}

func (Event) ImplementsEvent()      {}
func (FocusEvent) ImplementsEvent() {}

func (e Event) Timestamp() time.Duration      { return e.Time }
func (e FocusEvent) Timestamp() time.Duration { return e.Time }

func (m Modifiers) String() string {
	var strs []string
	if m.Contain(ModCtrl) {
		strs = append(strs, string(NameCtrl))
	}
	if m.Contain(ModShift) {
		strs = append(strs, string(NameShift))
	}
	if m.Contain(ModAlt) {
		strs = append(strs, string(NameAlt))
	}
	if m.Contain(ModSuper) {
		strs = append(strs, string(NameSuper))
	}
	return strings.Join(strs, "-")
}

func (s State) String() string {
	switch s {
	case Press:
		return "Press"
	case Release:
		return "Release"
	default:
		panic("invalid State")
	}
}
