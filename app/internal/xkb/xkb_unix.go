// SPDX-License-Identifier: Unlicense OR MIT

//go:build ((linux && !android) || freebsd) && cgo && !noxkb

// Package xkb implements keymap compilation with the X Keyboard
// Extension library.
package xkb

import (
	"errors"
	"unsafe"

	"fbwin.org/app/internal/keyboard"
	"fbwin.org/io/key"
)

/*
#cgo LDFLAGS: -lxkbcommon
#cgo freebsd CFLAGS: -I/usr/local/include
#cgo freebsd LDFLAGS: -L/usr/local/lib

#include <stdlib.h>
#include <xkbcommon/xkbcommon.h>
*/
import "C"

// Context is a keyboard.Compiler backed by an xkb_context.
type Context struct {
	ctx *C.struct_xkb_context
}

type keymap struct {
	km *C.struct_xkb_keymap
}

type state struct {
	st      *C.struct_xkb_state
	utf8Buf []byte
}

var modNames = map[string][]byte{
	keyboard.ModNameShift: []byte("Shift\x00"),
	keyboard.ModNameCtrl:  []byte("Control\x00"),
	keyboard.ModNameAlt:   []byte("Mod1\x00"),
	keyboard.ModNameLogo:  []byte("Mod4\x00"),
}

// New creates an xkb context.
func New() (*Context, error) {
	ctx := &Context{
		ctx: C.xkb_context_new(C.XKB_CONTEXT_NO_FLAGS),
	}
	if ctx.ctx == nil {
		return nil, errors.New("xkb: xkb_context_new failed")
	}
	return ctx, nil
}

// Compile implements keyboard.Compiler.
func (x *Context) Compile(data []byte) (keyboard.Keymap, error) {
	// The keymap is NUL terminated on the wire.
	for len(data) > 0 && data[len(data)-1] == 0 {
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		return nil, errors.New("xkb: empty keymap")
	}
	km := C.xkb_keymap_new_from_buffer(x.ctx, (*C.char)(unsafe.Pointer(&data[0])), C.size_t(len(data)), C.XKB_KEYMAP_FORMAT_TEXT_V1, C.XKB_KEYMAP_COMPILE_NO_FLAGS)
	if km == nil {
		return nil, errors.New("xkb: xkb_keymap_new_from_buffer failed")
	}
	return &keymap{km: km}, nil
}

// Destroy releases the context.
func (x *Context) Destroy() {
	if x.ctx != nil {
		C.xkb_context_unref(x.ctx)
		x.ctx = nil
	}
}

func (k *keymap) NewState() (keyboard.State, error) {
	st := C.xkb_state_new(k.km)
	if st == nil {
		return nil, errors.New("xkb: xkb_state_new failed")
	}
	return &state{st: st, utf8Buf: make([]byte, 8)}, nil
}

func (k *keymap) Destroy() {
	if k.km != nil {
		C.xkb_keymap_unref(k.km)
		k.km = nil
	}
}

func (s *state) UpdateMask(depressed, latched, locked, group uint32) {
	xkbGrp := C.xkb_layout_index_t(group)
	C.xkb_state_update_mask(s.st, C.xkb_mod_mask_t(depressed), C.xkb_mod_mask_t(latched), C.xkb_mod_mask_t(locked), 0, 0, xkbGrp)
}

func (s *state) OneSym(keycode uint32) key.Sym {
	return key.Sym(C.xkb_state_key_get_one_sym(s.st, C.xkb_keycode_t(keycode)))
}

func (s *state) ModActive(name string) bool {
	cname, ok := modNames[name]
	if !ok {
		return false
	}
	return C.xkb_state_mod_name_is_active(s.st, (*C.char)(unsafe.Pointer(&cname[0])), C.XKB_STATE_MODS_EFFECTIVE) == 1
}

func (s *state) UTF8(keycode uint32) []byte {
	kc := C.xkb_keycode_t(keycode)
	size := C.xkb_state_key_get_utf8(s.st, kc, (*C.char)(unsafe.Pointer(&s.utf8Buf[0])), C.size_t(len(s.utf8Buf)))
	if int(size) >= len(s.utf8Buf) {
		s.utf8Buf = make([]byte, size+1)
		size = C.xkb_state_key_get_utf8(s.st, kc, (*C.char)(unsafe.Pointer(&s.utf8Buf[0])), C.size_t(len(s.utf8Buf)))
	}
	if size <= 0 {
		return nil
	}
	return s.utf8Buf[:size]
}

func (s *state) Destroy() {
	if s.st != nil {
		C.xkb_state_unref(s.st)
		s.st = nil
	}
}
