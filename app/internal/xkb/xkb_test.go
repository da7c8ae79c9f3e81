// SPDX-License-Identifier: Unlicense OR MIT

//go:build ((linux && !android) || freebsd) && cgo && !noxkb

package xkb

import (
	"testing"

	"fbwin.org/app/internal/keyboard"
	"fbwin.org/io/key"
)

// usKeymap is a minimal keymap with shift and control levels for a
// handful of keys.
const usKeymap = `xkb_keymap {
	xkb_keycodes "test" {
		minimum = 8;
		maximum = 255;
		<ESC>  = 9;
		<AE01> = 10;
		<AC01> = 38;
		<LFSH> = 50;
		<LCTL> = 37;
	};
	xkb_types "test" {
		type "ONE_LEVEL" {
			modifiers = none;
			level_name[Level1] = "Any";
		};
		type "TWO_LEVEL" {
			modifiers = Shift;
			map[Shift] = Level2;
			level_name[Level1] = "Base";
			level_name[Level2] = "Shift";
		};
		type "ALPHABETIC" {
			modifiers = Shift+Lock;
			map[Shift] = Level2;
			map[Lock] = Level2;
			level_name[Level1] = "Base";
			level_name[Level2] = "Caps";
		};
	};
	xkb_compatibility "test" {
		interpret Shift_L { action = SetMods(modifiers=Shift); };
		interpret Control_L { action = SetMods(modifiers=Control); };
	};
	xkb_symbols "test" {
		key <ESC>  { [ Escape ] };
		key <AE01> { [ 1, exclam ] };
		key <AC01> { type = "ALPHABETIC", [ a, A ] };
		key <LFSH> { [ Shift_L ] };
		key <LCTL> { [ Control_L ] };
		modifier_map Shift { <LFSH> };
		modifier_map Control { <LCTL> };
	};
};
`

func newState(t *testing.T) keyboard.State {
	t.Helper()
	ctx, err := New()
	if err != nil {
		t.Skipf("xkb unavailable: %v", err)
	}
	t.Cleanup(ctx.Destroy)
	km, err := ctx.Compile(append([]byte(usKeymap), 0))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(km.Destroy)
	st, err := km.NewState()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(st.Destroy)
	return st
}

func TestLookup(t *testing.T) {
	st := newState(t)
	if got := st.OneSym(keyboard.Code(30)); got != 'a' {
		t.Errorf("sym for <AC01> = %#x, want 'a'", uint32(got))
	}
	if got := string(st.UTF8(keyboard.Code(30))); got != "a" {
		t.Errorf("text for <AC01> = %q", got)
	}
	if got := st.OneSym(keyboard.Code(1)); got != key.SymEscape {
		t.Errorf("sym for <ESC> = %#x", uint32(got))
	}
}

func TestModifierMask(t *testing.T) {
	st := newState(t)
	// Shift is modifier index 0, Lock 1, Control 2.
	st.UpdateMask(1<<2, 0, 1<<1, 0)
	if !st.ModActive(keyboard.ModNameCtrl) {
		t.Error("control not active")
	}
	if st.ModActive(keyboard.ModNameShift) || st.ModActive(keyboard.ModNameAlt) || st.ModActive(keyboard.ModNameLogo) {
		t.Error("unexpected modifier active")
	}
	st.UpdateMask(1<<0, 0, 0, 0)
	if got := string(st.UTF8(keyboard.Code(2))); got != "!" {
		t.Errorf("shifted <AE01> = %q, want !", got)
	}
}

func TestCompileEmpty(t *testing.T) {
	ctx, err := New()
	if err != nil {
		t.Skip(err)
	}
	defer ctx.Destroy()
	if _, err := ctx.Compile([]byte{0}); err == nil {
		t.Error("empty keymap compiled")
	}
}
