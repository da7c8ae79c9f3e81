// SPDX-License-Identifier: Unlicense OR MIT

package keyboard

import (
	"strconv"

	"fbwin.org/io/key"
)

// Name returns the key name for a keysym, or the empty string.
func Name(s key.Sym) key.Name {
	if '0' <= s && s <= '9' || 'A' <= s && s <= 'Z' {
		return key.Name(rune(s))
	}
	if 'a' <= s && s <= 'z' {
		return key.Name(rune(s - 0x20))
	}
	if key.SymF1 <= s && s <= key.SymF12 {
		return key.Name("F" + strconv.Itoa(int(s-key.SymF1)+1))
	}
	switch s {
	case key.SymEscape:
		return key.NameEscape
	case key.SymLeft:
		return key.NameLeftArrow
	case key.SymRight:
		return key.NameRightArrow
	case key.SymReturn:
		return key.NameReturn
	case key.SymKPEnter:
		return key.NameEnter
	case key.SymUp:
		return key.NameUpArrow
	case key.SymDown:
		return key.NameDownArrow
	case key.SymHome:
		return key.NameHome
	case key.SymEnd:
		return key.NameEnd
	case key.SymBackSpace:
		return key.NameDeleteBackward
	case key.SymDelete:
		return key.NameDeleteForward
	case key.SymPageUp:
		return key.NamePageUp
	case key.SymPageDown:
		return key.NamePageDown
	case key.SymInsert:
		return key.NameInsert
	case key.SymTab, key.SymKPTab, key.SymISOLeftTab:
		return key.NameTab
	case key.SymSpace, key.SymKPSpace:
		return key.NameSpace
	case key.SymShiftL, key.SymShiftR:
		return key.NameShift
	case key.SymControlL, key.SymControlR:
		return key.NameCtrl
	case key.SymAltL, key.SymAltR:
		return key.NameAlt
	case key.SymSuperL, key.SymSuperR:
		return key.NameSuper
	}
	return ""
}
