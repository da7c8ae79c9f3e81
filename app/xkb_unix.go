// SPDX-License-Identifier: Unlicense OR MIT

//go:build ((linux && !android) || freebsd) && cgo && !noxkb

package app

import (
	"fbwin.org/app/internal/keyboard"
	"fbwin.org/app/internal/xkb"
)

func init() {
	keymapDriver = func() (keyboard.Compiler, func(), error) {
		ctx, err := xkb.New()
		if err != nil {
			return nil, nil, err
		}
		return ctx, ctx.Destroy, nil
	}
}
