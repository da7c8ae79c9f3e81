// SPDX-License-Identifier: Unlicense OR MIT

//go:build (linux && !android && !nowayland) || freebsd

package app

import (
	"log"

	"fbwin.org/app/internal/window"
)

func init() {
	backendDriver = func(display string, logger *log.Logger) (window.Backend, error) {
		return window.NewWayland(display, logger)
	}
}
