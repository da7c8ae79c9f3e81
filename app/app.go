// SPDX-License-Identifier: Unlicense OR MIT

package app

import (
	"os"
	"path/filepath"
	"strings"
)

// extraArgs contains extra arguments to append to
// os.Args. The arguments are separated with |.
// Set with the go linker flag -X.
var extraArgs string

// ID is the app id exposed to the compositor as the toplevel app_id,
// unless overridden by the AppID option.
//
// ID can be set with the -X linker flag. For example,
//
//	go build -ldflags="-X 'fbwin.org/app.ID=org.example.Editor'" .
//
// The default value of ID is filepath.Base(os.Args[0]).
var ID = ""

func init() {
	if extraArgs != "" {
		args := strings.Split(extraArgs, "|")
		os.Args = append(os.Args, args...)
	}
	if ID == "" {
		ID = filepath.Base(os.Args[0])
	}
}
