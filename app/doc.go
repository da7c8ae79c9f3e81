// SPDX-License-Identifier: Unlicense OR MIT

/*
Package app opens a single keyboard-driven window backed by a shared
memory framebuffer.

# Windows

Create connects to the compositor and blocks until the window is
configured. The compositor shows the window once a first frame is
presented, so a program draws before it waits:

	w, err := app.Create("hello", 640, 480)
	if err != nil {
		log.Fatal(err)
	}
	defer w.Destroy()
	for {
		if fb, ok := w.Framebuffer(); ok {
			fb.Clear(color.White)
			w.Present()
		}
		if !w.WaitEvents(-1) {
			break
		}
		for {
			e, ok := w.NextEvent()
			if !ok {
				break
			}
			switch e := e.(type) {
			case key.Event:
				...
			case system.ResizeEvent:
				...
			}
		}
	}

WaitEvents returns false once the window is closed, either by the
compositor or because the connection was lost. Err reports the cause of
the latter.

# Framebuffer

The framebuffer holds 32-bit XRGB pixels in row-major order. Rows are
Stride bytes apart, which is not necessarily Width*4. A Framebuffer is
valid until the next call to Present, WaitEvents, PollEvents or Destroy.
It must not be written to afterwards: the compositor may be reading it,
and a resize dispatched while waiting unmaps it.

# Keyboard

Key events carry the evdev code, the keysym and the decoded rune of the
key. Keymaps are compiled with libxkbcommon when the program is built
with cgo; build with the noxkb tag to opt out, in which case key events
carry only the code and state.
*/
package app
