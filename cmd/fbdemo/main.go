// SPDX-License-Identifier: Unlicense OR MIT

// Command fbdemo opens a framebuffer window and echoes typed text.
//
// Escape quits, BackSpace deletes the last character and Return starts a
// new line. The bottom row shows the window size and the held modifiers.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"

	"fbwin.org/app"
	"fbwin.org/io/key"
	"fbwin.org/io/system"
)

var configPath = flag.String("config", "", "path to a YAML config file")

func main() {
	flag.Parse()
	cfg, err := Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

// editor is the text buffer shown in the window.
type editor struct {
	text []rune
}

// handle applies a key event and reports whether the text changed and
// whether the user asked to quit.
func (e *editor) handle(ev key.Event) (changed, quit bool) {
	if ev.State != key.Press {
		return false, false
	}
	switch ev.Sym {
	case key.SymEscape:
		return false, true
	case key.SymBackSpace:
		if len(e.text) == 0 {
			return false, false
		}
		e.text = e.text[:len(e.text)-1]
		return true, false
	case key.SymReturn, key.SymKPEnter:
		e.text = append(e.text, '\n')
		return true, false
	}
	if ev.Rune == 0 || ev.Modifiers&(key.ModCtrl|key.ModSuper) != 0 {
		return false, false
	}
	e.text = append(e.text, ev.Rune)
	return true, false
}

func run(cfg *Config) error {
	opts := []app.Option{app.QueueSize(cfg.Window.QueueSize)}
	if cfg.Window.AppID != "" {
		opts = append(opts, app.AppID(cfg.Window.AppID))
	}
	w, err := app.Create(cfg.Window.Title, cfg.Window.Width, cfg.Window.Height, opts...)
	if err != nil {
		return err
	}
	defer w.Destroy()
	rate, delay := w.KeyRepeat()
	log.Printf("window %dx%d, key repeat %d/s after %v", w.Width(), w.Height(), rate, delay)

	ed := new(editor)
	dirty := true
	for {
		for {
			e, ok := w.NextEvent()
			if !ok {
				break
			}
			switch e := e.(type) {
			case system.QuitEvent:
				return w.Err()
			case system.ResizeEvent:
				dirty = true
			case key.FocusEvent:
				dirty = true
			case key.Event:
				changed, quit := ed.handle(e)
				if quit {
					return nil
				}
				dirty = dirty || changed
			}
		}
		if w.ShouldClose() {
			return w.Err()
		}
		if dirty {
			if fb, ok := w.Framebuffer(); ok {
				render(fb, cfg, ed, w.HasFocus(), w.Modifiers())
				w.Present()
				dirty = false
			}
		}
		w.WaitEvents(-1)
	}
}

func render(fb *app.Framebuffer, cfg *Config, ed *editor, focused bool, mods key.Modifiers) {
	fb.Clear(cfg.Colors.Background)
	size := image.Pt(fb.Width, fb.Height)
	cols, rows := grid(size)
	// The last row is the status line.
	rows--
	if cols < 1 || rows < 1 {
		return
	}
	cells, end := layout(ed.text, cols)
	var cursor color.Color
	if focused {
		cursor = cfg.Colors.Cursor
	}
	drawText(fb, cells, end, rows, cfg.Colors.Foreground, cursor)
	status, _ := layout([]rune(statusLine(size, mods)), cols)
	for i := range status {
		status[i].row = rows
	}
	drawText(fb, status, image.Point{}, rows+1, cfg.Colors.Foreground, nil)
}

func statusLine(size image.Point, mods key.Modifiers) string {
	s := fmt.Sprintf("%dx%d", size.X, size.Y)
	if mods != 0 {
		s += " " + mods.String()
	}
	return s
}
