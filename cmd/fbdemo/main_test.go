// SPDX-License-Identifier: Unlicense OR MIT

package main

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fbwin.org/app"
	"fbwin.org/io/key"
)

func writeConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fbdemo.yaml")
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Window.Width != 640 || cfg.Window.Height != 400 || cfg.Window.QueueSize != 256 {
		t.Errorf("defaults = %+v", cfg.Window)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
window:
  title: notes
  app_id: org.example.notes
  width: 300
colors:
  background: "#102030"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	w := cfg.Window
	if w.Title != "notes" || w.AppID != "org.example.notes" || w.Width != 300 || w.Height != 400 {
		t.Errorf("window = %+v", w)
	}
	if got, want := cfg.Colors.Background, (Color{R: 0x10, G: 0x20, B: 0x30, A: 0xff}); got != want {
		t.Errorf("background = %v, want %v", got, want)
	}
	if cfg.Colors.Foreground != defaultConfig().Colors.Foreground {
		t.Error("foreground default overwritten")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"color", "colors:\n  cursor: red\n", "invalid color"},
		{"short color", "colors:\n  cursor: \"#fff\"\n", "invalid color"},
		{"size", "window:\n  height: 0\n", "invalid window size"},
		{"queue", "window:\n  queue_size: -1\n", "negative queue_size"},
		{"syntax", "window: [\n", "fbdemo.yaml"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, test.src))
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("Load error = %v, want %q", err, test.want)
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Errorf("Load of a missing file = %v", err)
	}
}

func TestLayout(t *testing.T) {
	cells, end := layout([]rune("ab世c\nd"), 3)
	want := []cell{
		{r: 'a', col: 0, row: 0, width: 1},
		{r: 'b', col: 1, row: 0, width: 1},
		{r: '世', col: 0, row: 1, width: 2},
		{r: 'c', col: 2, row: 1, width: 1},
		{r: 'd', col: 0, row: 2, width: 1},
	}
	if len(cells) != len(want) {
		t.Fatalf("layout = %+v, want %+v", cells, want)
	}
	for i := range want {
		if cells[i] != want[i] {
			t.Errorf("cell %d = %+v, want %+v", i, cells[i], want[i])
		}
	}
	if end != image.Pt(1, 2) {
		t.Errorf("end = %v, want (1,2)", end)
	}
}

func TestEditor(t *testing.T) {
	ed := new(editor)
	press := func(sym key.Sym, r rune, mods key.Modifiers) (bool, bool) {
		return ed.handle(key.Event{Sym: sym, Rune: r, Modifiers: mods, State: key.Press})
	}
	press('h', 'h', 0)
	press('i', 'i', key.ModShift)
	if changed, _ := press('c', 'c', key.ModCtrl); changed {
		t.Error("ctrl chord inserted text")
	}
	press(key.SymReturn, '\r', 0)
	press('x', 'x', 0)
	press(key.SymBackSpace, 0x08, 0)
	if got := string(ed.text); got != "hi\n" {
		t.Errorf("text = %q, want %q", got, "hi\n")
	}
	if changed, _ := ed.handle(key.Event{Sym: 'z', Rune: 'z', State: key.Release}); changed {
		t.Error("release changed the text")
	}
	if _, quit := press(key.SymEscape, 0x1b, 0); !quit {
		t.Error("escape didn't quit")
	}
}

func TestRender(t *testing.T) {
	fb := &app.Framebuffer{Width: 100, Height: 60, Stride: 400}
	fb.Pix = make([]byte, fb.Stride*fb.Height)
	cfg := defaultConfig()
	ed := &editor{text: []rune("hello")}
	render(fb, cfg, ed, true, key.ModCtrl)
	if c := fb.RGBAAt(0, 0); c != color.RGBA(cfg.Colors.Background) {
		t.Errorf("corner = %v, want background", c)
	}
	// The cursor follows the 5 characters on the first row.
	o := cellOrigin(5, 0)
	if c := fb.RGBAAt(o.X+1, o.Y+1); c != color.RGBA(cfg.Colors.Cursor) {
		t.Errorf("cursor pixel = %v, want %v", c, cfg.Colors.Cursor)
	}
	foreground := false
	for y := margin; y < margin+face.Height; y++ {
		for x := margin; x < o.X; x++ {
			if fb.RGBAAt(x, y) == color.RGBA(cfg.Colors.Foreground) {
				foreground = true
			}
		}
	}
	if !foreground {
		t.Error("no text drawn")
	}
}
