// SPDX-License-Identifier: Unlicense OR MIT

package main

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/mattn/go-runewidth"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// margin around the text in pixels.
const margin = 8

var face = basicfont.Face7x13

// cell is a rune placed on the character grid.
type cell struct {
	r        rune
	col, row int
	width    int
}

// layout places text on a grid cols cells wide. Wide runes take two
// cells and never straddle a line end. A newline starts a new row.
func layout(text []rune, cols int) (cells []cell, end image.Point) {
	if cols < 1 {
		cols = 1
	}
	col, row := 0, 0
	for _, r := range text {
		if r == '\n' {
			col, row = 0, row+1
			continue
		}
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if col+w > cols && col > 0 {
			col, row = 0, row+1
		}
		cells = append(cells, cell{r: r, col: col, row: row, width: w})
		col += w
	}
	return cells, image.Pt(col, row)
}

// grid returns the number of columns and rows that fit in size.
func grid(size image.Point) (cols, rows int) {
	cw := face.Advance
	lh := face.Height
	cols = (size.X - 2*margin) / cw
	rows = (size.Y - 2*margin) / lh
	return cols, rows
}

func cellOrigin(col, row int) image.Point {
	return image.Pt(margin+col*face.Advance, margin+row*face.Height)
}

// drawText draws cells and a cursor at end onto dst. The rows that don't
// fit are scrolled off the top.
func drawText(dst draw.Image, cells []cell, end image.Point, rows int, fg, cursor color.Color) {
	first := 0
	if end.Y >= rows {
		first = end.Y - rows + 1
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(fg),
		Face: face,
	}
	for _, c := range cells {
		if c.row < first {
			continue
		}
		o := cellOrigin(c.col, c.row-first)
		d.Dot = fixed.P(o.X, o.Y+face.Ascent)
		d.DrawString(string(c.r))
	}
	if cursor != nil {
		o := cellOrigin(end.X, end.Y-first)
		r := image.Rectangle{Min: o, Max: o.Add(image.Pt(face.Advance, face.Height))}
		draw.Draw(dst, r, image.NewUniform(cursor), image.Point{}, draw.Src)
	}
}
