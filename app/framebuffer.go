// SPDX-License-Identifier: Unlicense OR MIT

package app

import (
	"image"
	"image/color"
)

// Framebuffer is a view of a window buffer of 32-bit XRGB pixels. In
// memory each pixel is stored as the bytes B, G, R, X.
type Framebuffer struct {
	Pix []byte
	// Width and Height are the size in pixels.
	Width, Height int
	// Stride is the distance in bytes between rows.
	Stride int
}

var _ interface {
	image.Image
	Set(x, y int, c color.Color)
} = (*Framebuffer)(nil)

func (f *Framebuffer) ColorModel() color.Model { return color.RGBAModel }

func (f *Framebuffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// PixOffset returns the index of the first byte of the pixel at (x, y).
func (f *Framebuffer) PixOffset(x, y int) int {
	return y*f.Stride + x*4
}

func (f *Framebuffer) At(x, y int) color.Color {
	return f.RGBAAt(x, y)
}

// RGBAAt returns the opaque color of the pixel at (x, y).
func (f *Framebuffer) RGBAAt(x, y int) color.RGBA {
	if !(image.Point{x, y}.In(f.Bounds())) {
		return color.RGBA{}
	}
	i := f.PixOffset(x, y)
	p := f.Pix[i : i+4 : i+4]
	return color.RGBA{R: p[2], G: p[1], B: p[0], A: 0xff}
}

// Set stores c at (x, y). Alpha is discarded.
func (f *Framebuffer) Set(x, y int, c color.Color) {
	f.SetRGBA(x, y, color.RGBAModel.Convert(c).(color.RGBA))
}

func (f *Framebuffer) SetRGBA(x, y int, c color.RGBA) {
	if !(image.Point{x, y}.In(f.Bounds())) {
		return
	}
	i := f.PixOffset(x, y)
	p := f.Pix[i : i+4 : i+4]
	p[0], p[1], p[2], p[3] = c.B, c.G, c.R, 0xff
}

// Clear fills the framebuffer with c.
func (f *Framebuffer) Clear(c color.Color) {
	if f.Width <= 0 || f.Height <= 0 {
		return
	}
	rgba := color.RGBAModel.Convert(c).(color.RGBA)
	row := f.Pix[:f.Width*4]
	for x := 0; x < f.Width; x++ {
		row[x*4], row[x*4+1], row[x*4+2], row[x*4+3] = rgba.B, rgba.G, rgba.R, 0xff
	}
	for y := 1; y < f.Height; y++ {
		off := f.PixOffset(0, y)
		copy(f.Pix[off:off+len(row)], row)
	}
}
