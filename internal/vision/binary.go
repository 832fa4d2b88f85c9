// Package vision implements the damage-readout recognition pipeline:
// preprocessing, glyph segmentation, template classification, and
// composition of the final integer reading.
package vision

import "image"

// BinaryImage is a single-channel image whose pixels are either 0
// (background) or 255 (foreground). Glyph pixels are foreground
// throughout the pipeline; templates share the representation after
// load-time binarization.
type BinaryImage struct {
	W, H int
	Pix  []uint8 // row-major, len W*H
}

// NewBinaryImage allocates an all-background image.
func NewBinaryImage(w, h int) BinaryImage {
	if w <= 0 || h <= 0 {
		return BinaryImage{}
	}
	return BinaryImage{W: w, H: h, Pix: make([]uint8, w*h)}
}

// Empty reports whether the image has no pixels.
func (b BinaryImage) Empty() bool {
	return b.W == 0 || b.H == 0
}

// HasForeground reports whether any pixel is set.
func (b BinaryImage) HasForeground() bool {
	for _, v := range b.Pix {
		if v != 0 {
			return true
		}
	}
	return false
}

// At returns the pixel value at (x, y). Out-of-range coordinates read as
// background.
func (b BinaryImage) At(x, y int) uint8 {
	if x < 0 || y < 0 || x >= b.W || y >= b.H {
		return 0
	}
	return b.Pix[y*b.W+x]
}

// Crop returns a copy of the rectangle [x0,x1) x [y0,y1), clamped to the
// image bounds.
func (b BinaryImage) Crop(x0, y0, x1, y1 int) BinaryImage {
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > b.W {
		x1 = b.W
	}
	if y1 > b.H {
		y1 = b.H
	}
	if x1 <= x0 || y1 <= y0 {
		return BinaryImage{}
	}
	out := NewBinaryImage(x1-x0, y1-y0)
	for y := y0; y < y1; y++ {
		copy(out.Pix[(y-y0)*out.W:(y-y0+1)*out.W], b.Pix[y*b.W+x0:y*b.W+x1])
	}
	return out
}

// ToGray converts to an *image.Gray for interop with image libraries.
func (b BinaryImage) ToGray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, b.W, b.H))
	for y := 0; y < b.H; y++ {
		copy(g.Pix[y*g.Stride:y*g.Stride+b.W], b.Pix[y*b.W:(y+1)*b.W])
	}
	return g
}

// fromNRGBA binarizes an NRGBA image (as returned by the imaging package)
// by thresholding its red channel. Grayscale NRGBA images carry the
// intensity in every channel.
func fromNRGBA(img *image.NRGBA, threshold uint8) BinaryImage {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	out := NewBinaryImage(w, h)
	if out.Empty() {
		return out
	}
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			if row[x*4] >= threshold {
				out.Pix[y*w+x] = 255
			}
		}
	}
	return out
}
