package vision

import (
	"image"
	"image/color"
)

// testPattern returns a deterministic tight-cropped binary pattern for a
// label, mimicking the cropped HUD-font templates shipped with the app.
// Each pattern is a single 4-connected component containing both
// foreground and background pixels (a constant crop would have no
// variance to correlate), and no two labels share a pattern, so an exact
// redraw correlates at 1.0 with its own template and strictly below with
// every other.
func testPattern(label string) BinaryImage {
	type span struct{ x0, y0, x1, y1 int } // inclusive
	var w, h int
	var spans []span
	switch label {
	case "0":
		w, h = 10, 16
		spans = []span{{0, 0, 9, 1}, {0, 14, 9, 15}, {0, 0, 1, 15}, {8, 0, 9, 15}}
	case "1":
		w, h = 6, 16
		spans = []span{{4, 0, 5, 15}, {0, 14, 5, 15}}
	case "2":
		w, h = 10, 16
		spans = []span{{0, 0, 9, 1}, {8, 0, 9, 7}, {0, 7, 9, 8}, {0, 8, 1, 15}, {0, 14, 9, 15}}
	case "3":
		w, h = 10, 16
		spans = []span{{0, 0, 9, 1}, {0, 7, 9, 8}, {0, 14, 9, 15}, {8, 0, 9, 15}}
	case "7":
		w, h = 10, 16
		spans = []span{{0, 0, 9, 1}, {7, 0, 9, 15}}
	case ",":
		w, h = 4, 6
		spans = []span{{0, 0, 3, 3}, {0, 3, 1, 5}}
	default:
		// Hourglass for anything else.
		w, h = 8, 16
		spans = []span{{0, 0, 7, 1}, {3, 0, 4, 15}, {0, 14, 7, 15}}
	}

	b := NewBinaryImage(w, h)
	for _, s := range spans {
		for y := s.y0; y <= s.y1; y++ {
			for x := s.x0; x <= s.x1; x++ {
				b.Pix[y*w+x] = 255
			}
		}
	}
	return b
}

// testLibrary builds a library holding the patterns for the given labels.
func testLibrary(labels ...string) *Library {
	lib := EmptyLibrary()
	for _, l := range labels {
		lib.AddTemplate(l, testPattern(l))
	}
	return lib
}

// makeFrame returns a dark NRGBA frame resembling the HUD background.
func makeFrame(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 30, G: 30, B: 40, A: 255})
		}
	}
	return img
}

// drawPattern paints a binary pattern onto a frame in white at (x0, y0).
func drawPattern(img *image.NRGBA, pat BinaryImage, x0, y0 int) {
	for y := 0; y < pat.H; y++ {
		for x := 0; x < pat.W; x++ {
			if pat.At(x, y) != 0 {
				img.Set(x0+x, y0+y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
			}
		}
	}
}

// drawRect fills a solid white rectangle, a stand-in for a glyph blob.
func drawRect(img *image.NRGBA, x0, y0, w, h int) {
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			img.Set(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
}
