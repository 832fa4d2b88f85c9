package vision

import "sort"

// Glyph is a cropped candidate character and its left-edge x position in
// the source image. Sequences returned by Segment are ordered ascending
// by X, which reproduces the on-screen digit order for non-overlapping
// glyphs.
type Glyph struct {
	Img BinaryImage
	X   int
}

// DefaultMinGlyphArea filters single-pixel speckle and JPEG fringing
// around the HUD text.
const DefaultMinGlyphArea = 50

// Segment extracts external connected components of foreground pixels
// (4-connectivity), discards components smaller than minArea pixels, and
// returns the surviving bounding-box crops sorted left to right.
func Segment(bin BinaryImage, minArea int) []Glyph {
	if bin.Empty() {
		return nil
	}

	visited := make([]byte, len(bin.Pix))
	var glyphs []Glyph

	for start, v := range bin.Pix {
		if v == 0 || visited[start] != 0 {
			continue
		}

		minX, minY, maxX, maxY, area := floodFill(bin, visited, start)
		if area < minArea {
			continue
		}
		glyphs = append(glyphs, Glyph{
			Img: bin.Crop(minX, minY, maxX+1, maxY+1),
			X:   minX,
		})
	}

	sort.SliceStable(glyphs, func(i, j int) bool { return glyphs[i].X < glyphs[j].X })
	return glyphs
}

// floodFill visits the component containing the flat index start and
// returns its bounding box and pixel count. Uses an explicit stack of
// flat indexes to avoid recursion depth issues on large blobs.
func floodFill(bin BinaryImage, visited []byte, start int) (minX, minY, maxX, maxY, area int) {
	w := bin.W
	stack := make([]int, 0, 64)
	stack = append(stack, start)
	visited[start] = 1

	minX, minY = bin.W, bin.H
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		x := idx % w
		y := idx / w
		area++
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}

		if x > 0 && bin.Pix[idx-1] != 0 && visited[idx-1] == 0 {
			visited[idx-1] = 1
			stack = append(stack, idx-1)
		}
		if x < w-1 && bin.Pix[idx+1] != 0 && visited[idx+1] == 0 {
			visited[idx+1] = 1
			stack = append(stack, idx+1)
		}
		if y > 0 && bin.Pix[idx-w] != 0 && visited[idx-w] == 0 {
			visited[idx-w] = 1
			stack = append(stack, idx-w)
		}
		if y < bin.H-1 && bin.Pix[idx+w] != 0 && visited[idx+w] == 0 {
			visited[idx+w] = 1
			stack = append(stack, idx+w)
		}
	}
	return minX, minY, maxX, maxY, area
}
