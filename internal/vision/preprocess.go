package vision

import (
	"image"

	"github.com/disintegration/imaging"
)

// PreprocessConfig controls frame binarization.
type PreprocessConfig struct {
	// Threshold is the grayscale intensity at or above which a pixel
	// becomes foreground. The HUD renders damage numbers in near-white.
	Threshold uint8

	// Upscale is an integer nearest-neighbor upscale factor applied after
	// thresholding, to give the matcher more pixels per glyph. 1 disables.
	Upscale int
}

// DefaultPreprocessConfig returns the values tuned for 1080p HUD captures.
func DefaultPreprocessConfig() PreprocessConfig {
	return PreprocessConfig{
		Threshold: 200,
		Upscale:   2,
	}
}

// Preprocess converts a captured frame into a BinaryImage: grayscale,
// fixed-threshold binarization, then optional nearest-neighbor upscale.
// Nil or zero-sized frames yield an empty image, which downstream stages
// treat as "no reading".
func Preprocess(frame image.Image, cfg PreprocessConfig) BinaryImage {
	if frame == nil {
		return BinaryImage{}
	}
	bounds := frame.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return BinaryImage{}
	}

	gray := imaging.Grayscale(frame)

	bin := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < w; x++ {
			if row[x*4] >= cfg.Threshold {
				bin.Pix[y*bin.Stride+x] = 255
			}
		}
	}

	if cfg.Upscale > 1 {
		up := imaging.Resize(bin, w*cfg.Upscale, h*cfg.Upscale, imaging.NearestNeighbor)
		// Nearest-neighbor copies source pixels, so values stay 0/255.
		return fromNRGBA(up, 128)
	}

	out := NewBinaryImage(w, h)
	for y := 0; y < h; y++ {
		copy(out.Pix[y*w:(y+1)*w], bin.Pix[y*bin.Stride:y*bin.Stride+w])
	}
	return out
}
