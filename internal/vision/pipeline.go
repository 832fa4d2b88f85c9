package vision

import (
	"image"
	"strconv"
)

// Config bundles the tunables for the full recognition pipeline.
type Config struct {
	// Threshold and Upscale feed the preprocessor.
	Threshold uint8
	Upscale   int

	// MinGlyphArea is the segmenter's noise floor in pixels.
	MinGlyphArea int

	// ConfidenceThreshold is the minimum template correlation to accept.
	ConfidenceThreshold float64
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:           DefaultPreprocessConfig().Threshold,
		Upscale:             DefaultPreprocessConfig().Upscale,
		MinGlyphArea:        DefaultMinGlyphArea,
		ConfidenceThreshold: DefaultConfidenceThreshold,
	}
}

// Pipeline runs preprocess -> segment -> classify -> compose over captured
// frames. Stateless apart from the immutable template library, so a single
// instance serves the whole process.
type Pipeline struct {
	cfg        Config
	classifier *Classifier
}

// NewPipeline builds a pipeline over the given template library.
func NewPipeline(lib *Library, cfg Config) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		classifier: NewClassifier(lib, cfg.ConfidenceThreshold),
	}
}

// Read runs the strict pipeline on a frame cropped to the damage readout
// region. It returns the recognized value, or false when the frame yields
// no trustworthy reading (no glyphs, or any glyph below threshold).
func (p *Pipeline) Read(frame image.Image) (int, bool) {
	bin := Preprocess(frame, PreprocessConfig{Threshold: p.cfg.Threshold, Upscale: p.cfg.Upscale})
	glyphs := Segment(bin, p.cfg.MinGlyphArea)
	if len(glyphs) == 0 {
		return 0, false
	}
	return p.classifier.RecognizeNumber(glyphs)
}

// GlyphScore is a per-glyph outcome for the calibration preview. Failed
// glyphs report "?" with zero confidence.
type GlyphScore struct {
	Label string
	Score float64
}

// Detail is the diagnostic result surfaced by the preview window. Unlike
// Read, the value is assembled from whichever glyphs did classify, so a
// half-legible frame still shows something to calibrate against.
type Detail struct {
	Value      int
	OK         bool
	Glyphs     []GlyphScore
	Confidence float64
}

// ReadDetailed runs the pipeline and reports per-glyph confidences along
// with the mean confidence over all glyphs.
func (p *Pipeline) ReadDetailed(frame image.Image) Detail {
	bin := Preprocess(frame, PreprocessConfig{Threshold: p.cfg.Threshold, Upscale: p.cfg.Upscale})
	glyphs := Segment(bin, p.cfg.MinGlyphArea)
	if len(glyphs) == 0 {
		return Detail{}
	}

	var d Detail
	var digits []byte
	sum := 0.0
	for _, g := range glyphs {
		m, ok := p.classifier.Classify(g.Img)
		if !ok {
			d.Glyphs = append(d.Glyphs, GlyphScore{Label: "?"})
			continue
		}
		d.Glyphs = append(d.Glyphs, GlyphScore{Label: m.Label, Score: m.Score})
		sum += m.Score
		if m.Label != SeparatorComma && m.Label != SeparatorDot {
			digits = append(digits, m.Label...)
		}
	}
	d.Confidence = sum / float64(len(d.Glyphs))

	if len(digits) > 0 {
		if v, err := strconv.Atoi(string(digits)); err == nil {
			d.Value = v
			d.OK = true
		}
	}
	return d
}
