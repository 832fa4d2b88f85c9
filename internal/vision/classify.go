package vision

import (
	"math"
	"sort"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"
)

// DefaultConfidenceThreshold rejects matches below this correlation
// score. 0.8 holds up against HUD compression artifacts while still
// refusing cross-digit confusions like 8 vs 3.
const DefaultConfidenceThreshold = 0.8

// Match is a classified glyph label with its correlation score.
type Match struct {
	Label string
	Score float64
}

// Classifier scores glyphs against a template library using normalized
// cross-correlation. Safe for concurrent use; the library is immutable.
type Classifier struct {
	lib       *Library
	labels    []string
	threshold float64
}

// NewClassifier builds a classifier over lib. A nil lib behaves like an
// empty one: every classification reports no match.
func NewClassifier(lib *Library, confidenceThreshold float64) *Classifier {
	if lib == nil {
		lib = EmptyLibrary()
	}
	labels := make([]string, 0, len(lib.templates))
	for label := range lib.templates {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return &Classifier{lib: lib, labels: labels, threshold: confidenceThreshold}
}

// Classify returns the best-scoring label across all templates, or false
// when no template reaches the confidence threshold. Labels are visited
// in sorted order so equal scores resolve deterministically.
func (c *Classifier) Classify(glyph BinaryImage) (Match, bool) {
	best := Match{Score: -1}
	for _, label := range c.labels {
		for _, tpl := range c.lib.templates[label] {
			score, ok := matchTemplate(glyph, tpl)
			if ok && score > best.Score {
				best = Match{Label: label, Score: score}
			}
		}
	}
	if best.Label == "" || best.Score < c.threshold {
		return Match{}, false
	}
	return best, true
}

// matchTemplate rescales the template to the glyph height (nearest
// neighbor, aspect preserved), slides it horizontally across the glyph,
// and returns the maximum Pearson correlation over all offsets, the
// same quantity OpenCV's TM_CCOEFF_NORMED computes. Templates wider than
// the glyph score nothing, and a non-finite correlation at any offset
// disqualifies the template entirely.
func matchTemplate(glyph, tpl BinaryImage) (float64, bool) {
	if glyph.Empty() || tpl.Empty() {
		return 0, false
	}

	scale := float64(glyph.H) / float64(tpl.H)
	newW := int(float64(tpl.W) * scale)
	if newW < 1 {
		newW = 1
	}
	resized := tpl
	if newW != tpl.W || glyph.H != tpl.H {
		up := imaging.Resize(tpl.ToGray(), newW, glyph.H, imaging.NearestNeighbor)
		resized = fromNRGBA(up, 128)
	}
	if resized.W > glyph.W {
		return 0, false
	}

	tplVec := make([]float64, len(resized.Pix))
	for i, v := range resized.Pix {
		tplVec[i] = float64(v)
	}

	window := make([]float64, len(tplVec))
	best := math.Inf(-1)
	for ox := 0; ox+resized.W <= glyph.W; ox++ {
		for y := 0; y < resized.H; y++ {
			row := glyph.Pix[y*glyph.W+ox:]
			for x := 0; x < resized.W; x++ {
				window[y*resized.W+x] = float64(row[x])
			}
		}
		r := stat.Correlation(window, tplVec, nil)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return 0, false
		}
		if r > best {
			best = r
		}
	}
	return best, true
}
