package vision

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Separator glyph labels. The HUD renders thousands separators between
// digit groups; they are recognized so segmentation noise does not abort
// a reading, then dropped during composition.
const (
	SeparatorComma = ","
	SeparatorDot   = "."
)

// labelForStem maps a template file stem to the character it represents.
// Multiple files may feed one label: "7.png" and "7_1080p.png" are both
// templates for the digit 7 (the suffix names the capture resolution).
func labelForStem(stem string) (string, bool) {
	base := stem
	if i := strings.Index(stem, "_"); i >= 0 {
		base = stem[:i]
	}
	switch {
	case len(base) == 1 && base[0] >= '0' && base[0] <= '9':
		return base, true
	case base == "comma":
		return SeparatorComma, true
	case base == "dot":
		return SeparatorDot, true
	}
	return "", false
}

// Library holds the reference glyph images, keyed by label. It is loaded
// once at startup and immutable afterwards. An empty library makes the
// classifier answer "no match" for everything, which the pipeline treats
// as a permanent no-reading condition rather than an error.
type Library struct {
	templates map[string][]BinaryImage
}

// EmptyLibrary returns a library with no templates.
func EmptyLibrary() *Library {
	return &Library{templates: map[string][]BinaryImage{}}
}

// LoadLibrary reads every recognized *.png in dir and binarizes it with
// the given threshold. Files whose stem does not name a known glyph are
// ignored; unreadable files are skipped with a warning.
func LoadLibrary(dir string, threshold uint8) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read templates dir: %w", err)
	}

	lib := EmptyLibrary()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if !strings.EqualFold(ext, ".png") {
			continue
		}
		label, ok := labelForStem(strings.TrimSuffix(name, ext))
		if !ok {
			continue
		}

		img, err := imaging.Open(filepath.Join(dir, name))
		if err != nil {
			log.Printf("[Templates] skipping %s: %v", name, err)
			continue
		}
		bin := Preprocess(img, PreprocessConfig{Threshold: threshold, Upscale: 1})
		if bin.Empty() || !bin.HasForeground() {
			log.Printf("[Templates] skipping %s: empty after binarization", name)
			continue
		}
		lib.templates[label] = append(lib.templates[label], bin)
	}
	return lib, nil
}

// AddTemplate registers a reference image under the given label. Exposed
// for tests and calibration tooling; production loads from disk once.
func (l *Library) AddTemplate(label string, img BinaryImage) {
	l.templates[label] = append(l.templates[label], img)
}

// Labels returns the number of distinct labels with at least one template.
func (l *Library) Labels() int {
	return len(l.templates)
}

// Variants returns how many templates are registered for a label.
func (l *Library) Variants(label string) int {
	return len(l.templates[label])
}
