package vision

import "image"

// TextReader extracts free text from a frame. The garage tank-name region
// uses a proportional font the digit templates cannot cover, so the
// reader is pluggable: deployments wire an OCR engine, tests fake it.
type TextReader interface {
	ReadText(frame image.Image) (string, error)
}

// NameResolver maps noisy OCR output to a known vehicle. Implemented by
// the encyclopedia-backed lookup in the wg package.
type NameResolver interface {
	Resolve(text string) (tankID int, name string, ok bool)
}

// GarageDetector watches the garage screen's tank-name region and reports
// when the selected vehicle changes. Single-goroutine use.
type GarageDetector struct {
	reader  TextReader
	resolve NameResolver

	currentID   int
	currentName string
}

// NewGarageDetector builds a detector over the given reader and resolver.
func NewGarageDetector(reader TextReader, resolver NameResolver) *GarageDetector {
	return &GarageDetector{reader: reader, resolve: resolver}
}

// Poll reads the tank name from the frame and resolves it. Returns false
// when the frame has no legible text or the text matches no vehicle.
func (g *GarageDetector) Poll(frame image.Image) (int, string, bool) {
	if g.reader == nil || g.resolve == nil || frame == nil {
		return 0, "", false
	}
	text, err := g.reader.ReadText(frame)
	if err != nil || text == "" {
		return 0, "", false
	}
	id, name, ok := g.resolve.Resolve(text)
	if !ok {
		return 0, "", false
	}
	return id, name, true
}

// DetectSwitch polls and reports the vehicle only when it differs from
// the last detected one, so callers can treat the result as an event.
func (g *GarageDetector) DetectSwitch(frame image.Image) (int, string, bool) {
	id, name, ok := g.Poll(frame)
	if !ok || id == g.currentID {
		return 0, "", false
	}
	g.currentID = id
	g.currentName = name
	return id, name, true
}

// CurrentTank returns the last detected vehicle, zero-valued before the
// first successful detection.
func (g *GarageDetector) CurrentTank() (int, string) {
	return g.currentID, g.currentName
}
