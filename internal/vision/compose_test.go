package vision

import "testing"

func glyphRow(labels ...string) []Glyph {
	glyphs := make([]Glyph, 0, len(labels))
	x := 0
	for _, l := range labels {
		pat := testPattern(l)
		glyphs = append(glyphs, Glyph{Img: pat, X: x})
		x += pat.W + 4
	}
	return glyphs
}

func TestRecognizeNumber_ComposesDigits(t *testing.T) {
	c := NewClassifier(testLibrary("1", "2", "3"), DefaultConfidenceThreshold)
	got, ok := c.RecognizeNumber(glyphRow("1", "2", "3"))
	if !ok {
		t.Fatal("RecognizeNumber = no reading, want 123")
	}
	if got != 123 {
		t.Errorf("RecognizeNumber = %d, want 123", got)
	}
}

func TestRecognizeNumber_DropsSeparators(t *testing.T) {
	c := NewClassifier(testLibrary("0", "1", "3", "7", ","), DefaultConfidenceThreshold)
	got, ok := c.RecognizeNumber(glyphRow("3", ",", "0", "1", "7"))
	if !ok {
		t.Fatal("RecognizeNumber = no reading, want 3017")
	}
	if got != 3017 {
		t.Errorf("RecognizeNumber = %d, want 3017", got)
	}
}

func TestRecognizeNumber_AnyFailureAborts(t *testing.T) {
	// One unreadable glyph in the middle poisons the whole reading even
	// when its neighbors match perfectly; a partial number would be a
	// wrong number.
	c := NewClassifier(testLibrary("1", "3"), DefaultConfidenceThreshold)

	solid := NewBinaryImage(10, 16)
	for i := range solid.Pix {
		solid.Pix[i] = 255
	}
	glyphs := []Glyph{
		{Img: testPattern("1"), X: 0},
		{Img: solid, X: 14},
		{Img: testPattern("3"), X: 30},
	}

	if got, ok := c.RecognizeNumber(glyphs); ok {
		t.Errorf("RecognizeNumber = %d, want no reading", got)
	}
}

func TestRecognizeNumber_OnlySeparators(t *testing.T) {
	c := NewClassifier(testLibrary("0", ","), DefaultConfidenceThreshold)
	if got, ok := c.RecognizeNumber(glyphRow(",", ",")); ok {
		t.Errorf("RecognizeNumber = %d, want no reading for separator-only row", got)
	}
}

func TestRecognizeNumber_NoGlyphs(t *testing.T) {
	c := NewClassifier(testLibrary("0"), DefaultConfidenceThreshold)
	if got, ok := c.RecognizeNumber(nil); ok {
		t.Errorf("RecognizeNumber = %d, want no reading for empty row", got)
	}
}

func TestRecognizeNumber_SingleDigit(t *testing.T) {
	c := NewClassifier(testLibrary("0", "7"), DefaultConfidenceThreshold)
	got, ok := c.RecognizeNumber(glyphRow("0"))
	if !ok || got != 0 {
		t.Errorf("RecognizeNumber = %d, %v; want 0, true", got, ok)
	}
}
