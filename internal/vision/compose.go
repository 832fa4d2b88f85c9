package vision

import "strconv"

// RecognizeNumber classifies each glyph in left-to-right order and parses
// the concatenated digits as a non-negative integer. Any unrecognized
// glyph fails the whole reading: a partially guessed number would corrupt
// the damage estimate downstream, while a missing reading costs nothing.
// Separator glyphs count as recognized but contribute no digits; a
// sequence of only separators yields no reading.
func (c *Classifier) RecognizeNumber(glyphs []Glyph) (int, bool) {
	var digits []byte
	for _, g := range glyphs {
		m, ok := c.Classify(g.Img)
		if !ok {
			return 0, false
		}
		if m.Label == SeparatorComma || m.Label == SeparatorDot {
			continue
		}
		digits = append(digits, m.Label...)
	}
	if len(digits) == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(string(digits))
	if err != nil {
		return 0, false
	}
	return v, true
}
