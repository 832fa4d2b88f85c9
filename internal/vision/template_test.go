package vision

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func savePNG(t *testing.T, dir, name string, img image.Image) {
	t.Helper()
	if err := imaging.Save(img, filepath.Join(dir, name)); err != nil {
		t.Fatalf("save %s: %v", name, err)
	}
}

func TestLoadLibrary(t *testing.T) {
	dir := t.TempDir()
	savePNG(t, dir, "0.png", testPattern("0").ToGray())
	savePNG(t, dir, "0_1080p.png", testPattern("0").ToGray())
	savePNG(t, dir, "1.png", testPattern("1").ToGray())
	savePNG(t, dir, "comma.png", testPattern(",").ToGray())

	lib, err := LoadLibrary(dir, 200)
	if err != nil {
		t.Fatalf("LoadLibrary: %v", err)
	}
	if got := lib.Labels(); got != 3 {
		t.Errorf("Labels() = %d, want 3", got)
	}
	if got := lib.Variants("0"); got != 2 {
		t.Errorf("Variants(\"0\") = %d, want 2", got)
	}
	if got := lib.Variants("1"); got != 1 {
		t.Errorf("Variants(\"1\") = %d, want 1", got)
	}
	if got := lib.Variants(SeparatorComma); got != 1 {
		t.Errorf("Variants(comma) = %d, want 1", got)
	}
}

func TestLoadLibrary_RoundTripClassifies(t *testing.T) {
	// Templates written as PNGs and loaded back must classify an exact
	// redraw of themselves perfectly.
	dir := t.TempDir()
	savePNG(t, dir, "2.png", testPattern("2").ToGray())
	savePNG(t, dir, "7.png", testPattern("7").ToGray())

	lib, err := LoadLibrary(dir, 200)
	if err != nil {
		t.Fatalf("LoadLibrary: %v", err)
	}
	c := NewClassifier(lib, DefaultConfidenceThreshold)
	m, ok := c.Classify(testPattern("7"))
	if !ok || m.Label != "7" {
		t.Fatalf("Classify = %+v, %v; want label 7", m, ok)
	}
	if m.Score < 0.99 {
		t.Errorf("score = %v, want ~1.0 after PNG round trip", m.Score)
	}
}

func TestLoadLibrary_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	savePNG(t, dir, "5.png", testPattern("0").ToGray())
	savePNG(t, dir, "legend.png", testPattern("0").ToGray()) // unknown stem
	savePNG(t, dir, "3.jpg", testPattern("3").ToGray())      // wrong extension
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("roi notes"), 0o644); err != nil {
		t.Fatal(err)
	}

	lib, err := LoadLibrary(dir, 200)
	if err != nil {
		t.Fatalf("LoadLibrary: %v", err)
	}
	if got := lib.Labels(); got != 1 {
		t.Errorf("Labels() = %d, want 1", got)
	}
	if got := lib.Variants("5"); got != 1 {
		t.Errorf("Variants(\"5\") = %d, want 1", got)
	}
}

func TestLoadLibrary_SkipsBlankTemplates(t *testing.T) {
	// A template with no pixel above the threshold carries no shape and
	// must not be registered.
	dir := t.TempDir()
	blank := image.NewGray(image.Rect(0, 0, 10, 16))
	savePNG(t, dir, "9.png", blank)
	savePNG(t, dir, "4.png", testPattern("0").ToGray())

	lib, err := LoadLibrary(dir, 200)
	if err != nil {
		t.Fatalf("LoadLibrary: %v", err)
	}
	if got := lib.Variants("9"); got != 0 {
		t.Errorf("Variants(\"9\") = %d, want 0 for blank template", got)
	}
	if got := lib.Variants("4"); got != 1 {
		t.Errorf("Variants(\"4\") = %d, want 1", got)
	}
}

func TestLoadLibrary_MissingDir(t *testing.T) {
	if _, err := LoadLibrary(filepath.Join(t.TempDir(), "nope"), 200); err == nil {
		t.Error("LoadLibrary on missing dir succeeded, want error")
	}
}

func TestLoadLibrary_EmptyDir(t *testing.T) {
	lib, err := LoadLibrary(t.TempDir(), 200)
	if err != nil {
		t.Fatalf("LoadLibrary: %v", err)
	}
	if got := lib.Labels(); got != 0 {
		t.Errorf("Labels() = %d, want 0", got)
	}
}

func TestLabelForStem(t *testing.T) {
	cases := []struct {
		stem  string
		label string
		ok    bool
	}{
		{"0", "0", true},
		{"9", "9", true},
		{"7_1080p", "7", true},
		{"comma", ",", true},
		{"comma_1440p", ",", true},
		{"dot", ".", true},
		{"42", "", false},
		{"legend", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		label, ok := labelForStem(tc.stem)
		if label != tc.label || ok != tc.ok {
			t.Errorf("labelForStem(%q) = %q, %v; want %q, %v", tc.stem, label, ok, tc.label, tc.ok)
		}
	}
}
