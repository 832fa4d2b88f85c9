// marks-replay feeds a directory of captured frames through the digit
// pipeline and prints what each one reads as, for checking templates and
// the readout region against real captures.
package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/gunmark-data/marks.report/internal/capture"
	"github.com/gunmark-data/marks.report/internal/vision"
)

// parseRegion parses "x,y,width,height" into a rectangle.
func parseRegion(s string) (image.Rectangle, error) {
	if s == "" {
		return image.Rectangle{}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("region must be x,y,width,height, got %q", s)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("invalid region component %q: %w", p, err)
		}
		vals[i] = v
	}
	return image.Rect(vals[0], vals[1], vals[0]+vals[2], vals[1]+vals[3]), nil
}

func main() {
	framesDir := flag.String("frames", "frames", "Directory of captured frames")
	templatesDir := flag.String("templates", "templates", "Digit template directory")
	regionSpec := flag.String("region", "", "Readout region as x,y,width,height (default: whole frame)")
	threshold := flag.Int("threshold", int(vision.DefaultPreprocessConfig().Threshold), "Binarization threshold")
	upscale := flag.Int("upscale", vision.DefaultPreprocessConfig().Upscale, "Upscale factor")
	minArea := flag.Int("min-area", vision.DefaultMinGlyphArea, "Minimum glyph area in pixels")
	confidence := flag.Float64("confidence", vision.DefaultConfidenceThreshold, "Minimum template correlation")
	detail := flag.Bool("detail", false, "Print per-glyph confidences")
	flag.Parse()

	region, err := parseRegion(*regionSpec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	lib, err := vision.LoadLibrary(*templatesDir, uint8(*threshold))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load templates: %v\n", err)
		os.Exit(1)
	}
	pipeline := vision.NewPipeline(lib, vision.Config{
		Threshold:           uint8(*threshold),
		Upscale:             *upscale,
		MinGlyphArea:        *minArea,
		ConfidenceThreshold: *confidence,
	})

	entries, err := os.ReadDir(*framesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read frame directory: %v\n", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !capture.IsFrameFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		fmt.Fprintf(os.Stderr, "no frames in %s\n", *framesDir)
		os.Exit(1)
	}

	readings := 0
	for _, name := range names {
		frame, err := imaging.Open(filepath.Join(*framesDir, name))
		if err != nil {
			fmt.Printf("%s: unreadable (%v)\n", name, err)
			continue
		}
		var cropped image.Image = frame
		if !region.Empty() {
			cropped = imaging.Crop(frame, region)
		}

		if *detail {
			d := pipeline.ReadDetailed(cropped)
			glyphs := make([]string, 0, len(d.Glyphs))
			for _, g := range d.Glyphs {
				glyphs = append(glyphs, fmt.Sprintf("%s(%.2f)", g.Label, g.Score))
			}
			fmt.Printf("%s: value=%d ok=%v confidence=%.2f glyphs=[%s]\n",
				name, d.Value, d.OK, d.Confidence, strings.Join(glyphs, " "))
			if d.OK {
				readings++
			}
			continue
		}

		if value, ok := pipeline.Read(cropped); ok {
			fmt.Printf("%s: %d\n", name, value)
			readings++
		} else {
			fmt.Printf("%s: no reading\n", name)
		}
	}
	fmt.Printf("%d/%d frames read\n", readings, len(names))
}
