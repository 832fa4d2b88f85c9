package server

import (
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/disintegration/imaging"

	"github.com/gunmark-data/marks.report/internal/capture"
	"github.com/gunmark-data/marks.report/internal/security"
	"github.com/gunmark-data/marks.report/internal/vision"
)

// previewConfig is the calibration surface over the frame directory.
type previewConfig struct {
	dir      string
	pipeline *vision.Pipeline
	region   image.Rectangle
}

// EnablePreview exposes the calibration endpoints: a frame listing, raw
// frame downloads, and per-glyph pipeline diagnostics for tuning the
// readout region and thresholds. region crops each frame before the
// pipeline runs; an empty region reads the whole frame.
func (s *Server) EnablePreview(dir string, pipeline *vision.Pipeline, region image.Rectangle) {
	s.preview = &previewConfig{dir: dir, pipeline: pipeline, region: region}
}

// frameInfo describes one capture in the frame directory listing.
type frameInfo struct {
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	Modified float64 `json:"modified"`
}

// listFrames returns the directory's frames, newest first.
func (p *previewConfig) listFrames(limit int) ([]frameInfo, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, err
	}
	frames := make([]frameInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !capture.IsFrameFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		frames = append(frames, frameInfo{
			Name:     entry.Name(),
			Size:     info.Size(),
			Modified: float64(info.ModTime().UnixNano()) / float64(time.Second),
		})
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].Modified > frames[j].Modified })
	if limit > 0 && len(frames) > limit {
		frames = frames[:limit]
	}
	return frames, nil
}

// framePath validates a request-supplied frame name and resolves it
// inside the frame directory.
func (p *previewConfig) framePath(name string) (string, error) {
	if name == "" || !capture.IsFrameFile(name) {
		return "", fmt.Errorf("frame name required (.png or .jpg)")
	}
	path := filepath.Join(p.dir, name)
	if err := security.ValidatePathWithinDirectory(path, p.dir); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.preview == nil {
		s.writeJSONError(w, http.StatusNotFound, "preview not configured")
		return
	}
	frames, err := s.preview.listFrames(queryInt(r, "limit", 50))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, frames)
}

func (s *Server) handleFrameFile(w http.ResponseWriter, r *http.Request) {
	if s.preview == nil {
		s.writeJSONError(w, http.StatusNotFound, "preview not configured")
		return
	}
	path, err := s.preview.framePath(r.URL.Query().Get("name"))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	http.ServeFile(w, r, path)
}

// previewResult is the diagnostic readout for one frame.
type previewResult struct {
	Frame      string         `json:"frame"`
	Value      int            `json:"value"`
	OK         bool           `json:"ok"`
	Confidence float64        `json:"confidence"`
	Glyphs     []previewGlyph `json:"glyphs"`
}

type previewGlyph struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// handlePreview runs the pipeline on one frame and reports per-glyph
// confidences, for tuning the readout region against real captures.
// Without a name parameter it picks the newest frame.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.preview == nil {
		s.writeJSONError(w, http.StatusNotFound, "preview not configured")
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		frames, err := s.preview.listFrames(1)
		if err != nil || len(frames) == 0 {
			s.writeJSONError(w, http.StatusNotFound, "no frames captured yet")
			return
		}
		name = frames[0].Name
	}
	path, err := s.preview.framePath(name)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	frame, err := imaging.Open(path)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode frame: %v", err))
		return
	}

	var cropped image.Image = frame
	if !s.preview.region.Empty() {
		cropped = imaging.Crop(frame, s.preview.region)
	}
	detail := s.preview.pipeline.ReadDetailed(cropped)

	result := previewResult{
		Frame:      name,
		Value:      detail.Value,
		OK:         detail.OK,
		Confidence: detail.Confidence,
		Glyphs:     make([]previewGlyph, 0, len(detail.Glyphs)),
	}
	for _, g := range detail.Glyphs {
		result.Glyphs = append(result.Glyphs, previewGlyph{Label: g.Label, Score: g.Score})
	}
	s.writeJSON(w, result)
}
