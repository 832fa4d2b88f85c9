package capture

import (
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// ReplaySource plays back a directory of recorded frames in filename
// order. It is meant for dev mode and offline pipeline runs. Grab is
// not safe for concurrent use; the sampling loop owns the source.
type ReplaySource struct {
	frames []string
	loop   bool
	logf   func(format string, args ...any)
	next   int
}

// NewReplaySource lists the frame files under dir. With loop set, Grab
// starts over after the last frame instead of running dry.
func NewReplaySource(dir string, loop bool, logf func(string, ...any)) (*ReplaySource, error) {
	if logf == nil {
		logf = log.Printf
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read replay dir: %w", err)
	}
	var frames []string
	for _, entry := range entries {
		if entry.IsDir() || !IsFrameFile(entry.Name()) {
			continue
		}
		frames = append(frames, filepath.Join(dir, entry.Name()))
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frame files in %s", dir)
	}
	logf("[Capture] replaying %d frames from %s", len(frames), dir)
	return &ReplaySource{frames: frames, loop: loop, logf: logf}, nil
}

// Len returns the number of frames in the recording.
func (s *ReplaySource) Len() int { return len(s.frames) }

// Grab returns the next frame. A frame that fails to decode is skipped
// for that tick. Without loop, Grab returns false once the recording is
// exhausted.
func (s *ReplaySource) Grab() (image.Image, bool) {
	if s.next >= len(s.frames) {
		if !s.loop {
			return nil, false
		}
		s.next = 0
	}
	path := s.frames[s.next]
	s.next++
	img, err := imaging.Open(path)
	if err != nil {
		s.logf("[Capture] skipping %s: %v", filepath.Base(path), err)
		return nil, false
	}
	return img, true
}
