package capture

import (
	"fmt"
	"image"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"

	"github.com/gunmark-data/marks.report/internal/timeutil"
)

// settleDelay is how long a file must stay quiet before Grab will read
// it. Screenshot writers create the file first and fill it afterwards,
// so a frame is not trustworthy until its events stop.
const settleDelay = 300 * time.Millisecond

// WatchSource watches a directory that an external screenshot feeder
// drops frames into and serves the newest settled frame exactly once.
// The feeder may write fresh files or overwrite the same one.
type WatchSource struct {
	watcher *fsnotify.Watcher
	clock   timeutil.Clock
	logf    func(format string, args ...any)
	done    chan struct{}

	mu        sync.Mutex
	pending   string
	pendingAt time.Time
	served    string
}

// NewWatchSource starts watching dir. Close releases the watcher.
func NewWatchSource(dir string, clock timeutil.Clock, logf func(string, ...any)) (*WatchSource, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if logf == nil {
		logf = log.Printf
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	s := &WatchSource{
		watcher: watcher,
		clock:   clock,
		logf:    logf,
		done:    make(chan struct{}),
	}
	logf("[Capture] watching %s for frames", dir)
	go s.run()
	return s, nil
}

func (s *WatchSource) run() {
	defer close(s.done)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !IsFrameFile(ev.Name) {
				continue
			}
			s.mu.Lock()
			s.pending = ev.Name
			s.pendingAt = s.clock.Now()
			// A write to an already-served file means new content.
			if s.served == ev.Name {
				s.served = ""
			}
			s.mu.Unlock()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logf("[Capture] watch error: %v", err)
		}
	}
}

// Grab returns the newest frame whose events have settled, once per
// frame. It returns false while the directory is quiet, while the
// newest file is still being written, or when the newest frame was
// already served.
func (s *WatchSource) Grab() (image.Image, bool) {
	s.mu.Lock()
	path := s.pending
	ready := path != "" && path != s.served && s.clock.Since(s.pendingAt) >= settleDelay
	s.mu.Unlock()
	if !ready {
		return nil, false
	}
	img, err := imaging.Open(path)
	if err != nil {
		s.logf("[Capture] skipping %s: %v", filepath.Base(path), err)
		// Mark it served anyway; a later write clears the mark and
		// retries.
		s.markServed(path)
		return nil, false
	}
	s.markServed(path)
	return img, true
}

func (s *WatchSource) markServed(path string) {
	s.mu.Lock()
	s.served = path
	s.mu.Unlock()
}

// Close stops the watcher and waits for the event loop to exit.
func (s *WatchSource) Close() error {
	err := s.watcher.Close()
	<-s.done
	return err
}
