// Package capture provides frame sources for the sampling loop.
package capture

import (
	"image"
	"path/filepath"
	"strings"
)

// Source yields screen frames for the sampling loop. The second return
// is false when no frame is available this tick; that is never fatal.
type Source interface {
	Grab() (image.Image, bool)
}

// IsFrameFile reports whether path names an image format the sources
// accept.
func IsFrameFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}
