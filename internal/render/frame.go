// Package render composites lyric video frames. The same Compositor draws
// the interactive preview and the exported video.
package render

import (
	"image"

	"github.com/satindergrewal/lyricvid/internal/errs"
	"github.com/satindergrewal/lyricvid/internal/lyrics"
	"github.com/satindergrewal/lyricvid/internal/palette"
)

// Aspect is the output orientation.
type Aspect string

const (
	Landscape Aspect = "16:9"
	Portrait  Aspect = "9:16"
)

// ParseAspect accepts "16:9" or "9:16" (and the names landscape/portrait).
func ParseAspect(s string) (Aspect, error) {
	switch s {
	case "16:9", "landscape", "":
		return Landscape, nil
	case "9:16", "portrait":
		return Portrait, nil
	}
	return "", errs.Input("unknown aspect ratio %q", s)
}

// Size returns the export surface size.
func (a Aspect) Size() (w, h int) {
	if a == Portrait {
		return 1080, 1920
	}
	return 1920, 1080
}

// Frame is everything one composited frame depends on.
type Frame struct {
	Background image.Image
	Palette    palette.Palette
	Freq       []uint8
	Lyrics     lyrics.Window
	Time       float64 // audio time in seconds
	SongName   string
	Creator    string
	Font       Font       // lyric typeface; empty uses the compositor default
	Particles  *Particles // already advanced to Time; nil draws none
}

// FontSize returns the lyric font size for a w×h surface.
func FontSize(w, h int) float64 {
	base := 48.0
	if h > w {
		base = 42
	}
	return base * float64(min(w, h)) / 1080
}
