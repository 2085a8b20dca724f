// Package audio decodes songs into memory and moves PCM through taps and
// a paced frame pipeline.
package audio

import (
	"time"

	"github.com/gopxl/beep/v2"
)

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Format is the in-memory format every clip is converted to.
var Format = beep.Format{
	SampleRate:  SampleRate,
	NumChannels: Channels,
	Precision:   BitDepth / 8,
}

// SamplesToDuration converts a per-channel sample count to a duration.
func SamplesToDuration(n int64) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}

// DurationToSamples converts d to a per-channel sample count.
func DurationToSamples(d time.Duration) int64 {
	return int64(d) * SampleRate / int64(time.Second)
}
