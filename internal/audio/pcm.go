package audio

import (
	"encoding/binary"
	"math"
)

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// ToInt16 converts stereo float samples to interleaved int16, clipping to range.
func ToInt16(dst []int16, src [][2]float64) []int16 {
	need := len(src) * Channels
	if cap(dst) < need {
		dst = make([]int16, need)
	}
	dst = dst[:need]
	for i, s := range src {
		dst[i*2] = clip16(s[0])
		dst[i*2+1] = clip16(s[1])
	}
	return dst
}

func clip16(v float64) int16 {
	v = math.Round(v * 32767)
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// PCMStreamer streams interleaved stereo int16 samples as a beep.Streamer.
type PCMStreamer struct {
	samples []int16
	pos     int // stereo frame index
}

// NewPCMStreamer wraps interleaved stereo samples.
func NewPCMStreamer(samples []int16) *PCMStreamer {
	return &PCMStreamer{samples: samples}
}

// Stream implements beep.Streamer.
func (p *PCMStreamer) Stream(samples [][2]float64) (int, bool) {
	total := len(p.samples) / Channels
	if p.pos >= total {
		return 0, false
	}
	n := 0
	for n < len(samples) && p.pos < total {
		samples[n][0] = float64(p.samples[p.pos*2]) / 32768
		samples[n][1] = float64(p.samples[p.pos*2+1]) / 32768
		n++
		p.pos++
	}
	return n, true
}

// Err implements beep.Streamer.
func (p *PCMStreamer) Err() error { return nil }

// Len returns the length in stereo frames.
func (p *PCMStreamer) Len() int { return len(p.samples) / Channels }

// Position returns the current stereo frame index.
func (p *PCMStreamer) Position() int { return p.pos }

// Seek moves to stereo frame index pos.
func (p *PCMStreamer) Seek(pos int) error {
	if pos < 0 {
		pos = 0
	}
	if pos > p.Len() {
		pos = p.Len()
	}
	p.pos = pos
	return nil
}
