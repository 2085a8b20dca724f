// Package analyzer turns tapped audio into per-bin magnitude snapshots.
package analyzer

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/madelynnblue/go-dsp/fft"
	"github.com/madelynnblue/go-dsp/window"

	"github.com/satindergrewal/lyricvid/internal/audio"
	"github.com/satindergrewal/lyricvid/internal/errs"
)

const (
	DefaultFFTSize = 256
	Smoothing      = 0.8
	MinDecibels    = -100.0
	MaxDecibels    = -30.0
)

// FrequencyData holds one byte per bin, 0 for silence up to 255.
type FrequencyData []uint8

// Mean returns the average magnitude across bins.
func (f FrequencyData) Mean() float64 {
	if len(f) == 0 {
		return 0
	}
	var sum int
	for _, v := range f {
		sum += int(v)
	}
	return float64(sum) / float64(len(f))
}

// Analyzer computes smoothed spectra from the samples captured by a tap.
type Analyzer struct {
	tap    *audio.Tap
	size   int
	window []float64

	mu     sync.Mutex
	smooth []float64
	clock  func() int64
}

// New creates an analyzer over tap. fftSize must be a power of two
// between 32 and 32768 and yields fftSize/2 bins.
func New(tap *audio.Tap, fftSize int) (*Analyzer, error) {
	if fftSize < 32 || fftSize > 32768 || fftSize&(fftSize-1) != 0 {
		return nil, errs.Input("fft size %d is not a power of two in [32, 32768]", fftSize)
	}
	return &Analyzer{
		tap:    tap,
		size:   fftSize,
		window: window.Blackman(fftSize),
		smooth: make([]float64, fftSize/2),
	}, nil
}

// AlignTo makes Sample analyse the window ending at the stream position
// reported by clock instead of the newest captured samples.
func (a *Analyzer) AlignTo(clock func() int64) {
	a.mu.Lock()
	a.clock = clock
	a.mu.Unlock()
}

// Sample returns the current spectrum. It never waits for audio; when
// nothing has been captured the result decays toward silence.
func (a *Analyzer) Sample() FrequencyData {
	a.mu.Lock()
	clock := a.clock
	a.mu.Unlock()

	var samples []float64
	if clock != nil {
		samples = a.tap.SamplesAt(a.size, clock())
	} else {
		samples = a.tap.Samples(a.size)
	}
	return a.analyze(samples)
}

func (a *Analyzer) analyze(samples []float64) FrequencyData {
	buf := make([]float64, a.size)
	copy(buf, samples)
	for i := range buf {
		buf[i] *= a.window[i]
	}
	spectrum := fft.FFTReal(buf)

	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(FrequencyData, len(a.smooth))
	n := float64(a.size)
	for k := range a.smooth {
		mag := cmplx.Abs(spectrum[k]) / n
		a.smooth[k] = Smoothing*a.smooth[k] + (1-Smoothing)*mag
		out[k] = toByte(a.smooth[k])
	}
	return out
}

// Reset clears the smoothing history, e.g. after a seek.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	clear(a.smooth)
	a.mu.Unlock()
}

func toByte(mag float64) uint8 {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	v := 255 * (db - MinDecibels) / (MaxDecibels - MinDecibels)
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}
