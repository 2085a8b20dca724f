package audio

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

// Tap is a streamer wrapper that copies a mono mix of everything flowing
// through it into a ring buffer. Samples pass through untouched.
type Tap struct {
	s    beep.Streamer
	mu   sync.Mutex
	buf  []float64
	pos  int
	size int
	end  int64 // stream position just after the newest captured sample
}

// NewTap wraps a streamer with a ring buffer of the given size.
func NewTap(s beep.Streamer, bufSize int) *Tap {
	return &Tap{
		s:    s,
		buf:  make([]float64, bufSize),
		size: bufSize,
	}
}

// Stream passes audio through while capturing a mono mix into the ring buffer.
func (t *Tap) Stream(samples [][2]float64) (int, bool) {
	n, ok := t.s.Stream(samples)
	t.mu.Lock()
	for i := range n {
		t.buf[t.pos] = (samples[i][0] + samples[i][1]) / 2
		t.pos = (t.pos + 1) % t.size
	}
	t.end += int64(n)
	t.mu.Unlock()
	return n, ok
}

// Err returns the underlying streamer's error.
func (t *Tap) Err() error {
	return t.s.Err()
}

// Samples returns the last n samples from the ring buffer in chronological order.
func (t *Tap) Samples(n int) []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.window(n, t.end)
}

// SamplesAt returns the n samples ending at stream position at. Readers
// that buffer ahead of the listener use it to analyse what is audible
// rather than what was most recently pulled.
func (t *Tap) SamplesAt(n int, at int64) []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.window(n, at)
}

func (t *Tap) window(n int, at int64) []float64 {
	if n > t.size {
		n = t.size
	}
	out := make([]float64, n)
	delay := int(t.end - at)
	if delay < 0 {
		delay = 0
	}
	if delay > t.size-n {
		delay = t.size - n
	}
	start := (t.pos - delay - n + 2*t.size) % t.size
	for i := range n {
		out[i] = t.buf[(start+i)%t.size]
	}
	return out
}

// Reposition records that the wrapped stream jumped to pos and drops the
// captured history, which no longer precedes the new position.
func (t *Tap) Reposition(pos int64) {
	t.mu.Lock()
	clear(t.buf)
	t.end = pos
	t.mu.Unlock()
}

// End returns the stream position after the newest captured sample.
func (t *Tap) End() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.end
}
