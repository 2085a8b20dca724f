package audio

import (
	"context"
	"time"

	"github.com/gopxl/beep/v2"
)

// Pipeline pulls a single source and emits fixed-size PCM frames. In
// realtime mode frames are paced at FrameDuration; otherwise they are
// emitted as fast as the consumer drains them.
type Pipeline struct {
	src      beep.Streamer
	frameCh  chan []int16
	realtime bool
}

// NewPipeline creates a pipeline over src. It runs until src is drained.
func NewPipeline(src beep.Streamer, realtime bool) *Pipeline {
	return &Pipeline{
		src:      src,
		frameCh:  make(chan []int16, 100),
		realtime: realtime,
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each). It is
// closed when Run returns.
func (p *Pipeline) Frames() <-chan []int16 {
	return p.frameCh
}

// Run emits frames until the source is exhausted or ctx is cancelled. A
// nil return means the source ended naturally.
func (p *Pipeline) Run(ctx context.Context) error {
	defer close(p.frameCh)

	var tick <-chan time.Time
	if p.realtime {
		ticker := time.NewTicker(FrameDuration)
		defer ticker.Stop()
		tick = ticker.C
	}

	buf := make([][2]float64, FrameSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := fill(p.src, buf)
		if n == 0 {
			return p.src.Err()
		}
		clear(buf[n:])
		frame := ToInt16(nil, buf)

		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}

		select {
		case p.frameCh <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}

		if n < FrameSize {
			return p.src.Err()
		}
	}
}

// fill reads from s until buf is full or s is drained.
func fill(s beep.Streamer, buf [][2]float64) int {
	n := 0
	for n < len(buf) {
		m, ok := s.Stream(buf[n:])
		n += m
		if !ok || m == 0 {
			break
		}
	}
	return n
}
