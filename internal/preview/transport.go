// Package preview plays a project in a native window with the audio
// driving lyric and visualizer timing.
package preview

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/satindergrewal/lyricvid/internal/analyzer"
	"github.com/satindergrewal/lyricvid/internal/audio"
	"github.com/satindergrewal/lyricvid/internal/errs"
	"github.com/satindergrewal/lyricvid/internal/session"
)

var (
	contextOnce sync.Once
	audioCtx    *ebitaudio.Context
)

// sharedContext returns the process-wide audio context; ebiten allows one.
func sharedContext() *ebitaudio.Context {
	contextOnce.Do(func() {
		audioCtx = ebitaudio.NewContext(audio.SampleRate)
	})
	return audioCtx
}

// streamReader serves a beep stream as 32-bit float little-endian stereo,
// the format NewPlayerF32 expects. Seeking repositions the stream and the
// analyzer tap and drops the analyzer's smoothing history.
type streamReader struct {
	mu     sync.Mutex
	src    beep.StreamSeeker
	tap    *audio.Tap
	an     *analyzer.Analyzer // may be nil
	buf    [][2]float64
	length int64 // bytes
	eof    bool
}

const bytesPerFrame = 8 // two float32 channels

func newStreamReader(src beep.StreamSeeker, tap *audio.Tap, an *analyzer.Analyzer) *streamReader {
	return &streamReader{src: src, tap: tap, an: an, length: int64(src.Len()) * bytesPerFrame}
}

func (r *streamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	if cap(r.buf) < frames {
		r.buf = make([][2]float64, frames)
	}
	buf := r.buf[:frames]
	n, ok := r.tap.Stream(buf)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(p[i*8:], math.Float32bits(float32(buf[i][0])))
		binary.LittleEndian.PutUint32(p[i*8+4:], math.Float32bits(float32(buf[i][1])))
	}
	if !ok || n == 0 {
		r.eof = true
		return n * bytesPerFrame, io.EOF
	}
	return n * bytesPerFrame, nil
}

func (r *streamReader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.tap.End()*bytesPerFrame + offset
	case io.SeekEnd:
		abs = r.length + offset
	default:
		return 0, errors.New("invalid whence")
	}
	abs = max(0, min(abs, r.length))
	pos := abs / bytesPerFrame
	if err := r.src.Seek(int(pos)); err != nil {
		return 0, err
	}
	r.tap.Reposition(pos)
	if r.an != nil {
		r.an.Reset()
	}
	r.eof = pos*bytesPerFrame >= r.length
	return pos * bytesPerFrame, nil
}

func (r *streamReader) atEOF() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eof
}

// Transport plays a clip through the ebiten audio context.
type Transport struct {
	clip   *audio.Clip
	reader *streamReader
	player *ebitaudio.Player
	an     *analyzer.Analyzer
}

var _ session.Player = (*Transport)(nil)

// Open is a session.PlayerFactory. The clip gets a fresh stream whose
// tap is registered in graph.
func Open(clip *audio.Clip, graph *analyzer.Graph) (session.Player, error) {
	src := clip.Streamer()
	node, err := graph.Attach(src)
	if err != nil {
		return nil, err
	}
	reader := newStreamReader(src, node.Tap, node.Analyzer)
	player, err := sharedContext().NewPlayerF32(reader)
	if err != nil {
		graph.Detach(src)
		return nil, errs.Asset("open audio output", err)
	}
	t := &Transport{clip: clip, reader: reader, player: player, an: node.Analyzer}
	// The player buffers ahead; analyse what is audible.
	node.Analyzer.AlignTo(func() int64 { return audio.DurationToSamples(player.Position()) })
	return t, nil
}

func (t *Transport) Play() error {
	t.player.Play()
	return nil
}

func (t *Transport) Pause() error {
	t.player.Pause()
	return nil
}

// Seek moves playback to d and drops the analyzer's smoothing history.
func (t *Transport) Seek(d time.Duration) error {
	if err := t.player.SetPosition(d); err != nil {
		return fmt.Errorf("seek to %s: %w", d, err)
	}
	t.an.Reset()
	return nil
}

func (t *Transport) Position() time.Duration {
	return min(t.player.Position(), t.clip.Duration())
}

func (t *Transport) Duration() time.Duration { return t.clip.Duration() }

// Ended reports a natural end: the stream is drained and the output has
// stopped.
func (t *Transport) Ended() bool {
	return t.reader.atEOF() && !t.player.IsPlaying()
}

func (t *Transport) Close() error {
	t.player.Pause()
	return t.player.Close()
}

func (t *Transport) Analyzer() *analyzer.Analyzer { return t.an }
