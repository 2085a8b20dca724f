package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	"github.com/satindergrewal/lyricvid/internal/errs"
)

// --- Constants ---

func TestConstants(t *testing.T) {
	// 48kHz * 20ms = 960 samples per channel
	if got := SampleRate * int(FrameDuration/time.Millisecond) / 1000; got != FrameSize {
		t.Errorf("FrameSize mismatch: want %d, got %d", got, FrameSize)
	}
	if FrameSamples != FrameSize*Channels {
		t.Errorf("FrameSamples = %d, want %d", FrameSamples, FrameSize*Channels)
	}
	if FrameBytes != FrameSamples*2 {
		t.Errorf("FrameBytes = %d, want %d", FrameBytes, FrameSamples*2)
	}
	if SamplesToDuration(SampleRate) != time.Second {
		t.Errorf("SamplesToDuration(%d) = %v", SampleRate, SamplesToDuration(SampleRate))
	}
	if DurationToSamples(FrameDuration) != FrameSize {
		t.Errorf("DurationToSamples(20ms) = %d", DurationToSamples(FrameDuration))
	}
}

// --- SamplesToBytes / conversions ---

func TestSamplesToBytes(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 256}
	buf := SamplesToBytes(samples)
	if len(buf) != len(samples)*2 {
		t.Fatalf("SamplesToBytes length = %d, want %d", len(buf), len(samples)*2)
	}

	// 256 = 0x0100 -> bytes [0x00, 0x01]
	idx := 5 * 2
	if buf[idx] != 0x00 || buf[idx+1] != 0x01 {
		t.Errorf("Sample 256 encoded as [%02x, %02x], want [00, 01]", buf[idx], buf[idx+1])
	}
}

func TestSamplesBytesRoundTrip(t *testing.T) {
	original := []int16{0, 1, -1, 32767, -32768, 12345, -6789}
	buf := SamplesToBytes(original)

	recovered := make([]int16, len(buf)/2)
	for i := range recovered {
		recovered[i] = int16(uint16(buf[i*2]) | uint16(buf[i*2+1])<<8)
	}

	for i, v := range original {
		if recovered[i] != v {
			t.Errorf("Round-trip sample[%d]: got %d, want %d", i, recovered[i], v)
		}
	}
}

func TestToInt16Clipping(t *testing.T) {
	got := ToInt16(nil, [][2]float64{{0, 1}, {-1, 2}, {-2, 0.5}})
	want := []int16{0, 32767, -32767, 32767, -32768, 16384}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPCMStreamer(t *testing.T) {
	s := NewPCMStreamer([]int16{16384, -16384, 0, 0, 32767, 32767})
	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}
	buf := make([][2]float64, 2)
	n, ok := s.Stream(buf)
	if n != 2 || !ok {
		t.Fatalf("Stream = %d,%v", n, ok)
	}
	if buf[0][0] != 0.5 || buf[0][1] != -0.5 {
		t.Errorf("first sample = %v", buf[0])
	}
	n, _ = s.Stream(buf)
	if n != 1 {
		t.Errorf("tail read = %d, want 1", n)
	}
	if n, ok = s.Stream(buf); n != 0 || ok {
		t.Errorf("drained stream = %d,%v", n, ok)
	}
	s.Seek(-4)
	if s.Position() != 0 {
		t.Errorf("Seek(-4) position = %d", s.Position())
	}
	s.Seek(99)
	if s.Position() != 3 {
		t.Errorf("Seek(99) position = %d", s.Position())
	}
}

// --- Tap ---

func ramp(n int) *PCMStreamer {
	samples := make([]int16, n*2)
	for i := range n {
		samples[i*2] = int16(i)
		samples[i*2+1] = int16(i)
	}
	return NewPCMStreamer(samples)
}

func TestTapPassThrough(t *testing.T) {
	tap := NewTap(ramp(10), 8)
	buf := make([][2]float64, 10)
	n, _ := tap.Stream(buf)
	if n != 10 {
		t.Fatalf("n = %d", n)
	}
	if buf[9][0] != 9.0/32768 {
		t.Errorf("sample altered: %v", buf[9][0])
	}
	if tap.End() != 10 {
		t.Errorf("End = %d, want 10", tap.End())
	}

	last := tap.Samples(3)
	for i, want := range []float64{7, 8, 9} {
		if last[i] != want/32768 {
			t.Errorf("Samples[%d] = %v, want %v", i, last[i]*32768, want)
		}
	}
}

func TestTapSamplesAt(t *testing.T) {
	tap := NewTap(ramp(20), 16)
	buf := make([][2]float64, 20)
	tap.Stream(buf)

	// window of 4 ending at position 15 holds samples 11..14
	got := tap.SamplesAt(4, 15)
	for i, want := range []float64{11, 12, 13, 14} {
		if got[i]*32768 != want {
			t.Errorf("SamplesAt[%d] = %v, want %v", i, got[i]*32768, want)
		}
	}

	// positions older than the ring clamp to the oldest full window
	old := tap.SamplesAt(4, 0)
	if old[0]*32768 != 4 {
		t.Errorf("clamped window starts at %v, want 4", old[0]*32768)
	}

	// future positions clamp to the newest window
	fut := tap.SamplesAt(2, 100)
	if fut[1]*32768 != 19 {
		t.Errorf("future window ends at %v, want 19", fut[1]*32768)
	}
}

func TestTapReposition(t *testing.T) {
	tap := NewTap(ramp(8), 8)
	tap.Stream(make([][2]float64, 8))
	tap.Reposition(1000)
	if tap.End() != 1000 {
		t.Errorf("End = %d, want 1000", tap.End())
	}
	for _, v := range tap.Samples(8) {
		if v != 0 {
			t.Fatal("history not cleared")
		}
	}
}

// --- Pipeline ---

func TestPipelineEmitsAllFramesAndEnds(t *testing.T) {
	// 2.5 frames of audio
	total := FrameSize*2 + FrameSize/2
	p := NewPipeline(ramp(total), false)

	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(context.Background()) }()

	var frames [][]int16
	for f := range p.Frames() {
		frames = append(frames, f)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	for i, f := range frames {
		if len(f) != FrameSamples {
			t.Errorf("frame %d has %d samples, want %d", i, len(f), FrameSamples)
		}
	}
	// last frame is zero-padded past the source end
	if frames[2][FrameSamples-1] != 0 {
		t.Errorf("padding = %d, want 0", frames[2][FrameSamples-1])
	}
}

func TestPipelineCancel(t *testing.T) {
	p := NewPipeline(ramp(FrameSize*100), true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if _, ok := <-p.Frames(); ok {
		t.Error("frames channel should be closed")
	}
}

// --- Clip ---

func writeWAV(t *testing.T, path string, rate beep.SampleRate, n int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	format := beep.Format{SampleRate: rate, NumChannels: 2, Precision: 2}
	if err := wav.Encode(f, ramp(n), format); err != nil {
		t.Fatal(err)
	}
}

func TestLoadWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeWAV(t, path, SampleRate, SampleRate/2)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len() != SampleRate/2 {
		t.Errorf("Len = %d, want %d", c.Len(), SampleRate/2)
	}
	if c.Duration() != 500*time.Millisecond {
		t.Errorf("Duration = %v", c.Duration())
	}
	if c.Path() != path {
		t.Errorf("Path = %q", c.Path())
	}
}

func TestClipStreamersIndependent(t *testing.T) {
	buf := beep.NewBuffer(Format)
	buf.Append(ramp(100))
	c := NewClip("mem", buf)

	a, b := c.Streamer(), c.Streamer()
	a.Stream(make([][2]float64, 60))
	if a.Position() != 60 {
		t.Errorf("a position = %d", a.Position())
	}
	if b.Position() != 0 {
		t.Errorf("b position = %d, want 0 (independent cursor)", b.Position())
	}
}

func TestLoadMissingIsAssetError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.mp3"))
	if !errors.Is(err, errs.ErrAsset) {
		t.Errorf("Load missing = %v, want asset error", err)
	}
}
