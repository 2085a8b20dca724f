package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/satindergrewal/lyricvid/internal/errs"
)

// FFmpegBin is the ffmpeg executable used for formats beep cannot decode.
var FFmpegBin = "ffmpeg"

// Clip is a fully decoded song held in memory at Format. Each call to
// Streamer returns an independent cursor, so preview and export never
// share playback state.
type Clip struct {
	path string
	buf  *beep.Buffer
}

// Load decodes the audio file at path. It uses a native beep decoder for
// mp3, wav, flac and ogg and falls back to ffmpeg for everything else.
func Load(path string) (*Clip, error) {
	start := time.Now()
	buf, err := decodeNative(path)
	if err != nil {
		log.Printf("Native decode of %s failed (%v), trying ffmpeg", filepath.Base(path), err)
		samples, ffErr := DecodeFile(path)
		if ffErr != nil {
			return nil, errs.Asset("decode audio", ffErr)
		}
		buf = beep.NewBuffer(Format)
		buf.Append(NewPCMStreamer(samples))
	}
	if buf.Len() == 0 {
		return nil, errs.Asset("decode audio", fmt.Errorf("%s contains no samples", path))
	}
	c := &Clip{path: path, buf: buf}
	log.Printf("Decoded %s: %s in %s", filepath.Base(path), c.Duration().Round(time.Millisecond), time.Since(start).Round(time.Millisecond))
	return c, nil
}

// NewClip wraps an already-decoded buffer.
func NewClip(path string, buf *beep.Buffer) *Clip {
	return &Clip{path: path, buf: buf}
}

// Path returns the source file path.
func (c *Clip) Path() string { return c.path }

// Len returns the clip length in samples per channel.
func (c *Clip) Len() int { return c.buf.Len() }

// Duration returns the clip length.
func (c *Clip) Duration() time.Duration {
	return SamplesToDuration(int64(c.buf.Len()))
}

// Streamer returns a fresh seekable cursor over the whole clip.
func (c *Clip) Streamer() beep.StreamSeeker {
	return c.buf.Streamer(0, c.buf.Len())
}

func decodeNative(path string) (*beep.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		s, format, err = mp3.Decode(nopCloser{f})
	case ".wav":
		s, format, err = wav.Decode(f)
	case ".flac":
		s, format, err = flac.Decode(f)
	case ".ogg", ".oga":
		s, format, err = vorbis.Decode(nopCloser{f})
	default:
		return nil, fmt.Errorf("no native decoder for %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var src beep.Streamer = s
	if format.SampleRate != Format.SampleRate {
		src = beep.Resample(4, format.SampleRate, Format.SampleRate, s)
	}
	buf := beep.NewBuffer(Format)
	buf.Append(src)
	if err := s.Err(); err != nil {
		return nil, err
	}
	return buf, nil
}

// nopCloser keeps decoders that take ownership from closing f early.
type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

// DecodeFile runs FFmpeg to decode an audio file to raw PCM int16 samples.
// Returns interleaved stereo samples at 48kHz.
func DecodeFile(path string) ([]int16, error) {
	cmd := exec.Command(FFmpegBin,
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}

	// Ensure even byte count for int16 alignment
	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}

	samples := make([]int16, len(out)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
	}

	return samples, nil
}
