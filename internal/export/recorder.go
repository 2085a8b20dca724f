package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/satindergrewal/lyricvid/internal/audio"
	"github.com/satindergrewal/lyricvid/internal/errs"
)

// RecorderSettings describes the file a recorder produces.
type RecorderSettings struct {
	Path   string
	Width  int
	Height int
	FPS    int
	Format string // "webm" or "mp4"
}

// Recorder consumes raw frames and audio and encodes them into one file.
type Recorder interface {
	WriteVideo(frame *image.RGBA) error
	WriteAudio(pcm []int16) error
	// Finish closes both inputs and waits for the file to be complete.
	Finish() error
	// Abort stops encoding and discards the output.
	Abort()
}

// RecorderFactory starts a recorder.
type RecorderFactory func(ctx context.Context, s RecorderSettings) (Recorder, error)

// codecArgs returns the encoder flags for a container.
func codecArgs(format string) ([]string, error) {
	switch format {
	case "webm":
		return []string{
			"-c:v", "libvpx-vp9", "-b:v", "6M", "-deadline", "realtime", "-cpu-used", "8", "-row-mt", "1",
			"-pix_fmt", "yuv420p",
			"-c:a", "libopus", "-b:a", "160k",
		}, nil
	case "mp4":
		return []string{
			"-c:v", "libx264", "-preset", "veryfast", "-crf", "20",
			"-pix_fmt", "yuv420p",
			"-c:a", "aac", "-b:a", "192k",
			"-movflags", "+faststart",
		}, nil
	}
	return nil, errs.Input("unsupported export format %q (use webm or mp4)", format)
}

// ffmpegArgs builds the full command line: raw RGBA video on stdin, s16le
// audio on fd 3.
func ffmpegArgs(s RecorderSettings) ([]string, error) {
	codec, err := codecArgs(s.Format)
	if err != nil {
		return nil, err
	}
	args := []string{
		"-y", "-loglevel", "error",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", s.Width, s.Height),
		"-r", strconv.Itoa(s.FPS),
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:3",
	}
	args = append(args, codec...)
	return append(args, "-f", s.Format, s.Path), nil
}

// pipeWriter owns one ffmpeg input. Writes are queued so a full video
// pipe never stalls the audio pipe and vice versa.
type pipeWriter struct {
	name string
	w    io.WriteCloser
	ch   chan []byte
	done chan struct{}

	mu  sync.Mutex
	err error
}

func newPipeWriter(name string, w io.WriteCloser, depth int) *pipeWriter {
	p := &pipeWriter{name: name, w: w, ch: make(chan []byte, depth), done: make(chan struct{})}
	go p.run()
	return p
}

func (p *pipeWriter) run() {
	defer close(p.done)
	for b := range p.ch {
		if p.failed() != nil {
			continue
		}
		if _, err := p.w.Write(b); err != nil {
			p.mu.Lock()
			p.err = fmt.Errorf("write %s: %w", p.name, err)
			p.mu.Unlock()
		}
	}
	p.w.Close()
}

func (p *pipeWriter) failed() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *pipeWriter) write(b []byte) error {
	if err := p.failed(); err != nil {
		return err
	}
	p.ch <- b
	return nil
}

// close flushes queued data, closes the pipe and returns the first write error.
func (p *pipeWriter) close() error {
	close(p.ch)
	<-p.done
	return p.failed()
}

// FFmpegRecorder encodes with an ffmpeg child process.
type FFmpegRecorder struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	path   string
	video  *pipeWriter
	audio  *pipeWriter
	stderr lockedBuffer
	once   sync.Once
}

// lockedBuffer collects ffmpeg's stderr while it is still running.
type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

// NewFFmpegRecorder is a RecorderFactory that runs audio.FFmpegBin.
func NewFFmpegRecorder(ctx context.Context, s RecorderSettings) (Recorder, error) {
	bin, err := exec.LookPath(audio.FFmpegBin)
	if err != nil {
		return nil, errs.Capture("find ffmpeg", err)
	}
	args, err := ffmpegArgs(s)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &FFmpegRecorder{cancel: cancel, path: s.Path}
	r.cmd = exec.CommandContext(ctx, bin, args...)
	r.cmd.Stderr = &r.stderr

	stdin, err := r.cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, errs.Capture("video pipe", err)
	}
	audioR, audioW, err := os.Pipe()
	if err != nil {
		cancel()
		return nil, errs.Capture("audio pipe", err)
	}
	r.cmd.ExtraFiles = []*os.File{audioR}

	if err := r.cmd.Start(); err != nil {
		cancel()
		audioR.Close()
		audioW.Close()
		return nil, errs.Capture("start ffmpeg", err)
	}
	audioR.Close()

	r.video = newPipeWriter("video", stdin, 4)
	r.audio = newPipeWriter("audio", audioW, 64)
	log.Printf("Recorder started: %s %dx%d@%d", s.Format, s.Width, s.Height, s.FPS)
	return r, nil
}

// WriteVideo queues a copy of frame.
func (r *FFmpegRecorder) WriteVideo(frame *image.RGBA) error {
	if err := r.video.write(bytes.Clone(frame.Pix)); err != nil {
		return errs.Capture("video", fmt.Errorf("%w: %s", err, r.stderrTail()))
	}
	return nil
}

// WriteAudio queues a 20ms PCM frame.
func (r *FFmpegRecorder) WriteAudio(pcm []int16) error {
	if err := r.audio.write(audio.SamplesToBytes(pcm)); err != nil {
		return errs.Capture("audio", fmt.Errorf("%w: %s", err, r.stderrTail()))
	}
	return nil
}

// Finish implements Recorder.
func (r *FFmpegRecorder) Finish() error {
	var err error
	r.once.Do(func() {
		defer r.cancel()
		verr := r.video.close()
		aerr := r.audio.close()
		werr := r.cmd.Wait()
		switch {
		case werr != nil:
			err = errs.Capture("ffmpeg", fmt.Errorf("%w: %s", werr, r.stderrTail()))
		case verr != nil:
			err = errs.Capture("ffmpeg", verr)
		case aerr != nil:
			err = errs.Capture("ffmpeg", aerr)
		}
	})
	return err
}

// Abort implements Recorder.
func (r *FFmpegRecorder) Abort() {
	r.once.Do(func() {
		r.cancel()
		r.video.close()
		r.audio.close()
		r.cmd.Wait()
		os.Remove(r.path)
		log.Printf("Recorder aborted, removed %s", r.path)
	})
}

func (r *FFmpegRecorder) stderrTail() string {
	s := strings.TrimSpace(r.stderr.String())
	if len(s) > 300 {
		s = "..." + s[len(s)-300:]
	}
	return s
}
