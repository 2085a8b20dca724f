package export

import (
	"context"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/satindergrewal/lyricvid/internal/analyzer"
	"github.com/satindergrewal/lyricvid/internal/audio"
	"github.com/satindergrewal/lyricvid/internal/errs"
	"github.com/satindergrewal/lyricvid/internal/lyrics"
	"github.com/satindergrewal/lyricvid/internal/metrics"
	"github.com/satindergrewal/lyricvid/internal/palette"
	"github.com/satindergrewal/lyricvid/internal/render"
	"github.com/satindergrewal/lyricvid/internal/storage"
	"github.com/satindergrewal/lyricvid/internal/stream"
)

// DefaultFPS is the export frame rate.
const DefaultFPS = 30

// Settings are fixed for the lifetime of an Exporter.
type Settings struct {
	Aspect   render.Aspect
	Format   string // default container when a job names none
	FPS      int
	Realtime bool // pace audio at 1x; false renders as fast as possible
	FFTSize  int
	Seed     int64 // particle seed
	WorkDir  string
}

// Inputs is the project being exported.
type Inputs struct {
	AudioPath string
	ImagePath string
	Timeline  lyrics.Timeline
	Palette   palette.Palette
	SongName  string
	Creator   string
	Aspect    render.Aspect // empty uses Settings.Aspect
	Font      render.Font   // empty uses the compositor default
}

// Exporter renders Inputs into a video file.
type Exporter struct {
	settings   Settings
	compositor *render.Compositor
	store      *storage.Store
	recorder   RecorderFactory
	loadAudio  func(string) (*audio.Clip, error)
	loadImage  func(string) (image.Image, error)
}

type Option func(*Exporter)

// WithRecorder replaces the ffmpeg recorder.
func WithRecorder(f RecorderFactory) Option {
	return func(e *Exporter) { e.recorder = f }
}

// WithLoaders replaces the audio and image decoders.
func WithLoaders(loadAudio func(string) (*audio.Clip, error), loadImage func(string) (image.Image, error)) Option {
	return func(e *Exporter) {
		e.loadAudio = loadAudio
		e.loadImage = loadImage
	}
}

// New creates an exporter that stores finished videos in store.
func New(s Settings, c *render.Compositor, store *storage.Store, opts ...Option) *Exporter {
	if s.FPS <= 0 {
		s.FPS = DefaultFPS
	}
	if s.Format == "" {
		s.Format = "webm"
	}
	if s.Aspect == "" {
		s.Aspect = render.Landscape
	}
	if s.WorkDir == "" {
		s.WorkDir = os.TempDir()
	}
	e := &Exporter{
		settings:   s,
		compositor: c,
		store:      store,
		recorder:   NewFFmpegRecorder,
		loadAudio:  audio.Load,
		loadImage:  palette.Load,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewJob creates a job for format, or for the default container when
// format is empty. The format is fixed before the job is shared.
func (e *Exporter) NewJob(format string) *Job {
	if format == "" {
		format = e.settings.Format
	}
	return NewJob(format)
}

// Run exports in to a file and marks job done, or failed with the error
// it returns. Nothing is retried.
func (e *Exporter) Run(ctx context.Context, job *Job, in Inputs) error {
	start := time.Now()
	if err := e.run(ctx, job, in); err != nil {
		job.fail(err)
		metrics.ExportJobs.WithLabelValues(string(Failed)).Inc()
		log.Printf("Export %s failed: %v", job.ID, err)
		return err
	}
	metrics.ExportJobs.WithLabelValues(string(Done)).Inc()
	metrics.ExportDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (e *Exporter) run(ctx context.Context, job *Job, in Inputs) error {
	format := job.Format
	if format == "" {
		format = e.settings.Format
	}
	if _, err := codecArgs(format); err != nil {
		return err
	}

	// Capture starts only once both assets are decoded.
	var (
		clip *audio.Clip
		bg   image.Image
		g    errgroup.Group
	)
	g.Go(func() error {
		c, err := e.loadAudio(in.AudioPath)
		clip = c
		return err
	})
	g.Go(func() error {
		if in.ImagePath == "" {
			return nil
		}
		img, err := e.loadImage(in.ImagePath)
		bg = img
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	aspect := in.Aspect
	if aspect == "" {
		aspect = e.settings.Aspect
	}
	w, h := aspect.Size()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	graph := analyzer.NewGraph(e.settings.FFTSize)
	defer graph.Close()
	src := clip.Streamer()
	node, err := graph.Attach(src)
	if err != nil {
		return err
	}
	var videoPos int64
	node.Analyzer.AlignTo(func() int64 { return videoPos })
	pipe := audio.NewPipeline(node.Tap, e.settings.Realtime)

	name := Filename(in.SongName, format)
	tmp := filepath.Join(e.settings.WorkDir, job.ID+"."+format)
	rec, err := e.recorder(ctx, RecorderSettings{Path: tmp, Width: w, Height: h, FPS: e.settings.FPS, Format: format})
	if err != nil {
		if errs.KindOf(err) == nil {
			err = errs.Capture("start recorder", err)
		}
		return err
	}

	monitor := stream.NewBroadcaster()
	defer monitor.Close()
	if err := job.begin(name, clip.Duration(), monitor); err != nil {
		rec.Abort()
		return err
	}
	log.Printf("Export %s recording %s (%s, %dx%d@%d)", job.ID, name, clip.Duration().Round(time.Millisecond), w, h, e.settings.FPS)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- pipe.Run(ctx) }()

	abort := func(err error) error {
		cancel()
		for range pipe.Frames() {
		}
		<-runErr
		rec.Abort()
		return err
	}

	particles := render.NewParticles(e.settings.Seed)
	total := int64(clip.Len())
	fps := float64(e.settings.FPS)
	var consumed int64
	frames := 0
	for pcm := range pipe.Frames() {
		if err := rec.WriteAudio(pcm); err != nil {
			return abort(err)
		}
		monitor.Publish(pcm)
		consumed = min(consumed+int64(len(pcm)/audio.Channels), total)

		// Render every video timestamp the audio has now passed.
		for {
			vt := float64(frames) / fps
			vs := int64(vt * audio.SampleRate)
			if vs >= consumed {
				break
			}
			videoPos = vs
			freq := node.Analyzer.Sample()
			particles.Advance(freq, vt)
			idx := lyrics.ActiveIndex(in.Timeline, vt)
			e.compositor.Render(dst, render.Frame{
				Background: bg,
				Palette:    in.Palette,
				Freq:       freq,
				Lyrics:     in.Timeline.Window(idx),
				Time:       vt,
				SongName:   in.SongName,
				Creator:    in.Creator,
				Font:       in.Font,
				Particles:  particles,
			})
			if err := rec.WriteVideo(dst); err != nil {
				return abort(err)
			}
			frames++
			metrics.ExportFrames.Inc()
			job.progress(audio.SamplesToDuration(consumed), frames, freq, in.Timeline.Text(idx))
		}
	}
	if err := <-runErr; err != nil {
		rec.Abort()
		return errs.Capture("audio pipeline", err)
	}

	if err := job.advance(Finalizing); err != nil {
		rec.Abort()
		return err
	}
	monitor.Close()
	graph.Close()
	if err := rec.Finish(); err != nil {
		os.Remove(tmp)
		return err
	}

	key, err := e.store.SaveArtifact(name, tmp, storage.ContentType(name))
	os.Remove(tmp)
	if err != nil {
		return errs.Capture("store artifact", err)
	}
	if err := job.complete(key); err != nil {
		return err
	}
	log.Printf("Export %s done: %s, %d frames", job.ID, key, frames)
	return nil
}

// Open returns the stored artifact of a finished job.
func (e *Exporter) Open(job *Job) (*storage.FileObject, string, error) {
	s := job.Snapshot()
	if s.Status != Done {
		return nil, "", fmt.Errorf("export %s is %s", s.ID, s.Status)
	}
	obj, err := e.store.Open(s.Artifact)
	if err != nil {
		return nil, "", err
	}
	return obj, s.Filename, nil
}

