// Package session owns one lyric video project: its timeline and palette,
// the resources of an open preview, and the single export job.
package session

import (
	"context"
	"errors"
	"image"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/satindergrewal/lyricvid/internal/analyzer"
	"github.com/satindergrewal/lyricvid/internal/audio"
	"github.com/satindergrewal/lyricvid/internal/errs"
	"github.com/satindergrewal/lyricvid/internal/export"
	"github.com/satindergrewal/lyricvid/internal/lyrics"
	"github.com/satindergrewal/lyricvid/internal/lyricsource"
	"github.com/satindergrewal/lyricvid/internal/metadata"
	"github.com/satindergrewal/lyricvid/internal/metrics"
	"github.com/satindergrewal/lyricvid/internal/palette"
	"github.com/satindergrewal/lyricvid/internal/playback"
	"github.com/satindergrewal/lyricvid/internal/render"
	"github.com/satindergrewal/lyricvid/internal/storage"
)

var (
	ErrNoProject        = errors.New("no project has been built")
	ErrExportNotStarted = errors.New("play the song once before exporting")
	ErrExportBusy       = errors.New("an export is already running")
	ErrExportPending    = errors.New("reset the finished export before starting another")
	ErrNoExport         = errors.New("no export has been requested")
)

// TimelineSource produces a lyric timeline.
type TimelineSource interface {
	Timeline(ctx context.Context, req lyricsource.Request) (lyrics.Timeline, error)
}

// Inputs is the form a project is built from.
type Inputs struct {
	AudioPath string
	ImagePath string
	Lyrics    string
	Mode      lyricsource.Mode
	SongName  string // defaults to the audio title tag
	Creator   string // defaults to the audio artist tag
	Aspect    render.Aspect
	Font      render.Font // lyric typeface; empty uses the configured default
}

// Project is a built, immutable set of assets.
type Project struct {
	Inputs
	Timeline   lyrics.Timeline
	Palette    palette.Palette
	Clip       *audio.Clip
	Background image.Image
}

// Config wires a Session's collaborators.
type Config struct {
	Lyrics    TimelineSource
	Palette   palette.Provider
	Exporter  *export.Exporter
	FFTSize   int
	Seed      int64
	LoadAudio func(string) (*audio.Clip, error)
	LoadImage func(string) (image.Image, error)
}

// Session is the root of one running lyricvid instance.
type Session struct {
	cfg Config
	ctx context.Context

	mu         sync.Mutex
	project    *Project
	preview    *Preview
	job        *export.Job
	jobDone    chan struct{}
	observers  []func(Event)
	observerMu sync.RWMutex
}

// New creates an empty session. ctx bounds background exports.
func New(ctx context.Context, cfg Config) *Session {
	if cfg.Palette == nil {
		cfg.Palette = palette.Extractor{}
	}
	if cfg.LoadAudio == nil {
		cfg.LoadAudio = audio.Load
	}
	if cfg.LoadImage == nil {
		cfg.LoadImage = palette.Load
	}
	return &Session{cfg: cfg, ctx: ctx}
}

// Build decodes the assets and produces the timeline and palette. On any
// error the previous project, if any, is left as it was.
func (s *Session) Build(ctx context.Context, in Inputs) (*Project, error) {
	if strings.TrimSpace(in.AudioPath) == "" {
		return nil, errs.Input("an audio file is required")
	}
	if strings.TrimSpace(in.ImagePath) == "" {
		return nil, errs.Input("a background image is required")
	}
	if in.Mode == "" {
		in.Mode = lyricsource.Manual
	}
	aspect, err := render.ParseAspect(string(in.Aspect))
	if err != nil {
		return nil, err
	}
	in.Aspect = aspect
	font, err := render.ParseFont(string(in.Font))
	if err != nil {
		return nil, err
	}
	in.Font = font
	if s.cfg.Lyrics == nil {
		return nil, errs.Input("no lyric source configured")
	}

	start := time.Now()
	p := &Project{Inputs: in}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		clip, err := s.cfg.LoadAudio(in.AudioPath)
		if err != nil {
			return err
		}
		p.Clip = clip
		tl, err := s.cfg.Lyrics.Timeline(gctx, lyricsource.Request{
			Mode:      in.Mode,
			Raw:       in.Lyrics,
			AudioPath: in.AudioPath,
			Duration:  clip.Duration(),
		})
		if err != nil {
			return err
		}
		p.Timeline = tl
		return nil
	})
	g.Go(func() error {
		img, err := s.cfg.LoadImage(in.ImagePath)
		if err != nil {
			return err
		}
		p.Background = img
		p.Palette = s.cfg.Palette.Palette(img).OrFallback()
		return nil
	})
	if err := g.Wait(); err != nil {
		metrics.TimelineBuilds.WithLabelValues(string(in.Mode), "failed").Inc()
		log.Printf("Build failed: %v", err)
		return nil, err
	}
	metrics.TimelineBuilds.WithLabelValues(string(in.Mode), "ok").Inc()
	metrics.TimelineBuildDuration.WithLabelValues(string(in.Mode)).Observe(time.Since(start).Seconds())

	if p.SongName == "" || p.Creator == "" {
		if t, err := metadata.Read(p.Clip.Path()); err == nil {
			if p.SongName == "" {
				p.SongName = t.Title
			}
			if p.Creator == "" {
				p.Creator = t.Artist
			}
		}
	}

	s.mu.Lock()
	if s.job != nil && s.job.Status().Active() {
		s.mu.Unlock()
		return nil, ErrExportBusy
	}
	old := s.preview
	s.project, s.preview, s.job = p, nil, nil
	s.mu.Unlock()
	if old != nil {
		old.close()
	}

	log.Printf("Built project %q: %d lyric lines, palette %v, %s", p.SongName, len(p.Timeline), p.Palette, p.Clip.Duration().Round(time.Second))
	s.emit(Event{Type: EventProject})
	return p, nil
}

// Project returns the current project, or nil.
func (s *Session) Project() *Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project
}

// Back discards the project and releases the preview. It fails while an
// export is running.
func (s *Session) Back() error {
	s.mu.Lock()
	if s.job != nil && s.job.Status().Active() {
		s.mu.Unlock()
		return ErrExportBusy
	}
	pv := s.preview
	s.project, s.preview, s.job = nil, nil, nil
	s.mu.Unlock()

	var err error
	if pv != nil {
		err = pv.close()
	}
	s.emit(Event{Type: EventProject})
	return err
}

// Close releases everything the session holds.
func (s *Session) Close() error {
	s.mu.Lock()
	pv := s.preview
	s.preview = nil
	s.mu.Unlock()
	if pv != nil {
		return pv.close()
	}
	return nil
}

// Preview returns the open preview, or nil.
func (s *Session) Preview() *Preview {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview
}

// Job returns the current export job, or nil.
func (s *Session) Job() *export.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

// ExportDone returns a channel closed when the current job finishes, or
// nil when there is no job.
func (s *Session) ExportDone() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job == nil {
		return nil
	}
	return s.jobDone
}

// RequestExport starts an export of the previewed project. It is refused,
// without creating a job, until playback has started once.
func (s *Session) RequestExport(format string) (*export.Job, error) {
	return s.startExport(format, true)
}

// Render starts an export without a preview, for headless use.
func (s *Session) Render(format string) (*export.Job, error) {
	return s.startExport(format, false)
}

func (s *Session) startExport(format string, gated bool) (*export.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.project == nil {
		return nil, ErrNoProject
	}
	if gated && (s.preview == nil || !s.preview.Controller.Started()) {
		return nil, ErrExportNotStarted
	}
	if s.job != nil {
		if s.job.Status().Active() {
			return nil, ErrExportBusy
		}
		return nil, ErrExportPending
	}
	if s.cfg.Exporter == nil {
		return nil, errs.Input("exporting is not configured")
	}

	p := s.project
	job := s.cfg.Exporter.NewJob(format)
	done := make(chan struct{})
	s.job, s.jobDone = job, done
	in := export.Inputs{
		AudioPath: p.AudioPath,
		ImagePath: p.ImagePath,
		Timeline:  p.Timeline,
		Palette:   p.Palette,
		SongName:  p.SongName,
		Creator:   p.Creator,
		Aspect:    p.Aspect,
		Font:      p.Font,
	}
	go func() {
		defer close(done)
		s.emit(Event{Type: EventExport})
		s.cfg.Exporter.Run(s.ctx, job, in)
		s.emit(Event{Type: EventExport})
	}()
	return job, nil
}

// Artifact opens the stored video of the finished job.
func (s *Session) Artifact() (*storage.FileObject, string, error) {
	s.mu.Lock()
	job := s.job
	s.mu.Unlock()
	if job == nil {
		return nil, "", ErrNoExport
	}
	if s.cfg.Exporter == nil {
		return nil, "", errs.Input("exporting is not configured")
	}
	return s.cfg.Exporter.Open(job)
}

// ResetExport forgets a finished or failed job so another can start.
func (s *Session) ResetExport() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job != nil && s.job.Status().Active() {
		return ErrExportBusy
	}
	s.job, s.jobDone = nil, nil
	return nil
}

// OpenPreview starts a preview of the current project through a player
// from open. A preview that is already open is returned as is.
func (s *Session) OpenPreview(open PlayerFactory, opts ...playback.Option) (*Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.project == nil {
		return nil, ErrNoProject
	}
	if s.preview != nil {
		return s.preview, nil
	}

	sc := &scope{}
	graph := analyzer.NewGraph(s.cfg.FFTSize)
	sc.Acquire("analyzer graph", graph.Close)
	player, err := open(s.project.Clip, graph)
	if err != nil {
		sc.Release()
		return nil, err
	}
	tl := s.project.Timeline
	opts = append(opts, playback.WithObserver(func(ev playback.Event) { s.forward(tl, ev) }))
	ctrl := playback.New(player, s.project.Timeline, opts...)
	sc.Acquire("transport", ctrl.Close)

	s.preview = &Preview{
		Controller: ctrl,
		project:    s.project,
		player:     player,
		particles:  render.NewParticles(s.cfg.Seed),
		scope:      sc,
	}
	log.Printf("Preview opened for %q", s.project.SongName)
	return s.preview, nil
}

// ClosePreview releases the preview but keeps the project.
func (s *Session) ClosePreview() error {
	s.mu.Lock()
	pv := s.preview
	s.preview = nil
	s.mu.Unlock()
	if pv == nil {
		return nil
	}
	return pv.close()
}
