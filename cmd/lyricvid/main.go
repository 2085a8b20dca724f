package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/satindergrewal/lyricvid/internal/api"
	"github.com/satindergrewal/lyricvid/internal/audio"
	"github.com/satindergrewal/lyricvid/internal/config"
	"github.com/satindergrewal/lyricvid/internal/errs"
	"github.com/satindergrewal/lyricvid/internal/export"
	"github.com/satindergrewal/lyricvid/internal/llm"
	"github.com/satindergrewal/lyricvid/internal/lyricsource"
	"github.com/satindergrewal/lyricvid/internal/metrics"
	"github.com/satindergrewal/lyricvid/internal/preview"
	"github.com/satindergrewal/lyricvid/internal/render"
	"github.com/satindergrewal/lyricvid/internal/session"
	"github.com/satindergrewal/lyricvid/internal/storage"
	"github.com/satindergrewal/lyricvid/internal/tui"
)

const usage = `usage: lyricvid <command> [flags]

commands:
  preview   build a project and open the preview window
  render    build a project and export it without a window
  list      list stored videos

run "lyricvid <command> -h" for the flags of a command.
`

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Ignoring .env: %v", err)
	}
	cfg := config.Load()
	audio.FFmpegBin = cfg.FFmpegPath

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "preview":
		err = runPreview(ctx, cfg, args)
	case "render":
		err = runRender(ctx, cfg, args)
	case "list":
		err = runList(cfg)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s", errs.Message(err))
	}
}

// projectFlags are shared by preview and render.
type projectFlags struct {
	audio, image      string
	lyrics, lyricFile string
	mode              string
	song, creator     string
	aspect, format    string
	font              string
}

func parseProject(name string, args []string, cfg config.Config, extra func(*flag.FlagSet)) (session.Inputs, string, error) {
	var f projectFlags
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&f.audio, "audio", "", "audio file (mp3, wav, flac, ogg, or anything ffmpeg decodes)")
	fs.StringVar(&f.image, "image", "", "background image")
	fs.StringVar(&f.lyrics, "lyrics", "", "lyric text, one line per display line")
	fs.StringVar(&f.lyricFile, "lyrics-file", "", "read lyric text from a file")
	fs.StringVar(&f.mode, "mode", string(lyricsource.Manual), "timing source: manual or transcribe")
	fs.StringVar(&f.song, "song", "", "song name (default: title tag)")
	fs.StringVar(&f.creator, "creator", "", "creator (default: artist tag)")
	fs.StringVar(&f.aspect, "aspect", string(render.Landscape), "16:9 or 9:16")
	fs.StringVar(&f.font, "font", "", "lyric font: noto, go or a .ttf/.otf file (default: FONT_PATH or noto)")
	fs.StringVar(&f.format, "format", cfg.ExportFormat, "export container: webm or mp4")
	if extra != nil {
		extra(fs)
	}
	fs.Parse(args)

	raw := f.lyrics
	if f.lyricFile != "" {
		data, err := os.ReadFile(f.lyricFile)
		if err != nil {
			return session.Inputs{}, "", errs.Input("read lyrics file: %v", err)
		}
		raw = string(data)
	}
	return session.Inputs{
		AudioPath: f.audio,
		ImagePath: f.image,
		Lyrics:    raw,
		Mode:      lyricsource.Mode(f.mode),
		SongName:  f.song,
		Creator:   f.creator,
		Aspect:    render.Aspect(f.aspect),
		Font:      render.Font(f.font),
	}, f.format, nil
}

// app holds the wired collaborators of one run.
type app struct {
	sess *session.Session
	comp *render.Compositor
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	metrics.Register()

	provider := &lyricsource.Provider{}
	apiKey, baseURL, model := cfg.GeminiAPIKey, "", cfg.GeminiModel
	if cfg.LLMProvider == "ollama" {
		apiKey, baseURL, model = "", cfg.OllamaURL, cfg.OllamaModel
	}
	gen, err := llm.New(cfg.LLMProvider, baseURL, apiKey, model)
	if err != nil {
		log.Printf("Lyric structuring disabled: %v", err)
	} else {
		provider.Structurer = &lyricsource.LLMStructurer{Gen: gen}
		log.Printf("Lyric structuring via %s (%s)", cfg.LLMProvider, gen.Model())
		if oc, ok := gen.(*llm.OllamaClient); ok {
			readyCtx, readyCancel := context.WithTimeout(ctx, 30*time.Second)
			if !oc.WaitForReady(readyCtx) {
				log.Printf("Ollama not reachable at %s, builds will fail until it is", cfg.OllamaURL)
			}
			readyCancel()
		}
	}
	if tr, err := lyricsource.NewTranscriber(cfg.Transcriber, cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.WhisperModel, cfg.WhisperBin); err != nil {
		log.Printf("Transcription disabled: %v", err)
	} else {
		provider.Transcriber = tr
	}
	if rc, err := lyricsource.NewReconciler(cfg.Reconciler, gen); err != nil {
		log.Printf("Reconciliation disabled: %v", err)
	} else {
		provider.Reconciler = rc
	}

	comp, err := render.NewCompositor(cfg.FontPath)
	if err != nil {
		return nil, err
	}
	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	seed := cfg.ParticleSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	exp := export.New(export.Settings{
		Format:   cfg.ExportFormat,
		FPS:      cfg.ExportFPS,
		Realtime: cfg.ExportRealtime,
		FFTSize:  cfg.FFTSize,
		Seed:     seed,
		WorkDir:  cfg.ExportDir,
	}, comp, store)

	sess := session.New(ctx, session.Config{
		Lyrics:   provider,
		Exporter: exp,
		FFTSize:  cfg.FFTSize,
		Seed:     seed,
	})

	if cfg.APIAddr != "" {
		srv := api.New(sess, api.Options{ExportFormat: cfg.ExportFormat})
		go func() {
			if err := srv.Run(ctx, cfg.APIAddr); err != nil {
				log.Printf("API server error: %v", err)
			}
		}()
	}
	return &app{sess: sess, comp: comp}, nil
}

func newStore(cfg config.Config) (*storage.Store, error) {
	return storage.New(storage.Options{
		Provider: cfg.StorageProvider,
		LocalDir: cfg.StorageDir,
		Bucket:   cfg.S3Bucket,
		Region:   cfg.S3Region,
		Endpoint: cfg.S3Endpoint,
		KeyID:    cfg.S3KeyID,
		Secret:   cfg.S3Secret,
	})
}

func runPreview(ctx context.Context, cfg config.Config, args []string) error {
	in, format, err := parseProject("preview", args, cfg, nil)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.sess.Close()

	if _, err := a.sess.Build(ctx, in); err != nil {
		return err
	}
	back, err := preview.Run(ctx, a.sess, a.comp, preview.Options{Scale: cfg.PreviewScale, ExportFormat: format})
	if err != nil {
		return err
	}
	if back {
		log.Println("Preview closed, change the flags and run again to rebuild")
	}
	if done := a.sess.ExportDone(); done != nil {
		if job := a.sess.Job(); job != nil && job.Status().Active() {
			log.Println("Waiting for the export to finish...")
		}
		select {
		case <-done:
			return reportJob(a.sess.Job())
		case <-ctx.Done():
		}
	}
	return nil
}

func runRender(ctx context.Context, cfg config.Config, args []string) error {
	var plain bool
	in, format, err := parseProject("render", args, cfg, func(fs *flag.FlagSet) {
		fs.BoolVar(&plain, "plain", false, "log progress lines instead of the terminal monitor")
	})
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.sess.Close()

	p, err := a.sess.Build(ctx, in)
	if err != nil {
		return err
	}
	job, err := a.sess.Render(format)
	if err != nil {
		return err
	}

	if !plain {
		if _, err := tui.Run(ctx, job, p.SongName); err != nil {
			log.Printf("Monitor error: %v", err)
		}
	}
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.sess.ExportDone():
			return reportJob(job)
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s := job.Snapshot()
			log.Printf("Export %s: %.0f%% (%d frames)", s.Status, s.Progress*100, s.Frames)
		}
	}
}

func reportJob(job *export.Job) error {
	if job == nil {
		return nil
	}
	s := job.Snapshot()
	if s.Status == export.Failed {
		return fmt.Errorf("export failed: %s", s.Error)
	}
	log.Printf("Export saved as %s (%d frames in %.1fs)", s.Artifact, s.Frames, s.Elapsed)
	return nil
}

func runList(cfg config.Config) error {
	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	keys, err := store.Artifacts()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		log.Println("No stored videos")
	}
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}
