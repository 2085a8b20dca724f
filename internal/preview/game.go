package preview

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/satindergrewal/lyricvid/internal/errs"
	"github.com/satindergrewal/lyricvid/internal/playback"
	"github.com/satindergrewal/lyricvid/internal/render"
	"github.com/satindergrewal/lyricvid/internal/session"
)

const seekStep = 5.0 // seconds

// Options tune the preview window.
type Options struct {
	Scale        float64 // fraction of the export resolution to render at
	ExportFormat string
}

// Game is the ebiten game driving a preview.
type Game struct {
	ctx    context.Context
	sess   *session.Session
	pv     *session.Preview
	comp   *render.Compositor
	opts   Options
	canvas *image.RGBA
	screen *ebiten.Image
	status string
	until  time.Time
	back   bool
}

func newGame(ctx context.Context, sess *session.Session, pv *session.Preview, comp *render.Compositor, opts Options) *Game {
	w, h := pv.Project().Aspect.Size()
	if opts.Scale <= 0 || opts.Scale > 1 {
		opts.Scale = 0.5
	}
	w, h = int(float64(w)*opts.Scale), int(float64(h)*opts.Scale)
	return &Game{
		ctx:    ctx,
		sess:   sess,
		pv:     pv,
		comp:   comp,
		opts:   opts,
		canvas: image.NewRGBA(image.Rect(0, 0, w, h)),
		screen: ebiten.NewImage(w, h),
	}
}

// Update advances playback once per tick and handles keys.
func (g *Game) Update() error {
	if g.ctx.Err() != nil {
		return ebiten.Termination
	}
	ctrl := g.pv.Controller
	ctrl.Tick()

	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeySpace):
		if ctrl.State() == playback.Playing {
			g.report(ctrl.Pause())
		} else {
			g.report(ctrl.Play())
		}
	case inpututil.IsKeyJustPressed(ebiten.KeyLeft):
		g.report(ctrl.Seek(ctrl.Snapshot().CurrentTime - seekStep))
	case inpututil.IsKeyJustPressed(ebiten.KeyRight):
		g.report(ctrl.Seek(ctrl.Snapshot().CurrentTime + seekStep))
	case inpututil.IsKeyJustPressed(ebiten.KeyR):
		g.report(ctrl.Replay())
	case inpututil.IsKeyJustPressed(ebiten.KeyE):
		g.requestExport()
	case inpututil.IsKeyJustPressed(ebiten.KeyX):
		if err := g.sess.ResetExport(); err != nil {
			g.flash(errs.Message(err))
		} else {
			g.flash("Export reset")
		}
	case inpututil.IsKeyJustPressed(ebiten.KeyBackspace), inpututil.IsKeyJustPressed(ebiten.KeyEscape):
		if err := g.sess.Back(); err != nil {
			g.flash(errs.Message(err))
			return nil
		}
		g.back = true
		return ebiten.Termination
	case inpututil.IsKeyJustPressed(ebiten.KeyQ):
		return ebiten.Termination
	}
	return nil
}

func (g *Game) requestExport() {
	job, err := g.sess.RequestExport(g.opts.ExportFormat)
	switch {
	case errors.Is(err, session.ErrExportNotStarted):
		g.flash("Play the song once before exporting")
	case err != nil:
		g.flash(errs.Message(err))
	default:
		g.flash("Export started: " + job.ID)
	}
}

func (g *Game) report(err error) {
	if err != nil {
		log.Printf("Preview: %v", err)
		g.flash(errs.Message(err))
	}
}

func (g *Game) flash(msg string) {
	g.status = msg
	g.until = time.Now().Add(4 * time.Second)
}

// Draw composites the current frame.
func (g *Game) Draw(screen *ebiten.Image) {
	g.comp.Render(g.canvas, g.pv.Frame())
	g.screen.WritePixels(g.canvas.Pix)
	screen.DrawImage(g.screen, nil)

	snap := g.pv.Controller.Snapshot()
	line := fmt.Sprintf("%s  %s / %s", snap.State, clock(snap.CurrentTime), clock(snap.Duration))
	if job := g.sess.Job(); job != nil {
		js := job.Snapshot()
		line += fmt.Sprintf("  export %s %.0f%%", js.Status, js.Progress*100)
	}
	if g.status != "" && time.Now().Before(g.until) {
		line += "\n" + g.status
	}
	ebitenutil.DebugPrint(screen, line+"\n[space] play/pause  [left/right] seek  [r] replay  [e] export  [x] reset export  [esc] back")
}

// Layout keeps the canvas size; ebiten scales it to the window.
func (g *Game) Layout(int, int) (int, int) {
	b := g.canvas.Bounds()
	return b.Dx(), b.Dy()
}

func clock(s float64) string {
	d := time.Duration(s * float64(time.Second)).Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// Run opens the session's project in a window and blocks until the window
// closes. It reports whether the user chose Back. The preview is released
// on every exit path.
func Run(ctx context.Context, sess *session.Session, comp *render.Compositor, opts Options) (back bool, err error) {
	pv, err := sess.OpenPreview(Open)
	if err != nil {
		return false, err
	}
	defer sess.ClosePreview()

	g := newGame(ctx, sess, pv, comp, opts)
	w, h := g.Layout(0, 0)
	ebiten.SetWindowSize(w, h)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowTitle(fmt.Sprintf("%s · lyricvid", pv.Project().SongName))
	if err := ebiten.RunGame(g); err != nil && !errors.Is(err, ebiten.Termination) {
		return false, err
	}
	return g.back, nil
}
