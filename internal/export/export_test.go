package export

import (
	"context"
	"errors"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/gopxl/beep/v2"

	"github.com/satindergrewal/lyricvid/internal/audio"
	"github.com/satindergrewal/lyricvid/internal/errs"
	"github.com/satindergrewal/lyricvid/internal/lyrics"
	"github.com/satindergrewal/lyricvid/internal/render"
	"github.com/satindergrewal/lyricvid/internal/storage"
	"github.com/satindergrewal/lyricvid/internal/stream"
)

type fakeRecorder struct {
	mu       sync.Mutex
	settings RecorderSettings
	video    int
	audio    int // samples per channel
	size     image.Rectangle
	finished bool
	aborted  bool
	failAt   int
	onAudio  func()
}

func (f *fakeRecorder) factory(_ context.Context, s RecorderSettings) (Recorder, error) {
	f.settings = s
	return f, nil
}

func (f *fakeRecorder) WriteVideo(frame *image.RGBA) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && f.video == f.failAt {
		return errs.Capture("video", errors.New("broken pipe"))
	}
	f.video++
	f.size = frame.Bounds()
	return nil
}

func (f *fakeRecorder) WriteAudio(pcm []int16) error {
	f.mu.Lock()
	f.audio += len(pcm) / audio.Channels
	hook := f.onAudio
	f.onAudio = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (f *fakeRecorder) Finish() error {
	f.finished = true
	return os.WriteFile(f.settings.Path, []byte("video"), 0o644)
}

func (f *fakeRecorder) Abort() { f.aborted = true }

// tone returns a clip of n samples of a 1 kHz sine.
func tone(n int) *audio.Clip {
	i := 0
	s := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if i >= n {
			return 0, false
		}
		k := 0
		for ; k < len(samples) && i < n; k++ {
			v := 0.5 * math.Sin(2*math.Pi*1000*float64(i)/audio.SampleRate)
			samples[k] = [2]float64{v, v}
			i++
		}
		return k, true
	})
	buf := beep.NewBuffer(audio.Format)
	buf.Append(s)
	return audio.NewClip("song.wav", buf)
}

type fixture struct {
	rec   *fakeRecorder
	store *storage.Store
	root  string
	exp   *Exporter
}

func newFixture(t *testing.T, s Settings, samples int) *fixture {
	t.Helper()
	comp, err := render.NewCompositor("")
	if err != nil {
		t.Fatal(err)
	}
	root := t.TempDir()
	store, err := storage.New(storage.Options{LocalDir: root})
	if err != nil {
		t.Fatal(err)
	}
	s.WorkDir = t.TempDir()
	rec := &fakeRecorder{}
	exp := New(s, comp, store,
		WithRecorder(rec.factory),
		WithLoaders(
			func(string) (*audio.Clip, error) { return tone(samples), nil },
			func(string) (image.Image, error) { return image.NewRGBA(image.Rect(0, 0, 64, 36)), nil },
		),
	)
	return &fixture{rec: rec, store: store, root: root, exp: exp}
}

func inputs() Inputs {
	return Inputs{
		AudioPath: "song.wav",
		ImagePath: "cover.png",
		Timeline:  lyrics.New([]lyrics.Lyric{{Text: "first", StartTime: 0.1}}),
		SongName:  "My Song",
		Creator:   "Someone",
	}
}

func TestFilename(t *testing.T) {
	tests := []struct{ song, ext, want string }{
		{"My Song", "webm", "My_Song_lyric_video.webm"},
		{"A  B", ".mp4", "A__B_lyric_video.mp4"},
		{"Solo", "webm", "Solo_lyric_video.webm"},
		{"../../x", "webm", ".._.._x_lyric_video.webm"},
		{`C:\tmp\evil`, "mp4", "C__tmp_evil_lyric_video.mp4"},
		{"मेरा गाना", "webm", "मेरा_गाना_lyric_video.webm"},
	}
	for _, tt := range tests {
		if got := Filename(tt.song, tt.ext); got != tt.want {
			t.Errorf("Filename(%q, %q) = %q, want %q", tt.song, tt.ext, got, tt.want)
		}
	}
}

func TestJobTransitions(t *testing.T) {
	j := NewJob("webm")
	if j.ID == "" || j.Status() != Idle {
		t.Fatalf("new job = %q %s", j.ID, j.Status())
	}
	if err := j.advance(Finalizing); err == nil {
		t.Error("idle -> finalizing should be rejected")
	}
	for _, s := range []Status{Recording, Finalizing, Done} {
		if err := j.advance(s); err != nil {
			t.Fatalf("advance(%s): %v", s, err)
		}
	}
	j.fail(errors.New("late"))
	if j.Status() != Done {
		t.Errorf("failing a done job changed status to %s", j.Status())
	}
	if err := j.advance(Recording); err == nil {
		t.Error("done -> recording should be rejected")
	}

	k := NewJob("mp4")
	k.advance(Recording)
	k.fail(errors.New("boom"))
	if s := k.Snapshot(); s.Status != Failed || s.Error != "boom" {
		t.Errorf("snapshot = %+v", s)
	}
	if NewJob("webm").ID == j.ID {
		t.Error("job ids collide")
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range []Status{Recording, Finalizing} {
		if !s.Active() || s.Terminal() {
			t.Errorf("%s: active=%v terminal=%v", s, s.Active(), s.Terminal())
		}
	}
	for _, s := range []Status{Done, Failed} {
		if s.Active() || !s.Terminal() {
			t.Errorf("%s: active=%v terminal=%v", s, s.Active(), s.Terminal())
		}
	}
}

func TestRunExports(t *testing.T) {
	// 0.2 s of audio: ten 20 ms frames, six 30 fps video frames.
	f := newFixture(t, Settings{}, 9600)
	job := f.exp.NewJob("")
	if job.Snapshot().Format != "webm" {
		t.Fatalf("format = %q before start, want the default", job.Snapshot().Format)
	}

	var monitor *stream.Listener
	f.rec.onAudio = func() {
		if b := job.Monitor(); b != nil {
			monitor = b.Subscribe()
		}
	}

	if err := f.exp.Run(context.Background(), job, inputs()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if f.rec.settings.Width != 1920 || f.rec.settings.Height != 1080 || f.rec.settings.FPS != 30 || f.rec.settings.Format != "webm" {
		t.Errorf("recorder settings = %+v", f.rec.settings)
	}
	if f.rec.video != 6 {
		t.Errorf("video frames = %d, want 6", f.rec.video)
	}
	if f.rec.audio != 9600 {
		t.Errorf("audio samples = %d, want 9600", f.rec.audio)
	}
	if f.rec.size != image.Rect(0, 0, 1920, 1080) {
		t.Errorf("frame size = %v", f.rec.size)
	}
	if !f.rec.finished || f.rec.aborted {
		t.Errorf("finished=%v aborted=%v", f.rec.finished, f.rec.aborted)
	}

	s := job.Snapshot()
	if s.Status != Done || s.Filename != "My_Song_lyric_video.webm" || s.Artifact != "My_Song_lyric_video.webm" {
		t.Errorf("snapshot = %+v", s)
	}
	if s.Progress != 1 || s.Frames != 6 || s.Lyric != "first" {
		t.Errorf("progress=%v frames=%d lyric=%q", s.Progress, s.Frames, s.Lyric)
	}
	if _, err := os.Stat(filepath.Join(f.root, "My_Song_lyric_video.webm")); err != nil {
		t.Errorf("artifact not stored: %v", err)
	}
	if job.Monitor() != nil {
		t.Error("monitor still available after the job finished")
	}

	if monitor == nil {
		t.Fatal("monitor was not available while recording")
	}
	got := 0
	for len(monitor.C) > 0 {
		<-monitor.C
		got++
	}
	if got == 0 {
		t.Error("monitor received no audio")
	}

	obj, name, err := f.exp.Open(job)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	body, _ := io.ReadAll(obj.Body)
	obj.Body.Close()
	if name != "My_Song_lyric_video.webm" || string(body) != "video" {
		t.Errorf("Open = %q, %q", name, body)
	}
}

func TestRunSnapshotsWhileRecording(t *testing.T) {
	f := newFixture(t, Settings{}, 48000)
	job := f.exp.NewJob("")
	done := make(chan struct{})
	go func() {
		defer close(done)
		for !job.Status().Terminal() {
			if s := job.Snapshot(); s.Format != "webm" {
				t.Errorf("format = %q during export", s.Format)
				return
			}
		}
	}()
	if err := f.exp.Run(context.Background(), job, inputs()); err != nil {
		t.Fatal(err)
	}
	<-done
}

func TestRunKeepsArtifactInsideStore(t *testing.T) {
	f := newFixture(t, Settings{}, 960)
	in := inputs()
	in.SongName = "../../escape"
	job := f.exp.NewJob("webm")
	if err := f.exp.Run(context.Background(), job, in); err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := job.Snapshot()
	if s.Artifact != ".._.._escape_lyric_video.webm" {
		t.Errorf("artifact = %q", s.Artifact)
	}
	if _, err := os.Stat(filepath.Join(f.root, s.Artifact)); err != nil {
		t.Errorf("artifact not inside the store: %v", err)
	}
}

func TestRunPortraitMP4(t *testing.T) {
	f := newFixture(t, Settings{Aspect: render.Portrait}, 960)
	job := NewJob("mp4")
	if err := f.exp.Run(context.Background(), job, inputs()); err != nil {
		t.Fatal(err)
	}
	if f.rec.settings.Width != 1080 || f.rec.settings.Height != 1920 {
		t.Errorf("size = %dx%d", f.rec.settings.Width, f.rec.settings.Height)
	}
	if !strings.HasSuffix(job.Snapshot().Filename, ".mp4") {
		t.Errorf("filename = %q", job.Snapshot().Filename)
	}
}

func TestRunAssetFailure(t *testing.T) {
	f := newFixture(t, Settings{}, 960)
	f.exp.loadImage = func(string) (image.Image, error) {
		return nil, errs.Asset("decode image", errors.New("not a png"))
	}
	job := NewJob("webm")
	err := f.exp.Run(context.Background(), job, inputs())
	if !errors.Is(err, errs.ErrAsset) {
		t.Fatalf("err = %v, want asset error", err)
	}
	if job.Status() != Failed {
		t.Errorf("status = %s", job.Status())
	}
	if f.rec.settings.Path != "" {
		t.Error("recorder started before assets were ready")
	}
}

func TestRunCaptureFailure(t *testing.T) {
	f := newFixture(t, Settings{}, 48000)
	f.rec.failAt = 2
	job := NewJob("webm")
	err := f.exp.Run(context.Background(), job, inputs())
	if !errors.Is(err, errs.ErrCapture) {
		t.Fatalf("err = %v, want capture error", err)
	}
	if !f.rec.aborted || f.rec.finished {
		t.Errorf("aborted=%v finished=%v", f.rec.aborted, f.rec.finished)
	}
	if s := job.Snapshot(); s.Status != Failed || !strings.Contains(s.Error, "broken pipe") {
		t.Errorf("snapshot = %+v", s)
	}
	if _, _, err := f.exp.Open(job); err == nil {
		t.Error("Open on a failed job should fail")
	}
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t, Settings{Realtime: true}, 48000*10)
	ctx, cancel := context.WithCancel(context.Background())
	f.rec.onAudio = cancel
	job := NewJob("webm")
	if err := f.exp.Run(ctx, job, inputs()); !errors.Is(err, errs.ErrCapture) {
		t.Fatalf("err = %v, want capture error", err)
	}
	if !f.rec.aborted {
		t.Error("recorder not aborted")
	}
}

func TestRunRejectsUnknownFormat(t *testing.T) {
	f := newFixture(t, Settings{}, 960)
	job := NewJob("avi")
	if err := f.exp.Run(context.Background(), job, inputs()); !errors.Is(err, errs.ErrInput) {
		t.Fatalf("err = %v, want input error", err)
	}
}

func TestFFmpegArgs(t *testing.T) {
	s := RecorderSettings{Path: "out.webm", Width: 1920, Height: 1080, FPS: 30, Format: "webm"}
	args, err := ffmpegArgs(s)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"rawvideo", "rgba", "1920x1080", "pipe:0", "s16le", "48000", "pipe:3", "libvpx-vp9", "libopus", "out.webm"} {
		if !slices.Contains(args, want) {
			t.Errorf("webm args missing %q: %v", want, args)
		}
	}

	s.Format, s.Path = "mp4", "out.mp4"
	args, _ = ffmpegArgs(s)
	for _, want := range []string{"libx264", "aac", "+faststart"} {
		if !slices.Contains(args, want) {
			t.Errorf("mp4 args missing %q", want)
		}
	}

	s.Format = "gif"
	if _, err := ffmpegArgs(s); !errors.Is(err, errs.ErrInput) {
		t.Errorf("gif: %v", err)
	}
}
