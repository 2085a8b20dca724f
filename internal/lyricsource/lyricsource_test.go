package lyricsource

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/satindergrewal/lyricvid/internal/errs"
	"github.com/satindergrewal/lyricvid/internal/llm"
	"github.com/satindergrewal/lyricvid/internal/lyrics"
)

type fakeGen struct {
	out  string
	err  error
	last llm.Request
	n    int
}

func (f *fakeGen) Generate(_ context.Context, r llm.Request) (string, error) {
	f.last = r
	f.n++
	return f.out, f.err
}

func (f *fakeGen) Model() string { return "fake" }

type fakeTranscriber struct {
	segs []Segment
	err  error
}

func (f fakeTranscriber) Transcribe(context.Context, string) ([]Segment, error) {
	return f.segs, f.err
}

func TestStructureResorts(t *testing.T) {
	gen := &fakeGen{out: "```json\n[{\"text\":\"Y\",\"startTime\":5},{\"text\":\"X\",\"startTime\":2}]\n```"}
	s := &LLMStructurer{Gen: gen}
	tl, err := s.Structure(context.Background(), "X\nY", 3*time.Minute)
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}
	if len(tl) != 2 || tl[0].Text != "X" || tl[1].Text != "Y" {
		t.Errorf("timeline = %+v, want [X(2) Y(5)]", tl)
	}
	if !strings.Contains(gen.last.Prompt, "5-second") || !strings.Contains(gen.last.Prompt, "180 seconds") {
		t.Errorf("prompt missing lead-in or duration:\n%s", gen.last.Prompt)
	}
	if gen.last.Schema == nil {
		t.Error("schema not requested")
	}
}

func TestStructureFailures(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGen
	}{
		{"service error", &fakeGen{err: errors.New("quota exceeded")}},
		{"not an array", &fakeGen{out: `{"text":"a","startTime":1}`}},
		{"missing field", &fakeGen{out: `[{"text":"a"}]`}},
		{"prose", &fakeGen{out: `Sorry, I cannot help with that.`}},
		{"empty", &fakeGen{out: `[]`}},
	}
	for _, tt := range tests {
		_, err := (&LLMStructurer{Gen: tt.gen}).Structure(context.Background(), "a", 0)
		if !errors.Is(err, errs.ErrCollaborator) {
			t.Errorf("%s: err = %v, want collaborator error", tt.name, err)
		}
		if tt.gen.n != 1 {
			t.Errorf("%s: %d calls, want exactly 1 (no retry)", tt.name, tt.gen.n)
		}
	}
}

func TestProviderHindiScenario(t *testing.T) {
	gen := &fakeGen{out: `[{"text":"पहली पंक्ति","startTime":5},{"text":"दूसरी पंक्ति","startTime":12}]`}
	p := &Provider{Structurer: &LLMStructurer{Gen: gen}}
	tl, err := p.Timeline(context.Background(), Request{Mode: Manual, Raw: "पहली पंक्ति\nदूसरी पंक्ति"})
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	tests := []struct {
		t    float64
		want int
	}{
		{0, -1}, {4.99, -1}, {5, 0}, {11.99, 0}, {12, 1}, {300, 1},
	}
	for _, tt := range tests {
		if got := lyrics.ActiveIndex(tl, tt.t); got != tt.want {
			t.Errorf("ActiveIndex(%v) = %d, want %d", tt.t, got, tt.want)
		}
	}
}

func TestProviderManualNeedsLyrics(t *testing.T) {
	p := &Provider{Structurer: &LLMStructurer{Gen: &fakeGen{}}}
	_, err := p.Timeline(context.Background(), Request{
		Mode:      Manual,
		Raw:       "   ",
		AudioPath: filepath.Join(t.TempDir(), "song.wav"),
	})
	if !errors.Is(err, errs.ErrInput) {
		t.Errorf("err = %v, want input error", err)
	}
}

func TestProviderTranscribeOnly(t *testing.T) {
	p := &Provider{Transcriber: fakeTranscriber{segs: []Segment{
		{Text: " second ", Start: 7, End: 9},
		{Text: "   ", Start: 3, End: 4},
		{Text: "first", Start: 1, End: 3},
	}}}
	tl, err := p.Timeline(context.Background(), Request{Mode: Transcribe})
	if err != nil {
		t.Fatal(err)
	}
	if len(tl) != 2 || tl[0].Text != "first" || tl[1].Text != "second" || tl[1].StartTime != 7 {
		t.Errorf("timeline = %+v", tl)
	}
}

func TestProviderTranscribeWithLyricsReconciles(t *testing.T) {
	gen := &fakeGen{out: `[{"text":"B","startTime":4},{"text":"A","startTime":1}]`}
	p := &Provider{
		Transcriber: fakeTranscriber{segs: []Segment{{Text: "ay", Start: 1, End: 2}, {Text: "bee", Start: 4, End: 5}}},
		Reconciler:  &LLMReconciler{Gen: gen},
	}
	tl, err := p.Timeline(context.Background(), Request{Mode: Transcribe, Raw: "A\nB"})
	if err != nil {
		t.Fatal(err)
	}
	if tl[0].Text != "A" || tl[1].Text != "B" {
		t.Errorf("timeline = %+v", tl)
	}
	if !strings.Contains(gen.last.Prompt, `"start":4`) || !strings.Contains(gen.last.Prompt, "A\nB") {
		t.Errorf("prompt missing segments or lyrics:\n%s", gen.last.Prompt)
	}
}

func TestProviderTranscribeFailures(t *testing.T) {
	silent := &Provider{Transcriber: fakeTranscriber{segs: []Segment{{Text: " "}}}}
	if _, err := silent.Timeline(context.Background(), Request{Mode: Transcribe}); !errors.Is(err, errs.ErrCollaborator) {
		t.Errorf("no speech: %v", err)
	}
	failing := &Provider{Transcriber: fakeTranscriber{err: errs.Collaborator("transcribe", errors.New("boom"))}}
	if _, err := failing.Timeline(context.Background(), Request{Mode: Transcribe}); !errors.Is(err, errs.ErrCollaborator) {
		t.Errorf("transcriber error: %v", err)
	}
	if _, err := (&Provider{}).Timeline(context.Background(), Request{Mode: "karaoke"}); !errors.Is(err, errs.ErrInput) {
		t.Errorf("unknown mode: %v", err)
	}
}

func TestOpenAITranscriber(t *testing.T) {
	var auth, model, format, gran, fileBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		model = r.FormValue("model")
		format = r.FormValue("response_format")
		gran = r.FormValue("timestamp_granularities[]")
		f, _, err := r.FormFile("file")
		if err == nil {
			b, _ := io.ReadAll(f)
			fileBody = string(b)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"text":     "hello there",
			"language": "english",
			"segments": []map[string]any{
				{"id": 0, "text": " hello ", "start": 0.5, "end": 1.5},
				{"id": 1, "text": "", "start": 1.5, "end": 2},
				{"id": 2, "text": "there", "start": 2, "end": 3},
			},
		})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "song.mp3")
	writeFile(t, path, "ID3fake")

	segs, err := NewOpenAITranscriber(srv.URL, "sk-test", "").Transcribe(context.Background(), path)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if auth != "Bearer sk-test" || model != "whisper-1" || format != "verbose_json" || gran != "segment" {
		t.Errorf("request auth=%q model=%q format=%q gran=%q", auth, model, format, gran)
	}
	if fileBody != "ID3fake" {
		t.Errorf("uploaded %q", fileBody)
	}
	if len(segs) != 2 || segs[0].Text != "hello" || segs[1].Start != 2 {
		t.Errorf("segments = %+v", segs)
	}
}

func TestOpenAITranscriberErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "a.mp3")
	writeFile(t, path, "x")
	_, err := NewOpenAITranscriber(srv.URL, "bad", "").Transcribe(context.Background(), path)
	if !errors.Is(err, errs.ErrCollaborator) || !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v", err)
	}

	_, err = NewOpenAITranscriber(srv.URL, "k", "").Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"))
	if !errors.Is(err, errs.ErrAsset) {
		t.Errorf("missing file err = %v, want asset error", err)
	}
}

func TestWhisperMissingBinary(t *testing.T) {
	w := &WhisperCLI{Bin: filepath.Join(t.TempDir(), "no-such-whisper")}
	_, err := w.Transcribe(context.Background(), "song.mp3")
	if !errors.Is(err, errs.ErrCollaborator) {
		t.Errorf("err = %v, want collaborator error", err)
	}
}

func TestAlignReconciler(t *testing.T) {
	segs := []Segment{
		{Text: "because a vision softly creeping", Start: 10, End: 14},
		{Text: "hello darkness my old friend", Start: 1, End: 4},
		{Text: "", Start: 4, End: 5},
		{Text: "ive come to talk with you again", Start: 5, End: 9},
	}
	raw := "[Verse 1]\nHello darkness, my old friend\nI've come to talk with you again\nla la unmatched\nBecause a vision softly creeping"

	tl, err := AlignReconciler{}.Reconcile(context.Background(), segs, raw)
	if err != nil {
		t.Fatal(err)
	}
	want := []lyrics.Lyric{
		{Text: "Hello darkness, my old friend", StartTime: 1},
		{Text: "I've come to talk with you again", StartTime: 5},
		{Text: "la la unmatched", StartTime: 7.5},
		{Text: "Because a vision softly creeping", StartTime: 10},
	}
	if len(tl) != len(want) {
		t.Fatalf("timeline = %+v", tl)
	}
	for i := range want {
		if tl[i] != want[i] {
			t.Errorf("line %d = %+v, want %+v", i, tl[i], want[i])
		}
	}
}

func TestAlignReconcilerDevanagari(t *testing.T) {
	segs := []Segment{{Text: "पहली पंक्ति", Start: 5, End: 9}, {Text: "दूसरी पंक्ति", Start: 12, End: 15}}
	tl, err := AlignReconciler{}.Reconcile(context.Background(), segs, "पहली पंक्ति\nदूसरी पंक्ति")
	if err != nil {
		t.Fatal(err)
	}
	if tl[0].StartTime != 5 || tl[1].StartTime != 12 {
		t.Errorf("timeline = %+v", tl)
	}
}

func TestAlignReconcilerErrors(t *testing.T) {
	if _, err := (AlignReconciler{}).Reconcile(context.Background(), []Segment{{Text: "a"}}, "[Chorus]\n\n"); !errors.Is(err, errs.ErrInput) {
		t.Errorf("no lines: %v", err)
	}
	if _, err := (AlignReconciler{}).Reconcile(context.Background(), nil, "a line"); !errors.Is(err, errs.ErrCollaborator) {
		t.Errorf("no segments: %v", err)
	}
}

func TestFactories(t *testing.T) {
	if _, err := NewTranscriber("openai", "", "", "", ""); err == nil {
		t.Error("openai without key should fail")
	}
	if tr, err := NewTranscriber("whisper-cli", "", "", "small", "/usr/bin/whisper"); err != nil || tr.(*WhisperCLI).Model != "small" {
		t.Errorf("whisper-cli: %v %v", tr, err)
	}
	if _, err := NewTranscriber("deepgram", "", "k", "", ""); err == nil {
		t.Error("unknown transcriber should fail")
	}
	if _, err := NewReconciler("llm", nil); err == nil {
		t.Error("llm reconciler without generator should fail")
	}
	if r, err := NewReconciler("align", nil); err != nil || r == nil {
		t.Errorf("align: %v %v", r, err)
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}
