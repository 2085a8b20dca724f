// Package lyricsource produces lyric timelines from typed lyrics, audio
// transcription, or both.
package lyricsource

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/satindergrewal/lyricvid/internal/errs"
	"github.com/satindergrewal/lyricvid/internal/lyrics"
	"github.com/satindergrewal/lyricvid/internal/metadata"
)

// Segment is one transcribed span of audio, times in seconds.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Structurer assigns start times to raw lyric text.
type Structurer interface {
	Structure(ctx context.Context, raw string, duration time.Duration) (lyrics.Timeline, error)
}

// Transcriber turns an audio file into timed segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]Segment, error)
}

// Reconciler merges transcription timing with canonical lyric text.
type Reconciler interface {
	Reconcile(ctx context.Context, segments []Segment, raw string) (lyrics.Timeline, error)
}

// Mode selects where timing comes from.
type Mode string

const (
	Manual     Mode = "manual"
	Transcribe Mode = "transcribe"
)

// Request describes one timeline build.
type Request struct {
	Mode      Mode
	Raw       string // lyric text, may be empty
	AudioPath string
	Duration  time.Duration
}

// Provider wires the collaborators together. Any of them may be nil if
// the matching mode is never used.
type Provider struct {
	Structurer  Structurer
	Transcriber Transcriber
	Reconciler  Reconciler
}

// Timeline builds a timeline for req. Collaborator failures are returned
// as errs.ErrCollaborator and are never retried.
func (p *Provider) Timeline(ctx context.Context, req Request) (lyrics.Timeline, error) {
	raw := strings.TrimSpace(req.Raw)
	switch req.Mode {
	case Manual, "":
		if raw == "" {
			embedded, err := metadata.EmbeddedLyrics(req.AudioPath)
			if err != nil {
				log.Printf("Reading embedded lyrics failed: %v", err)
			}
			if embedded == "" {
				return nil, errs.Input("lyrics are required: none typed and none embedded in %s", req.AudioPath)
			}
			log.Printf("Using lyrics embedded in the audio file (%d chars)", len(embedded))
			raw = embedded
		}
		if p.Structurer == nil {
			return nil, errs.Input("no lyric structuring service configured")
		}
		return p.Structurer.Structure(ctx, raw, req.Duration)

	case Transcribe:
		if p.Transcriber == nil {
			return nil, errs.Input("no transcription service configured")
		}
		segs, err := p.Transcriber.Transcribe(ctx, req.AudioPath)
		if err != nil {
			return nil, err
		}
		segs = DropEmpty(segs)
		if len(segs) == 0 {
			return nil, errs.Collaborator("transcribe", errNoSpeech)
		}
		if raw == "" {
			return SegmentsToTimeline(segs), nil
		}
		if p.Reconciler == nil {
			return nil, errs.Input("no reconciliation service configured")
		}
		return p.Reconciler.Reconcile(ctx, segs, raw)
	}
	return nil, errs.Input("unknown lyric mode %q", req.Mode)
}

// DropEmpty removes segments whose text is blank and trims the rest.
func DropEmpty(segs []Segment) []Segment {
	out := segs[:0:0]
	for _, s := range segs {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// SegmentsToTimeline maps each segment 1:1 to a line starting at its start.
func SegmentsToTimeline(segs []Segment) lyrics.Timeline {
	lines := make([]lyrics.Lyric, 0, len(segs))
	for _, s := range segs {
		lines = append(lines, lyrics.Lyric{Text: s.Text, StartTime: s.Start})
	}
	return lyrics.New(lines)
}
