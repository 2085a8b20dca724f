package lyricsource

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/satindergrewal/lyricvid/internal/errs"
	"github.com/satindergrewal/lyricvid/internal/llm"
	"github.com/satindergrewal/lyricvid/internal/lyrics"
)

// NewReconciler returns the reconciler named by kind: "llm" or "align".
func NewReconciler(kind string, gen llm.Generator) (Reconciler, error) {
	switch kind {
	case "llm", "":
		if gen == nil {
			return nil, fmt.Errorf("llm reconciler requires an LLM provider")
		}
		return &LLMReconciler{Gen: gen}, nil
	case "align":
		return AlignReconciler{}, nil
	}
	return nil, fmt.Errorf("unknown reconciler %q", kind)
}

const reconcileSystem = `You align song lyrics to speech-recognition timestamps for lyric videos.
You answer with a JSON array only, no prose and no code fences.`

const reconcilePrompt = `Below are transcription segments of a song with start/end times in seconds,
followed by the official lyrics. The transcription has accurate timing but may misspell or mishear words.
The official lyrics have the correct wording but no timing.

Produce a JSON array of {"text", "startTime"} objects:
- one object per official lyric line, using the official wording and script exactly;
- "startTime" taken from the transcription segment where that line is sung;
- lines missing from the transcription get a time interpolated between their neighbours;
- drop annotations like [Chorus] or (Verse 1).

Transcription segments:
%s

Official lyrics:
---
%s
---`

// LLMReconciler merges transcription and lyrics with a language model.
type LLMReconciler struct {
	Gen llm.Generator
}

// Reconcile implements Reconciler.
func (r *LLMReconciler) Reconcile(ctx context.Context, segments []Segment, raw string) (lyrics.Timeline, error) {
	segJSON, err := json.Marshal(segments)
	if err != nil {
		return nil, fmt.Errorf("marshal segments: %w", err)
	}
	start := time.Now()
	out, err := r.Gen.Generate(ctx, llm.Request{
		System: reconcileSystem,
		Prompt: fmt.Sprintf(reconcilePrompt, segJSON, raw),
		Schema: llm.LyricSchema,
	})
	if err != nil {
		return nil, errs.Collaborator("reconcile lyrics", err)
	}
	tl, err := lyrics.Decode([]byte(llm.CleanJSON(out)))
	if err != nil {
		return nil, errs.Collaborator("reconcile lyrics", err)
	}
	log.Printf("Reconciled %d lines against %d segments in %s", len(tl), len(segments), time.Since(start).Round(time.Millisecond))
	return tl, nil
}

// AlignReconciler matches lyric lines to segments by word overlap, in
// order, without any external service.
type AlignReconciler struct{}

const (
	alignWindow   = 8   // segments searched ahead of the cursor
	alignMinScore = 0.3 // fraction of a line's words found in the segment
)

var annotation = regexp.MustCompile(`^\s*[\[(].*[\])]\s*$`)

// Reconcile implements Reconciler.
func (AlignReconciler) Reconcile(_ context.Context, segments []Segment, raw string) (lyrics.Timeline, error) {
	segs := DropEmpty(segments)
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })
	var lines []string
	for _, l := range strings.Split(raw, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || annotation.MatchString(l) {
			continue
		}
		lines = append(lines, l)
	}
	if len(lines) == 0 {
		return nil, errs.Input("no lyric lines to align")
	}
	if len(segs) == 0 {
		return nil, errs.Collaborator("align lyrics", errNoSpeech)
	}

	segWords := make([]map[string]bool, len(segs))
	for j, s := range segs {
		segWords[j] = wordSet(s.Text)
	}

	times := make([]float64, len(lines))
	matched := make([]bool, len(lines))
	cursor := 0
	for i, line := range lines {
		lw := words(line)
		if len(lw) == 0 {
			continue
		}
		best, bestScore := -1, 0.0
		for j := cursor; j < len(segs) && j < cursor+alignWindow; j++ {
			hits := 0
			for _, w := range lw {
				if segWords[j][w] {
					hits++
				}
			}
			if score := float64(hits) / float64(len(lw)); score > bestScore {
				best, bestScore = j, score
			}
		}
		if best >= 0 && bestScore >= alignMinScore {
			times[i] = segs[best].Start
			matched[i] = true
			cursor = best + 1
		}
	}
	interpolate(times, matched, segs[0].Start, segs[len(segs)-1].End)

	out := make([]lyrics.Lyric, len(lines))
	hits := 0
	for i, l := range lines {
		out[i] = lyrics.Lyric{Text: l, StartTime: times[i]}
		if matched[i] {
			hits++
		}
	}
	log.Printf("Aligned %d/%d lines to %d segments", hits, len(lines), len(segs))
	return lyrics.New(out), nil
}

// interpolate fills unmatched entries linearly between matched neighbours.
// lo and hi act as virtual anchors before the first and after the last line.
func interpolate(times []float64, matched []bool, lo, hi float64) {
	n := len(times)
	prevIdx, prevT := -1, lo
	for i := 0; i <= n; i++ {
		if i < n && !matched[i] {
			continue
		}
		nextT := hi
		if i < n {
			nextT = times[i]
		}
		if nextT < prevT {
			nextT = prevT
		}
		gap := i - prevIdx
		for k := prevIdx + 1; k < i; k++ {
			times[k] = prevT + (nextT-prevT)*float64(k-prevIdx)/float64(gap)
		}
		prevIdx, prevT = i, nextT
	}
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.IsMark(r)
	})
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range words(s) {
		set[w] = true
	}
	return set
}
