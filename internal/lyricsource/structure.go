package lyricsource

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/satindergrewal/lyricvid/internal/errs"
	"github.com/satindergrewal/lyricvid/internal/llm"
	"github.com/satindergrewal/lyricvid/internal/lyrics"
)

const structureSystem = `You are an expert in music and video production. You time song lyrics for lyric videos.
You answer with a JSON array only, no prose and no code fences.`

const structurePrompt = `Convert the song lyrics below into a JSON array of objects, one per display line.
Each object has exactly two keys:
1. "text": the clean lyric line in its original script and language.
2. "startTime": the estimated start time in seconds for the line to appear.

Timing guidelines:
- Leave a 5-second instrumental intro before the first line.
- %s
- Distribute start times logically across verses, choruses and bridges at a natural singing pace.
- Start times must increase from line to line.
- Do not include annotations like [Chorus] or (Verse 1) in any "text" value.

Lyrics:
---
%s
---`

// LLMStructurer times lyrics with a language model.
type LLMStructurer struct {
	Gen llm.Generator
}

// Structure implements Structurer.
func (s *LLMStructurer) Structure(ctx context.Context, raw string, duration time.Duration) (lyrics.Timeline, error) {
	pace := "Assume a standard song length of about 3 to 4 minutes."
	if duration > 0 {
		secs := int(math.Round(duration.Seconds()))
		pace = fmt.Sprintf("The song is %d seconds long; the last line must start before %d seconds.", secs, secs)
	}

	start := time.Now()
	out, err := s.Gen.Generate(ctx, llm.Request{
		System: structureSystem,
		Prompt: fmt.Sprintf(structurePrompt, pace, raw),
		Schema: llm.LyricSchema,
	})
	if err != nil {
		return nil, errs.Collaborator("structure lyrics", err)
	}
	tl, err := lyrics.Decode([]byte(llm.CleanJSON(out)))
	if err != nil {
		return nil, errs.Collaborator("structure lyrics", err)
	}
	log.Printf("Structured %d lyric lines with %s in %s", len(tl), s.Gen.Model(), time.Since(start).Round(time.Millisecond))
	return tl, nil
}
