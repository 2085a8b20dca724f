// Package export records the lyric video to a file, paced by its own copy
// of the audio.
package export

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/satindergrewal/lyricvid/internal/stream"
)

// Status is the lifecycle stage of an export job.
type Status string

const (
	Idle       Status = "idle"
	Recording  Status = "recording"
	Finalizing Status = "finalizing"
	Done       Status = "done"
	Failed     Status = "failed"
)

var order = map[Status]int{Idle: 0, Recording: 1, Finalizing: 2, Done: 3}

// Active reports whether a job in s blocks new exports.
func (s Status) Active() bool { return s == Recording || s == Finalizing }

// Terminal reports whether s is final.
func (s Status) Terminal() bool { return s == Done || s == Failed }

// Filename returns the artifact name for a song. Spaces, path separators
// and control characters become underscores, so the result is always a
// single path element.
func Filename(song, ext string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r == ' ', r == '/', r == '\\', r == ':', unicode.IsControl(r):
			return '_'
		}
		return r
	}, song)
	return safe + "_lyric_video." + strings.TrimPrefix(ext, ".")
}

// Job tracks one export. Status only moves forward.
type Job struct {
	ID     string
	Format string

	mu       sync.RWMutex
	status   Status
	created  time.Time
	started  time.Time
	finished time.Time
	position time.Duration
	duration time.Duration
	frames   int
	freq     []uint8
	lyric    string
	filename string
	artifact string
	err      string
	monitor  *stream.Broadcaster
}

// NewJob creates an idle job producing format ("webm" or "mp4").
func NewJob(format string) *Job {
	return &Job{
		ID:      uuid.NewString(),
		Format:  format,
		status:  Idle,
		created: time.Now(),
	}
}

// Snapshot is a point-in-time view of a job.
type Snapshot struct {
	ID       string    `json:"id"`
	Status   Status    `json:"status"`
	Format   string    `json:"format"`
	Position float64   `json:"position"`
	Duration float64   `json:"duration"`
	Progress float64   `json:"progress"`
	Frames   int       `json:"frames"`
	Lyric    string    `json:"lyric,omitempty"`
	Freq     []uint8   `json:"freq,omitempty"`
	Filename string    `json:"filename,omitempty"`
	Artifact string    `json:"artifact,omitempty"`
	Error    string    `json:"error,omitempty"`
	Started  time.Time `json:"started,omitzero"`
	Elapsed  float64   `json:"elapsed"`
}

// Snapshot returns the job's current view.
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	s := Snapshot{
		ID:       j.ID,
		Status:   j.status,
		Format:   j.Format,
		Position: j.position.Seconds(),
		Duration: j.duration.Seconds(),
		Frames:   j.frames,
		Lyric:    j.lyric,
		Freq:     append([]uint8(nil), j.freq...),
		Filename: j.filename,
		Artifact: j.artifact,
		Error:    j.err,
		Started:  j.started,
	}
	if j.duration > 0 {
		s.Progress = min(1, float64(j.position)/float64(j.duration))
	}
	if !j.started.IsZero() {
		end := j.finished
		if end.IsZero() {
			end = time.Now()
		}
		s.Elapsed = end.Sub(j.started).Seconds()
	}
	return s
}

// Status returns the current status.
func (j *Job) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Monitor returns the broadcaster carrying the job's audio while it
// records, or nil.
func (j *Job) Monitor() *stream.Broadcaster {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.status != Recording {
		return nil
	}
	return j.monitor
}

func (j *Job) advance(to Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.advanceLocked(to)
}

func (j *Job) advanceLocked(to Status) error {
	from := j.status
	if from.Terminal() {
		return fmt.Errorf("job %s is %s", j.ID, from)
	}
	if to != Failed && order[to] != order[from]+1 {
		return fmt.Errorf("job %s cannot go from %s to %s", j.ID, from, to)
	}
	j.status = to
	switch to {
	case Recording:
		j.started = time.Now()
	case Done, Failed:
		j.finished = time.Now()
	}
	return nil
}

func (j *Job) begin(filename string, duration time.Duration, monitor *stream.Broadcaster) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.advanceLocked(Recording); err != nil {
		return err
	}
	j.filename = filename
	j.duration = duration
	j.monitor = monitor
	return nil
}

func (j *Job) progress(pos time.Duration, frames int, freq []uint8, lyric string) {
	j.mu.Lock()
	j.position = pos
	j.frames = frames
	j.freq = append(j.freq[:0], freq...)
	j.lyric = lyric
	j.mu.Unlock()
}

func (j *Job) complete(artifact string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.advanceLocked(Done); err != nil {
		return err
	}
	j.artifact = artifact
	j.position = j.duration
	return nil
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.advanceLocked(Failed)
	j.err = err.Error()
}
