// Package playback drives the preview transport and tracks which lyric
// line is active.
package playback

import (
	"log"
	"sync"
	"time"

	"github.com/satindergrewal/lyricvid/internal/lyrics"
)

// State is the transport state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
	Finished
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	}
	return "unknown"
}

// Transport is the audio output the controller drives.
type Transport interface {
	Play() error
	Pause() error
	Seek(time.Duration) error
	Position() time.Duration
	Duration() time.Duration
	Ended() bool
	Close() error
}

// EventKind identifies a notification.
type EventKind int

const (
	LyricChanged EventKind = iota
	StateChanged
)

// Event is delivered to observers in the order the changes happened.
type Event struct {
	Kind  EventKind
	Index int
	State State
	Time  float64
}

// Snapshot is a copy of the playback state.
type Snapshot struct {
	CurrentTime      float64 `json:"currentTime"`
	Duration         float64 `json:"duration"`
	IsPlaying        bool    `json:"isPlaying"`
	IsFinished       bool    `json:"isFinished"`
	ActiveLyricIndex int     `json:"activeLyricIndex"`
	State            string  `json:"state"`
	Started          bool    `json:"started"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver registers fn for every event. Observers run synchronously
// on the goroutine that caused the change and must not call back into
// the controller's mutating methods.
func WithObserver(fn func(Event)) Option {
	return func(c *Controller) {
		c.observers = append(c.observers, fn)
	}
}

// Controller owns the transport and is the only writer of playback state.
type Controller struct {
	op sync.Mutex // serializes operations so events keep their order

	mu        sync.RWMutex
	tr        Transport
	tl        lyrics.Timeline
	state     State
	index     int
	started   bool
	observers []func(Event)
}

// New creates a stopped controller over tr.
func New(tr Transport, tl lyrics.Timeline, opts ...Option) *Controller {
	c := &Controller{tr: tr, tl: tl, state: Stopped, index: -1}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers fn like WithObserver, after construction.
func (c *Controller) Subscribe(fn func(Event)) {
	c.op.Lock()
	defer c.op.Unlock()
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Play starts or resumes playback. From Finished it rewinds first.
func (c *Controller) Play() error {
	return c.do(func() ([]Event, error) {
		if c.state == Playing {
			return nil, nil
		}
		var evs []Event
		if c.state == Finished {
			if err := c.tr.Seek(0); err != nil {
				return nil, err
			}
			evs = c.reindex(evs, 0)
		}
		if err := c.tr.Play(); err != nil {
			return evs, err
		}
		c.started = true
		evs = c.setState(evs, Playing)
		return c.reindex(evs, c.tr.Position().Seconds()), nil
	})
}

// Pause pauses playback. It is a no-op unless playing.
func (c *Controller) Pause() error {
	return c.do(func() ([]Event, error) {
		if c.state != Playing {
			return nil, nil
		}
		if err := c.tr.Pause(); err != nil {
			return nil, err
		}
		return c.setState(nil, Paused), nil
	})
}

// Replay rewinds to the start and plays.
func (c *Controller) Replay() error {
	if err := c.Seek(0); err != nil {
		return err
	}
	return c.Play()
}

// Seek moves to t seconds, clamped to the track. Playing and paused
// states are kept; seeking away from Finished leaves the controller
// paused at the new position.
func (c *Controller) Seek(t float64) error {
	return c.do(func() ([]Event, error) {
		dur := c.tr.Duration().Seconds()
		t = max(0, min(t, dur))
		if err := c.tr.Seek(time.Duration(t * float64(time.Second))); err != nil {
			return nil, err
		}
		var evs []Event
		if c.state == Finished {
			evs = c.setState(evs, Paused)
		}
		return c.reindex(evs, t), nil
	})
}

// Tick advances the controller from the transport clock. The host loop
// calls it once per frame.
func (c *Controller) Tick() {
	c.do(func() ([]Event, error) {
		if c.state != Playing {
			return nil, nil
		}
		if c.tr.Ended() {
			evs := c.setState(nil, Finished)
			end := lyrics.Finished(c.tl)
			if c.index != end {
				c.index = end
				evs = append(evs, Event{Kind: LyricChanged, Index: end, Time: c.tr.Duration().Seconds()})
			}
			log.Printf("Playback finished")
			return evs, nil
		}
		return c.reindex(nil, c.tr.Position().Seconds()), nil
	})
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pos := c.tr.Position().Seconds()
	dur := c.tr.Duration().Seconds()
	if c.state == Finished {
		pos = dur
	}
	return Snapshot{
		CurrentTime:      pos,
		Duration:         dur,
		IsPlaying:        c.state == Playing,
		IsFinished:       c.state == Finished,
		ActiveLyricIndex: c.index,
		State:            c.state.String(),
		Started:          c.started,
	}
}

// State returns the transport state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// ActiveIndex returns the active lyric index.
func (c *Controller) ActiveIndex() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index
}

// Started reports whether playback has ever begun. Once true it stays true.
func (c *Controller) Started() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}

// Timeline returns the timeline the controller tracks.
func (c *Controller) Timeline() lyrics.Timeline {
	return c.tl
}

// Position returns the transport position.
func (c *Controller) Position() time.Duration {
	return c.tr.Position()
}

// Close stops and releases the transport.
func (c *Controller) Close() error {
	c.op.Lock()
	defer c.op.Unlock()
	return c.tr.Close()
}

func (c *Controller) do(fn func() ([]Event, error)) error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	evs, err := fn()
	observers := c.observers
	c.mu.Unlock()

	for _, ev := range evs {
		for _, obs := range observers {
			obs(ev)
		}
	}
	return err
}

func (c *Controller) setState(evs []Event, s State) []Event {
	if c.state == s {
		return evs
	}
	c.state = s
	return append(evs, Event{Kind: StateChanged, State: s, Index: c.index})
}

func (c *Controller) reindex(evs []Event, t float64) []Event {
	idx := lyrics.ActiveIndex(c.tl, t)
	if idx == c.index {
		return evs
	}
	c.index = idx
	return append(evs, Event{Kind: LyricChanged, Index: idx, State: c.state, Time: t})
}
