package session

import (
	"github.com/satindergrewal/lyricvid/internal/lyrics"
	"github.com/satindergrewal/lyricvid/internal/playback"
)

// EventType names a session event.
type EventType string

const (
	EventLyric   EventType = "lyric"
	EventState   EventType = "state"
	EventExport  EventType = "export"
	EventProject EventType = "project"
)

// Event is pushed to session subscribers, in order, for every lyric and
// transport change of the preview plus export and project changes.
type Event struct {
	Type  EventType `json:"type"`
	Index int       `json:"index"`
	Text  string    `json:"text,omitempty"`
	State string    `json:"state,omitempty"`
	Time  float64   `json:"time"`
}

// Subscribe registers fn for every session event. fn must not block.
func (s *Session) Subscribe(fn func(Event)) {
	s.observerMu.Lock()
	s.observers = append(s.observers, fn)
	s.observerMu.Unlock()
}

func (s *Session) emit(ev Event) {
	s.observerMu.RLock()
	obs := s.observers
	s.observerMu.RUnlock()
	for _, fn := range obs {
		fn(ev)
	}
}

// forward translates controller events for tl. It runs on the
// controller's goroutine and must not call back into the controller.
func (s *Session) forward(tl lyrics.Timeline, ev playback.Event) {
	out := Event{Index: ev.Index, State: ev.State.String(), Time: ev.Time}
	switch ev.Kind {
	case playback.LyricChanged:
		out.Type = EventLyric
		out.Text = tl.Text(ev.Index)
	case playback.StateChanged:
		out.Type = EventState
	}
	s.emit(out)
}
