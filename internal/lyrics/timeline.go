// Package lyrics holds the lyric timeline and the active-line lookup.
package lyrics

import (
	"sort"
	"strings"
)

// Lyric is one display line and the time it appears.
type Lyric struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"startTime"` // seconds
}

// Timeline is a sequence of lyrics sorted ascending by StartTime.
// Construct it with New so the ordering invariant holds.
type Timeline []Lyric

// New copies lines into a timeline, dropping blank lines and sorting
// by start time. Lines sharing a start time keep their input order.
func New(lines []Lyric) Timeline {
	tl := make(Timeline, 0, len(lines))
	for _, l := range lines {
		l.Text = strings.TrimSpace(l.Text)
		if l.Text == "" {
			continue
		}
		if l.StartTime < 0 {
			l.StartTime = 0
		}
		tl = append(tl, l)
	}
	sort.SliceStable(tl, func(i, j int) bool {
		return tl[i].StartTime < tl[j].StartTime
	})
	return tl
}

// ActiveIndex returns the greatest index whose start time is <= t,
// or -1 when no line has started yet. With duplicate start times the
// last of them wins.
func ActiveIndex(tl Timeline, t float64) int {
	// first index strictly after t
	i := sort.Search(len(tl), func(i int) bool {
		return tl[i].StartTime > t
	})
	return i - 1
}

// Finished is the sentinel index used once playback has ended.
func Finished(tl Timeline) int {
	return len(tl)
}

// Text returns the line at i, or "" when i is out of range (including
// the -1 and Finished sentinels).
func (tl Timeline) Text(i int) string {
	if i < 0 || i >= len(tl) {
		return ""
	}
	return tl[i].Text
}

// Window holds the lines around the active one.
type Window struct {
	Prev    string
	Current string
	Next    string
	Start   float64 // start time of Current, 0 when none
}

// Window returns the previous, current and next lines around index i.
// Before the first line only Next is set; after the end nothing is.
func (tl Timeline) Window(i int) Window {
	if i >= len(tl) {
		return Window{}
	}
	w := Window{
		Prev:    tl.Text(i - 1),
		Current: tl.Text(i),
		Next:    tl.Text(i + 1),
	}
	if i >= 0 {
		w.Start = tl[i].StartTime
	}
	return w
}
