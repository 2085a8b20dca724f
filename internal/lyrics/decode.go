package lyrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// DecodeError describes why a collaborator payload was rejected.
type DecodeError struct {
	Index  int    // entry index, -1 for the payload as a whole
	Field  string // offending field, empty for whole-entry problems
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Index < 0 {
		return "decode lyrics: " + e.Reason
	}
	if e.Field == "" {
		return fmt.Sprintf("decode lyrics: entry %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("decode lyrics: entry %d: %s %s", e.Index, e.Field, e.Reason)
}

// entry mirrors the wire shape with pointers so missing fields are visible.
type entry struct {
	Text      *string      `json:"text"`
	StartTime *json.Number `json:"startTime"`
}

// Decode parses a JSON array of {text, startTime} objects into a sorted
// Timeline. Every entry must carry a non-empty text and a finite,
// non-negative startTime; anything else fails the whole payload.
func Decode(data []byte) (Timeline, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, &DecodeError{Index: -1, Reason: "empty payload"}
	}
	if data[0] != '[' {
		return nil, &DecodeError{Index: -1, Reason: "payload is not a JSON array"}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &DecodeError{Index: -1, Reason: err.Error()}
	}
	if len(raw) == 0 {
		return nil, &DecodeError{Index: -1, Reason: "no lyric lines"}
	}

	lines := make([]Lyric, 0, len(raw))
	for i, r := range raw {
		l, err := decodeEntry(i, r)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return New(lines), nil
}

func decodeEntry(i int, r json.RawMessage) (Lyric, error) {
	r = bytes.TrimSpace(r)
	if len(r) == 0 || r[0] != '{' {
		return Lyric{}, &DecodeError{Index: i, Reason: "not an object"}
	}

	dec := json.NewDecoder(bytes.NewReader(r))
	dec.UseNumber()
	var e entry
	if err := dec.Decode(&e); err != nil {
		return Lyric{}, &DecodeError{Index: i, Reason: err.Error()}
	}

	if e.Text == nil {
		return Lyric{}, &DecodeError{Index: i, Field: "text", Reason: "missing"}
	}
	text := strings.TrimSpace(*e.Text)
	if text == "" {
		return Lyric{}, &DecodeError{Index: i, Field: "text", Reason: "empty"}
	}
	if e.StartTime == nil {
		return Lyric{}, &DecodeError{Index: i, Field: "startTime", Reason: "missing"}
	}
	start, err := e.StartTime.Float64()
	if err != nil || math.IsNaN(start) || math.IsInf(start, 0) {
		return Lyric{}, &DecodeError{Index: i, Field: "startTime", Reason: "not a finite number"}
	}
	if start < 0 {
		return Lyric{}, &DecodeError{Index: i, Field: "startTime", Reason: "negative"}
	}
	return Lyric{Text: text, StartTime: start}, nil
}
