package lyrics

import (
	"errors"
	"math/rand/v2"
	"testing"
)

// bruteActive is the linear backward scan the lookup must agree with.
func bruteActive(tl Timeline, t float64) int {
	for i := len(tl) - 1; i >= 0; i-- {
		if tl[i].StartTime <= t {
			return i
		}
	}
	return -1
}

func TestActiveIndexDuplicates(t *testing.T) {
	tl := New([]Lyric{
		{Text: "A", StartTime: 0},
		{Text: "B", StartTime: 0},
		{Text: "C", StartTime: 10},
	})
	tests := []struct {
		t    float64
		want int
	}{
		{0, 1},
		{9.9, 1},
		{10, 2},
		{-1, -1},
		{1000, 2},
	}
	for _, tt := range tests {
		if got := ActiveIndex(tl, tt.t); got != tt.want {
			t.Errorf("ActiveIndex(%v) = %d, want %d", tt.t, got, tt.want)
		}
	}
}

func TestActiveIndexEmpty(t *testing.T) {
	if got := ActiveIndex(nil, 5); got != -1 {
		t.Errorf("empty timeline: got %d, want -1", got)
	}
	if got := ActiveIndex(Timeline{}, 0); got != -1 {
		t.Errorf("empty timeline at 0: got %d, want -1", got)
	}
}

func TestActiveIndexSeekPattern(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	lines := make([]Lyric, 60)
	for i := range lines {
		// coarse times so duplicates are common
		lines[i] = Lyric{Text: "line", StartTime: float64(r.IntN(40))}
	}
	tl := New(lines)

	// forward sweep, then random seeks back and forth
	for q := -2.0; q < 45; q += 0.25 {
		if got, want := ActiveIndex(tl, q), bruteActive(tl, q); got != want {
			t.Fatalf("forward t=%v: got %d, want %d", q, got, want)
		}
	}
	for n := 0; n < 2000; n++ {
		q := r.Float64()*50 - 5
		if got, want := ActiveIndex(tl, q), bruteActive(tl, q); got != want {
			t.Fatalf("seek t=%v: got %d, want %d", q, got, want)
		}
	}
}

func TestNewSortsStable(t *testing.T) {
	tl := New([]Lyric{
		{Text: "Y", StartTime: 5},
		{Text: "X", StartTime: 2},
	})
	if len(tl) != 2 || tl[0].Text != "X" || tl[1].Text != "Y" {
		t.Fatalf("New did not sort: %+v", tl)
	}

	tl = New([]Lyric{
		{Text: "late", StartTime: 3},
		{Text: "first", StartTime: 1},
		{Text: "second", StartTime: 1},
	})
	want := []string{"first", "second", "late"}
	for i, w := range want {
		if tl[i].Text != w {
			t.Errorf("tl[%d] = %q, want %q", i, tl[i].Text, w)
		}
	}
}

func TestNewDropsBlank(t *testing.T) {
	tl := New([]Lyric{
		{Text: "  ", StartTime: 1},
		{Text: " keep ", StartTime: -3},
	})
	if len(tl) != 1 {
		t.Fatalf("len = %d, want 1", len(tl))
	}
	if tl[0].Text != "keep" || tl[0].StartTime != 0 {
		t.Errorf("got %+v, want trimmed text at 0", tl[0])
	}
}

func TestWindow(t *testing.T) {
	tl := New([]Lyric{
		{Text: "one", StartTime: 1},
		{Text: "two", StartTime: 2},
		{Text: "three", StartTime: 3},
	})
	tests := []struct {
		i    int
		want Window
	}{
		{-1, Window{Next: "one"}},
		{0, Window{Current: "one", Next: "two", Start: 1}},
		{1, Window{Prev: "one", Current: "two", Next: "three", Start: 2}},
		{2, Window{Prev: "two", Current: "three", Start: 3}},
		{Finished(tl), Window{}},
	}
	for _, tt := range tests {
		if got := tl.Window(tt.i); got != tt.want {
			t.Errorf("Window(%d) = %+v, want %+v", tt.i, got, tt.want)
		}
	}
}

func TestHindiScenario(t *testing.T) {
	payload := []byte(`[{"text":"पहली पंक्ति","startTime":5},{"text":"दूसरी पंक्ति","startTime":12}]`)
	tl, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for _, q := range []float64{0, 2.5, 4.99} {
		if got := ActiveIndex(tl, q); got != -1 {
			t.Errorf("t=%v: got %d, want -1", q, got)
		}
	}
	for _, q := range []float64{5, 8, 11.99} {
		if got := ActiveIndex(tl, q); got != 0 {
			t.Errorf("t=%v: got %d, want 0", q, got)
		}
	}
	for _, q := range []float64{12, 30} {
		if got := ActiveIndex(tl, q); got != 1 {
			t.Errorf("t=%v: got %d, want 1", q, got)
		}
	}
	if tl.Text(0) != "पहली पंक्ति" {
		t.Errorf("text mangled: %q", tl.Text(0))
	}
}

func TestDecodeResorts(t *testing.T) {
	tl, err := Decode([]byte(`[{"text":"Y","startTime":5},{"text":"X","startTime":2}]`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tl[0].Text != "X" || tl[0].StartTime != 2 || tl[1].Text != "Y" || tl[1].StartTime != 5 {
		t.Errorf("got %+v, want [X(2) Y(5)]", tl)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		field   string
	}{
		{"empty", ``, ""},
		{"object", `{"text":"a","startTime":1}`, ""},
		{"empty array", `[]`, ""},
		{"garbage", `[{"text":`, ""},
		{"not object", `["a", "b"]`, ""},
		{"missing text", `[{"startTime":1}]`, "text"},
		{"blank text", `[{"text":"  ","startTime":1}]`, "text"},
		{"numeric text", `[{"text":4,"startTime":1}]`, ""},
		{"missing time", `[{"text":"a"}]`, "startTime"},
		{"negative time", `[{"text":"a","startTime":-2}]`, "startTime"},
		{"bool time", `[{"text":"a","startTime":true}]`, ""},
	}
	for _, tt := range tests {
		_, err := Decode([]byte(tt.payload))
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Errorf("%s: error %T is not *DecodeError", tt.name, err)
			continue
		}
		if tt.field != "" && de.Field != tt.field {
			t.Errorf("%s: Field = %q, want %q", tt.name, de.Field, tt.field)
		}
	}
}

func TestDecodeIgnoresExtraFields(t *testing.T) {
	tl, err := Decode([]byte(`[{"text":"a","startTime":1.5,"endTime":3}]`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(tl) != 1 || tl[0].StartTime != 1.5 {
		t.Errorf("got %+v", tl)
	}
}
