package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func recv(t *testing.T, l *Listener) []int16 {
	t.Helper()
	select {
	case f := <-l.C:
		return f
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
		return nil
	}
}

func drain(l *Listener) int {
	n := 0
	for {
		select {
		case <-l.C:
			n++
		default:
			return n
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	if b.ListenerCount() != 0 {
		t.Fatalf("initial ListenerCount = %d", b.ListenerCount())
	}
	l1, l2 := b.Subscribe(), b.Subscribe()
	if b.ListenerCount() != 2 {
		t.Errorf("ListenerCount = %d, want 2", b.ListenerCount())
	}
	b.Unsubscribe(l1)
	b.Unsubscribe(l1)
	if b.ListenerCount() != 1 {
		t.Errorf("after unsubscribe ListenerCount = %d, want 1", b.ListenerCount())
	}
	select {
	case <-l1.Done():
	default:
		t.Error("Done not closed after Unsubscribe")
	}
	b.Unsubscribe(l2)
}

func TestPublishFansOut(t *testing.T) {
	b := NewBroadcaster()
	ls := []*Listener{b.Subscribe(), b.Subscribe(), b.Subscribe()}
	b.Publish([]int16{42, -42})
	for i, l := range ls {
		if got := recv(t, l); got[0] != 42 || got[1] != -42 {
			t.Errorf("listener %d got %v", i, got)
		}
	}
}

func TestPublishDropsForSlowListener(t *testing.T) {
	b := NewBroadcaster()
	slow, fast := b.Subscribe(), b.Subscribe()
	got := 0
	for i := 0; i < listenerBuffer+50; i++ {
		b.Publish([]int16{int16(i)})
		got += drain(fast)
	}
	if n := drain(slow); n != listenerBuffer {
		t.Errorf("slow listener holds %d frames, want %d", n, listenerBuffer)
	}
	if got != listenerBuffer+50 {
		t.Errorf("fast listener got %d frames", got)
	}
}

func TestCloseDisconnectsListeners(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe()
	b.Close()
	b.Close()
	select {
	case <-l.Done():
	default:
		t.Error("listener not done after Close")
	}
	if b.ListenerCount() != 0 {
		t.Errorf("ListenerCount = %d after Close", b.ListenerCount())
	}
	late := b.Subscribe()
	select {
	case <-late.Done():
	default:
		t.Error("subscriber after Close should be done")
	}
	b.Publish([]int16{1})
	b.Unsubscribe(l)
}

func TestHandlersWithoutExport(t *testing.T) {
	none := func() *Broadcaster { return nil }
	tests := []struct {
		name   string
		h      http.Handler
		method string
		want   int
	}{
		{"mp3", NewHTTPHandler(none), "GET", http.StatusNotFound},
		{"webrtc", NewWebRTCHandler(none), "POST", http.StatusNotFound},
		{"webrtc get", NewWebRTCHandler(none), "GET", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		tt.h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/", strings.NewReader("{}")))
		if rec.Code != tt.want {
			t.Errorf("%s: status %d, want %d", tt.name, rec.Code, tt.want)
		}
	}
}

func TestWebRTCRejectsBadOffer(t *testing.T) {
	b := NewBroadcaster()
	h := NewWebRTCHandler(func() *Broadcaster { return b })
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/", strings.NewReader("not json")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
	if h.PeerCount() != 0 {
		t.Errorf("PeerCount = %d", h.PeerCount())
	}
}

func TestWebRTCRejectsUnparseableSDP(t *testing.T) {
	b := NewBroadcaster()
	h := NewWebRTCHandler(func() *Broadcaster { return b })
	rec := httptest.NewRecorder()
	body := `{"type":"offer","sdp":"not an sdp body"}`
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
	if h.PeerCount() != 0 || b.ListenerCount() != 0 {
		t.Errorf("peers %d, listeners %d after failed negotiation", h.PeerCount(), b.ListenerCount())
	}
}
