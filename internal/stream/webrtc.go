package stream

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/lyricvid/internal/audio"
)

const monitorBitrate = 96000

// WebRTCHandler answers SDP offers with an Opus track of the export audio.
// Peers are hung up when the export they joined ends.
type WebRTCHandler struct {
	source Source

	mu    sync.Mutex
	peers map[*webrtc.PeerConnection]*monitorPeer
}

type monitorPeer struct {
	b        *Broadcaster
	listener *Listener
}

func NewWebRTCHandler(src Source) *WebRTCHandler {
	return &WebRTCHandler{source: src, peers: make(map[*webrtc.PeerConnection]*monitorPeer)}
}

// PeerCount returns the number of connected monitor peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	b := h.source()
	if b == nil {
		http.Error(w, "no export is running", http.StatusNotFound)
		return
	}
	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil || offer.SDP == "" {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, track, err := negotiate(offer)
	if err != nil {
		log.Printf("WebRTC monitor: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	peer := &monitorPeer{b: b, listener: b.Subscribe()}
	h.mu.Lock()
	h.peers[pc] = peer
	n := len(h.peers)
	h.mu.Unlock()
	log.Printf("WebRTC monitor connected (%d peers)", n)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			h.hangUp(pc)
		}
	})
	go func() {
		h.streamToPeer(peer.listener, track)
		h.hangUp(pc)
	}()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

// negotiate builds a send-only peer for offer and waits for ICE gathering,
// so the answer carries every candidate.
func negotiate(offer webrtc.SessionDescription) (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, nil, fmt.Errorf("create peer connection: %w", err)
	}
	fail := func(what string, err error) (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, error) {
		pc.Close()
		return nil, nil, fmt.Errorf("%s: %w", what, err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audio.SampleRate, Channels: audio.Channels},
		"audio", "lyricvid-monitor",
	)
	if err != nil {
		return fail("create track", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return fail("add track", err)
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return fail("set remote description", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail("create answer", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail("set local description", err)
	}
	<-gathered
	return pc, track, nil
}

// streamToPeer encodes export frames until the listener ends or the
// track stops accepting samples.
func (h *WebRTCHandler) streamToPeer(listener *Listener, track *webrtc.TrackLocalStaticSample) {
	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		log.Printf("WebRTC monitor: opus encoder: %v", err)
		return
	}
	enc.SetBitrate(monitorBitrate)

	packet := make([]byte, 4000)
	for {
		select {
		case <-listener.Done():
			return
		case frame := <-listener.C:
			n, err := enc.Encode(frame, packet)
			if err != nil {
				continue
			}
			if err := track.WriteSample(media.Sample{Data: packet[:n], Duration: audio.FrameDuration}); err != nil {
				return
			}
		}
	}
}

// hangUp unsubscribes and closes pc once, whichever side ends first.
func (h *WebRTCHandler) hangUp(pc *webrtc.PeerConnection) {
	h.mu.Lock()
	peer, ok := h.peers[pc]
	delete(h.peers, pc)
	n := len(h.peers)
	h.mu.Unlock()
	if !ok {
		return
	}
	peer.b.Unsubscribe(peer.listener)
	pc.Close()
	log.Printf("WebRTC monitor disconnected (%d peers)", n)
}

// Close hangs up every peer.
func (h *WebRTCHandler) Close() {
	h.mu.Lock()
	pcs := make([]*webrtc.PeerConnection, 0, len(h.peers))
	for pc := range h.peers {
		pcs = append(pcs, pc)
	}
	h.mu.Unlock()
	for _, pc := range pcs {
		h.hangUp(pc)
	}
}
