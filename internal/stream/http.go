package stream

import (
	"context"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strconv"

	"github.com/satindergrewal/lyricvid/internal/audio"
)

// Source returns the broadcaster to listen to, or nil when nothing is
// being exported.
type Source func() *Broadcaster

// HTTPHandler serves a chunked MP3 stream of the export audio. Each
// connection runs its own ffmpeg encoder.
type HTTPHandler struct {
	source Source
}

func NewHTTPHandler(src Source) *HTTPHandler {
	return &HTTPHandler{source: src}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b := h.source()
	if b == nil {
		http.Error(w, "no export is running", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, audio.FFmpegBin,
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", "192k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Printf("MP3 monitor: stdin pipe error: %v", err)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Printf("MP3 monitor: stdout pipe error: %v", err)
		return
	}
	if err := cmd.Start(); err != nil {
		log.Printf("MP3 monitor: ffmpeg start error: %v", err)
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("ICY-Name", "lyricvid export monitor")

	listener := b.Subscribe()
	defer b.Unsubscribe(listener)
	log.Printf("MP3 monitor connected (total: %d)", b.ListenerCount())
	defer log.Printf("MP3 monitor disconnected")

	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.Done():
				return
			case frame := <-listener.C:
				if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("MP3 monitor: ffmpeg read error: %v", err)
			}
			break
		}
	}
	cancel()
	cmd.Wait()
}
