// Package stream fans the audio of a running export out to live monitors.
package stream

import (
	"sync"

	"github.com/satindergrewal/lyricvid/internal/metrics"
)

// listenerBuffer holds about three seconds of 20ms frames.
const listenerBuffer = 150

// Broadcaster fans out PCM frames from one producer to N listeners. Slow
// listeners lose frames; the producer never blocks.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	closed    bool
}

// Listener receives PCM frames from the broadcaster.
type Listener struct {
	C    chan []int16
	done chan struct{}
	once sync.Once
}

// Done is closed when the listener is unsubscribed or the broadcaster closes.
func (l *Listener) Done() <-chan struct{} { return l.done }

func (l *Listener) stop() { l.once.Do(func() { close(l.done) }) }

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a new listener. Subscribing to a closed broadcaster
// returns a listener that is already done.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []int16, listenerBuffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		l.stop()
		return l
	}
	b.listeners[l] = struct{}{}
	metrics.MonitorListeners.Inc()
	return l
}

// Unsubscribe removes a listener and signals it to stop. It may be called
// more than once.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	if _, ok := b.listeners[l]; ok {
		delete(b.listeners, l)
		metrics.MonitorListeners.Dec()
	}
	b.mu.Unlock()
	l.stop()
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Publish delivers frame to every listener without blocking.
func (b *Broadcaster) Publish(frame []int16) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.listeners {
		select {
		case l.C <- frame:
		default:
		}
	}
}

// Close disconnects every listener. Later subscribers are done at once.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for l := range b.listeners {
		delete(b.listeners, l)
		metrics.MonitorListeners.Dec()
		l.stop()
	}
}
