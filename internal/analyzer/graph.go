package analyzer

import (
	"errors"
	"log"
	"sync"

	"github.com/gopxl/beep/v2"

	"github.com/satindergrewal/lyricvid/internal/audio"
)

// ErrClosed is returned by Attach after Close.
var ErrClosed = errors.New("analyzer graph closed")

// tapHistory is the minimum ring length kept per tap so aligned reads can
// reach back past an output device's buffer or a queue of pipeline frames.
const tapHistory = 1 << 17

// Node is the single signal path created for one source.
type Node struct {
	Tap      *audio.Tap
	Analyzer *Analyzer
}

// Graph binds at most one tap and analyzer to each source streamer.
type Graph struct {
	fftSize int

	mu     sync.Mutex
	nodes  map[beep.Streamer]*Node
	closed bool
}

// NewGraph creates an empty graph whose analyzers use fftSize.
func NewGraph(fftSize int) *Graph {
	if fftSize == 0 {
		fftSize = DefaultFFTSize
	}
	return &Graph{
		fftSize: fftSize,
		nodes:   make(map[beep.Streamer]*Node),
	}
}

// Attach returns the node for src, creating it on first use. Attaching the
// same source again returns the existing node, so audio keeps flowing
// through one tap. src must be comparable (pointer streamers are).
func (g *Graph) Attach(src beep.Streamer) (*Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrClosed
	}
	if n, ok := g.nodes[src]; ok {
		return n, nil
	}
	tap := audio.NewTap(src, max(tapHistory, g.fftSize))
	an, err := New(tap, g.fftSize)
	if err != nil {
		return nil, err
	}
	n := &Node{Tap: tap, Analyzer: an}
	g.nodes[src] = n
	return n, nil
}

// Detach removes the node for src. It reports whether one existed.
func (g *Graph) Detach(src beep.Streamer) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[src]; !ok {
		return false
	}
	delete(g.nodes, src)
	return true
}

// Len returns the number of attached sources.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// Close detaches every source. Further Attach calls fail.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	if len(g.nodes) > 0 {
		log.Printf("Analyzer graph closed, released %d node(s)", len(g.nodes))
	}
	clear(g.nodes)
	g.closed = true
	return nil
}
