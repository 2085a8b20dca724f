package session

import (
	"sync"

	"github.com/satindergrewal/lyricvid/internal/analyzer"
	"github.com/satindergrewal/lyricvid/internal/audio"
	"github.com/satindergrewal/lyricvid/internal/playback"
	"github.com/satindergrewal/lyricvid/internal/render"
)

// Player is a playback transport whose audio runs through an analyzer.
type Player interface {
	playback.Transport
	Analyzer() *analyzer.Analyzer
}

// PlayerFactory opens a player for clip, attaching its stream to graph.
type PlayerFactory func(clip *audio.Clip, graph *analyzer.Graph) (Player, error)

// Preview is an open, playable project.
type Preview struct {
	Controller *playback.Controller

	project *Project
	player  Player
	scope   *scope

	mu        sync.Mutex
	particles *render.Particles
}

// Project returns the project being previewed.
func (p *Preview) Project() *Project { return p.project }

// Frame samples the analyzer and returns the frame to draw now. Call it
// once per displayed frame after Controller.Tick.
func (p *Preview) Frame() render.Frame {
	snap := p.Controller.Snapshot()
	freq := p.player.Analyzer().Sample()

	p.mu.Lock()
	p.particles.Advance(freq, snap.CurrentTime)
	p.mu.Unlock()

	pr := p.project
	return render.Frame{
		Background: pr.Background,
		Palette:    pr.Palette,
		Freq:       freq,
		Lyrics:     pr.Timeline.Window(snap.ActiveLyricIndex),
		Time:       snap.CurrentTime,
		SongName:   pr.SongName,
		Creator:    pr.Creator,
		Font:       pr.Font,
		Particles:  p.particles,
	}
}

func (p *Preview) close() error {
	return p.scope.Release()
}
