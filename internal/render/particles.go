package render

import (
	"math"
	"math/rand"

	"github.com/satindergrewal/lyricvid/internal/analyzer"
)

const (
	// BackgroundThreshold and ForegroundThreshold are the mean magnitudes
	// at or below which no particles of that layer spawn.
	BackgroundThreshold = 20
	ForegroundThreshold = 25

	refRate      = 60.0 // spawn divisors are tuned per 1/60 s
	maxStep      = 1.0  // larger forward jumps are treated as a seek
	maxBackdrop  = 400
	maxForeGlint = 150
	gravity      = 0.5 // in surface heights per second squared
)

// Particle is one dot in normalized surface coordinates.
type Particle struct {
	X, Y    float64
	VX, VY  float64
	Life    float64
	MaxLife float64
	Size    float64 // fraction of the short surface side
	Color   int     // palette index
}

// alpha returns the particle's opacity for its layer.
func (p Particle) alpha(foreground bool) float64 {
	if foreground {
		return max(0, 1-p.Life/p.MaxLife)
	}
	return math.Sin(p.Life/p.MaxLife*math.Pi) * 0.3
}

// SpawnRate returns particles per second for a mean magnitude. It is zero
// at or below threshold and grows linearly with loudness above it.
func SpawnRate(mean, threshold, divisor float64) float64 {
	if mean <= threshold {
		return 0
	}
	return mean / divisor * refRate
}

// Particles is the particle state for one playback. It advances only on
// audio time, so the same seed and inputs always yield the same state.
type Particles struct {
	seed int64
	rng  *rand.Rand

	bg, fg       []Particle
	bgAcc, fgAcc float64
	last         float64
	started      bool
}

// NewParticles creates an empty system seeded with seed.
func NewParticles(seed int64) *Particles {
	return &Particles{seed: seed, rng: rand.New(rand.NewSource(seed))}
}

// Reset clears all particles and restarts the random sequence.
func (p *Particles) Reset() {
	p.rng = rand.New(rand.NewSource(p.seed))
	p.bg, p.fg = p.bg[:0], p.fg[:0]
	p.bgAcc, p.fgAcc = 0, 0
	p.started = false
}

// Background returns the backdrop layer.
func (p *Particles) Background() []Particle { return p.bg }

// Foreground returns the layer drawn over the bars.
func (p *Particles) Foreground() []Particle { return p.fg }

// Advance moves the system to audio time t using the spectrum freq. A
// backward jump or a jump over a second resets the system first.
func (p *Particles) Advance(freq []uint8, t float64) {
	if p.started && (t < p.last || t-p.last > maxStep) {
		p.Reset()
	}
	if !p.started {
		p.started = true
		p.last = t
		return
	}
	dt := t - p.last
	p.last = t
	if dt == 0 {
		return
	}

	p.bg = stepBackdrop(p.bg, dt)
	p.fg = stepForeground(p.fg, dt)

	mean := analyzer.FrequencyData(freq).Mean()

	p.bgAcc += SpawnRate(mean, BackgroundThreshold, 30) * dt
	for ; p.bgAcc >= 1; p.bgAcc-- {
		if len(p.bg) < maxBackdrop {
			p.bg = append(p.bg, p.newBackdrop())
		}
	}
	p.fgAcc += SpawnRate(mean, ForegroundThreshold, 15) * dt
	for ; p.fgAcc >= 1; p.fgAcc-- {
		if len(p.fg) < maxForeGlint {
			p.fg = append(p.fg, p.newForeground())
		}
	}
}

func (p *Particles) newBackdrop() Particle {
	r := p.rng
	return Particle{
		X:       r.Float64(),
		Y:       r.Float64(),
		VX:      (r.Float64() - 0.5) * 0.06,
		VY:      (r.Float64() - 0.5) * 0.1,
		MaxLife: 2 + r.Float64()*1.33,
		Size:    (1 + r.Float64()*3) / 1080,
		Color:   r.Intn(1 << 16),
	}
}

func (p *Particles) newForeground() Particle {
	r := p.rng
	return Particle{
		X:       r.Float64(),
		Y:       0.98,
		VX:      (r.Float64() - 0.5) * 0.25,
		VY:      -(r.Float64()*0.6 + 0.2),
		MaxLife: 1.33 + r.Float64(),
		Size:    (2 + r.Float64()*4) / 1080,
		Color:   r.Intn(1 << 16),
	}
}

func stepBackdrop(ps []Particle, dt float64) []Particle {
	out := ps[:0]
	for _, q := range ps {
		q.X = wrap(q.X + q.VX*dt)
		q.Y = wrap(q.Y + q.VY*dt)
		q.Life += dt
		if q.Life < q.MaxLife {
			out = append(out, q)
		}
	}
	return out
}

func stepForeground(ps []Particle, dt float64) []Particle {
	out := ps[:0]
	for _, q := range ps {
		q.X += q.VX * dt
		q.Y += q.VY * dt
		q.VY += gravity * dt
		q.Life += dt
		if q.Life < q.MaxLife && q.Y < 1.1 {
			out = append(out, q)
		}
	}
	return out
}

func wrap(v float64) float64 {
	v = math.Mod(v, 1)
	if v < 0 {
		v++
	}
	return v
}
