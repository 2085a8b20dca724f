package render

// FadeIn is how long the current line takes to reach full opacity.
const FadeIn = 0.4

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// lineAlpha returns the opacity of a line that started at start, at time t.
func lineAlpha(start, t float64) float64 {
	return Smoothstep((t - start) / FadeIn)
}
