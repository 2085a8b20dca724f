package render

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/satindergrewal/lyricvid/internal/palette"
)

const (
	backgroundOpacity = 0.3
	edgeShade         = 0.8
	centreShade       = 0.2
	barBaseline       = 0.88 // fraction of height
	barMaxHeight      = 0.1  // fraction of height
	barSpan           = 0.9  // fraction of width
	barAlpha          = 0.85
	reflectAlpha      = 0.2
	maxGlows          = 64
)

// Compositor draws frames. It caches derived layers keyed by their inputs
// only, so output depends on nothing but the Frame and the surface size.
// A Compositor may be shared between goroutines.
type Compositor struct {
	mu     sync.Mutex
	fonts  *fonts
	base   baseCache
	glows  map[glowKey]glow
	raster vector.Rasterizer
}

type baseCache struct {
	bg   image.Image
	w, h int
	img  *image.RGBA
}

// NewCompositor loads fonts. fontPath overrides the default lyric font,
// which is Noto Sans Devanagari. Frame.Font overrides both per frame.
func NewCompositor(fontPath string) (*Compositor, error) {
	fs, err := loadFonts(fontPath)
	if err != nil {
		return nil, err
	}
	return &Compositor{fonts: fs, glows: make(map[glowKey]glow)}, nil
}

// Render draws f into dst, back to front: black fill, background image,
// shading gradient, visualizer, lyric lines, metadata panel.
func (c *Compositor) Render(dst *image.RGBA, f Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return
	}
	pal := f.Palette.OrFallback()

	draw.Draw(dst, b, c.baseLayer(f.Background, w, h), image.Point{}, draw.Src)

	if f.Particles != nil {
		c.drawParticles(dst, f.Particles.Background(), pal, false)
	}
	drawBars(dst, f.Freq, pal)
	if f.Particles != nil {
		c.drawParticles(dst, f.Particles.Foreground(), pal, true)
	}

	c.drawLyrics(dst, f, pal)
	c.drawMetadata(dst, f, pal)
}

// baseLayer returns layers 1 to 3, rebuilt only when the background or
// surface size changes.
func (c *Compositor) baseLayer(bg image.Image, w, h int) *image.RGBA {
	if c.base.img != nil && c.base.bg == bg && c.base.w == w && c.base.h == h {
		return c.base.img
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	if bg != nil && !bg.Bounds().Empty() {
		fit := imaging.Fill(bg, w, h, imaging.Center, imaging.Linear)
		mask := image.NewUniform(color.Alpha{A: uint8(math.Round(backgroundOpacity * 255))})
		draw.DrawMask(img, img.Bounds(), fit, image.Point{}, mask, image.Point{}, draw.Over)
	}

	for y := 0; y < h; y++ {
		a := GradientAlpha(y, h)
		row := image.Rect(0, y, w, y+1)
		shade := image.NewUniform(color.NRGBA{A: uint8(math.Round(a * 255))})
		draw.Draw(img, row, shade, image.Point{}, draw.Over)
	}

	c.base = baseCache{bg: bg, w: w, h: h, img: img}
	return img
}

// GradientAlpha is the darkening overlay opacity for row y: strongest at
// the top and bottom edges, weakest in the middle.
func GradientAlpha(y, h int) float64 {
	if h <= 1 {
		return edgeShade
	}
	pos := float64(y) / float64(h-1)
	d := math.Abs(pos-0.5) * 2
	return centreShade + (edgeShade-centreShade)*d
}

// BarHeight maps a 0-255 magnitude onto [0, maxH].
func BarHeight(mag uint8, maxH float64) float64 {
	return float64(mag) / 255 * maxH
}

// BarColor returns the colour of bar i.
func BarColor(p palette.Palette, i int) color.NRGBA {
	return p.At(i)
}

func drawBars(dst *image.RGBA, freq []uint8, pal palette.Palette) {
	n := len(freq)
	if n == 0 {
		return
	}
	b := dst.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	maxH := barMaxHeight * h
	base := b.Min.Y + int(math.Round(barBaseline*h))
	slot := barSpan * w / float64(n)
	left := float64(b.Min.X) + (1-barSpan)/2*w
	barW := max(1, int(slot*0.7))

	for i, mag := range freq {
		bh := int(math.Round(BarHeight(mag, maxH)))
		if bh <= 0 {
			continue
		}
		x := int(left + float64(i)*slot)
		col := BarColor(pal, i)
		col.A = uint8(math.Round(barAlpha * 255))
		draw.Draw(dst, image.Rect(x, base-bh, x+barW, base), image.NewUniform(col), image.Point{}, draw.Over)

		// faint reflection under the baseline
		rh := bh * 3 / 10
		col.A = uint8(math.Round(reflectAlpha * 255))
		draw.Draw(dst, image.Rect(x, base, x+barW, base+rh), image.NewUniform(col), image.Point{}, draw.Over)
	}
}

func (c *Compositor) drawParticles(dst *image.RGBA, ps []Particle, pal palette.Palette, foreground bool) {
	b := dst.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	short := math.Min(w, h)
	for _, p := range ps {
		a := p.alpha(foreground)
		if a <= 0 {
			continue
		}
		col := pal.At(p.Color)
		col.A = uint8(math.Round(a * 255))
		r := math.Max(1, p.Size*short)
		c.fillCircle(dst, float64(b.Min.X)+p.X*w, float64(b.Min.Y)+p.Y*h, r, col)
	}
}

// fillCircle draws a filled anti-aliased circle. Circles that cross the
// surface edge are skipped.
func (c *Compositor) fillCircle(dst *image.RGBA, cx, cy, r float64, col color.NRGBA) {
	x0, y0 := int(math.Floor(cx-r)), int(math.Floor(cy-r))
	x1, y1 := int(math.Ceil(cx+r)), int(math.Ceil(cy+r))
	rect := image.Rect(x0, y0, x1, y1)
	if rect.Empty() || !rect.In(dst.Bounds()) {
		return
	}
	const k = 0.5522847498 // cubic Bézier quarter-circle constant
	ox, oy, rr := float32(cx-float64(x0)), float32(cy-float64(y0)), float32(r)
	kr := float32(k) * rr

	z := &c.raster
	z.Reset(rect.Dx(), rect.Dy())
	z.DrawOp = draw.Over
	z.MoveTo(ox+rr, oy)
	z.CubeTo(ox+rr, oy+kr, ox+kr, oy+rr, ox, oy+rr)
	z.CubeTo(ox-kr, oy+rr, ox-rr, oy+kr, ox-rr, oy)
	z.CubeTo(ox-rr, oy-kr, ox-kr, oy-rr, ox, oy-rr)
	z.CubeTo(ox+kr, oy-rr, ox+rr, oy-kr, ox+rr, oy)
	z.ClosePath()
	z.Draw(dst, rect, image.NewUniform(col), image.Point{})
}

func (c *Compositor) drawLyrics(dst *image.RGBA, f Frame, pal palette.Palette) {
	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()
	size := FontSize(w, h)
	chain := c.fonts.lyricChain(f.Font)
	face := c.fonts.face(chain, size)
	side := c.fonts.face(chain, size*0.6)
	maxW := int(0.85 * float64(w))
	lineH := face.height
	sideH := side.height
	centreY := b.Min.Y + h/2

	cur := wrapText(face, f.Lyrics.Current, maxW)
	blockH := len(cur) * lineH
	top := centreY - blockH/2

	if f.Lyrics.Prev != "" {
		prev := wrapText(side, f.Lyrics.Prev, maxW)
		y := top - int(0.6*float64(lineH)) - (len(prev)-1)*sideH
		for _, line := range prev {
			drawCentred(dst, side, line, y, color.NRGBA{R: 255, G: 255, B: 255, A: 90})
			y += sideH
		}
	}

	if len(cur) > 0 {
		alpha := lineAlpha(f.Lyrics.Start, f.Time)
		glowCol := pal.At(0)
		sigma := size * 0.25
		y := top + face.ascent
		for _, line := range cur {
			x := b.Min.X + (w-face.width(line))/2
			g := c.glow(face, line, glowCol, sigma)
			mask := image.NewUniform(color.Alpha{A: uint8(math.Round(alpha * 230))})
			at := image.Pt(x, y).Add(g.Offset)
			r := image.Rectangle{Min: at, Max: at.Add(g.Img.Bounds().Size())}
			draw.DrawMask(dst, r, g.Img, image.Point{}, mask, image.Point{}, draw.Over)
			draw.DrawMask(dst, r, g.Img, image.Point{}, mask, image.Point{}, draw.Over)
			face.draw(dst, line, x, y, color.NRGBA{R: 255, G: 255, B: 255, A: uint8(math.Round(alpha * 255))})
			y += lineH
		}
	}

	if f.Lyrics.Next != "" {
		next := wrapText(side, f.Lyrics.Next, maxW)
		y := top + blockH + int(0.6*float64(lineH)) + side.ascent
		for _, line := range next {
			drawCentred(dst, side, line, y, color.NRGBA{R: 255, G: 255, B: 255, A: 128})
			y += sideH
		}
	}
}

func drawCentred(dst *image.RGBA, face textFace, s string, baseline int, col color.NRGBA) {
	b := dst.Bounds()
	x := b.Min.X + (b.Dx()-face.width(s))/2
	face.draw(dst, s, x, baseline, col)
}

func (c *Compositor) glow(face textFace, s string, col color.NRGBA, sigma float64) glow {
	key := glowKey{text: s, size: face.size, face: face.chain[0], col: col}
	if g, ok := c.glows[key]; ok {
		return g
	}
	if len(c.glows) >= maxGlows {
		clear(c.glows)
	}
	g := makeGlow(face, s, col, sigma)
	c.glows[key] = g
	return g
}

func (c *Compositor) drawMetadata(dst *image.RGBA, f Frame, pal palette.Palette) {
	if f.SongName == "" && f.Creator == "" {
		return
	}
	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()
	size := FontSize(w, h)
	meta := c.fonts.chains[FontNoto]
	title := c.fonts.face(meta, size*0.5)
	by := c.fonts.face(meta, size*0.38)
	margin := int(0.03 * float64(min(w, h)))
	pad := int(size * 0.35)

	titleH := title.height
	byH := by.height
	byLine := ""
	if f.Creator != "" {
		byLine = "by " + f.Creator
	}

	panelW := title.width(f.SongName)
	panelH := 2 * pad
	if f.SongName != "" {
		panelH += titleH
	}
	if byLine != "" {
		panelW = max(panelW, by.width(byLine))
		panelH += byH
	}
	panelW += 2 * pad

	x0 := b.Min.X + margin
	y1 := b.Max.Y - margin
	panel := image.Rect(x0, y1-panelH, x0+panelW, y1)
	draw.Draw(dst, panel, image.NewUniform(color.NRGBA{A: 128}), image.Point{}, draw.Over)

	y := panel.Min.Y + pad
	if f.SongName != "" {
		title.draw(dst, f.SongName, x0+pad, y+title.ascent, color.White)
		y += titleH
	}
	if byLine != "" {
		accent := pal.At(1)
		by.draw(dst, byLine, x0+pad, y+by.ascent, accent)
	}
}
