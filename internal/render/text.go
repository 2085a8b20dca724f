package render

import (
	"bytes"
	_ "embed"
	"image"
	"image/color"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/font"
	ot "github.com/go-text/typesetting/font/opentype"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/satindergrewal/lyricvid/internal/errs"
)

//go:embed fonts/NotoSansDevanagari-Regular.ttf
var notoDevanagari []byte

// Font selects a project's lyric typeface: one of the built-in names or
// the path of a TrueType/OpenType file.
type Font string

const (
	FontNoto Font = "noto" // Noto Sans Devanagari, covers Latin too
	FontGo   Font = "go"   // Go Bold, Latin only
)

// ParseFont validates a font choice. Empty selects the compositor default.
func ParseFont(s string) (Font, error) {
	s = strings.TrimSpace(s)
	switch f := Font(strings.ToLower(s)); f {
	case "", FontNoto, FontGo:
		return f, nil
	}
	switch strings.ToLower(filepath.Ext(s)) {
	case ".ttf", ".otf":
		if _, err := os.Stat(s); err != nil {
			return "", errs.Asset("font "+s, err)
		}
		return Font(s), nil
	}
	return "", errs.Input("unknown font %q: use noto, go or a .ttf/.otf file", s)
}

// fonts holds parsed faces, a shaper and the glyph rasterizer. Not safe
// for concurrent use.
type fonts struct {
	noto, latin *font.Face
	lyric       []*font.Face // default lyric chain
	chains      map[Font][]*font.Face

	shaper shaping.HarfbuzzShaper
	seg    shaping.Segmenter
	raster vector.Rasterizer
	shaped map[shapeKey][]shaping.Output
}

const maxShaped = 256

type shapeKey struct {
	text string
	face *font.Face
	size fixed.Int26_6
}

func loadFonts(lyricPath string) (*fonts, error) {
	noto, err := font.ParseTTF(bytes.NewReader(notoDevanagari))
	if err != nil {
		return nil, err
	}
	latin, err := font.ParseTTF(bytes.NewReader(gobold.TTF))
	if err != nil {
		return nil, err
	}
	fs := &fonts{
		noto:   noto,
		latin:  latin,
		chains: make(map[Font][]*font.Face),
		shaped: make(map[shapeKey][]shaping.Output),
	}
	fs.chains[FontNoto] = []*font.Face{noto, latin}
	fs.chains[FontGo] = []*font.Face{latin, noto}
	fs.lyric = fs.chains[FontNoto]
	if lyricPath != "" {
		chain, err := fs.load(lyricPath)
		if err != nil {
			return nil, err
		}
		fs.lyric = chain
	}
	return fs, nil
}

// load parses the font file at path into a chain that falls back to the
// built-in faces for runes it lacks.
func (fs *fonts) load(path string) ([]*font.Face, error) {
	if chain, ok := fs.chains[Font(path)]; ok {
		return chain, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Asset("read font", err)
	}
	face, err := font.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, errs.Asset("parse font "+path, err)
	}
	chain := []*font.Face{face, fs.noto, fs.latin}
	fs.chains[Font(path)] = chain
	return chain, nil
}

// lyricChain resolves a project's font. A file that fails to load is
// logged once and replaced by the default.
func (fs *fonts) lyricChain(f Font) []*font.Face {
	if f == "" {
		return fs.lyric
	}
	if chain, ok := fs.chains[f]; ok {
		return chain
	}
	chain, err := fs.load(string(f))
	if err != nil {
		log.Printf("Lyric font %s unavailable, using the default: %v", f, err)
		fs.chains[f] = fs.lyric
		return fs.lyric
	}
	return chain
}

// fallback resolves each rune to the first face that maps it.
type fallback []*font.Face

func (fb fallback) ResolveFace(r rune) *font.Face {
	for _, f := range fb {
		if _, ok := f.NominalGlyph(r); ok {
			return f
		}
	}
	return fb[0]
}

// textFace is a face chain at a whole-pixel size.
type textFace struct {
	fs      *fonts
	chain   []*font.Face
	size    fixed.Int26_6
	ascent  int
	descent int
	height  int
}

func (fs *fonts) face(chain []*font.Face, px float64) textFace {
	size := fixed.I(max(1, int(math.Round(px))))
	tf := textFace{fs: fs, chain: chain, size: size}
	primary := chain[0]
	upem := float64(primary.Upem())
	scale := float64(size) / 64 / upem
	if ext, ok := primary.FontHExtents(); ok {
		tf.ascent = int(math.Ceil(float64(ext.Ascender) * scale))
		tf.descent = int(math.Ceil(-float64(ext.Descender) * scale))
		tf.height = tf.ascent + tf.descent + int(math.Ceil(float64(ext.LineGap)*scale))
	} else {
		tf.ascent = int(math.Ceil(0.8 * float64(size) / 64))
		tf.descent = int(math.Ceil(0.2 * float64(size) / 64))
		tf.height = tf.ascent + tf.descent
	}
	return tf
}

// shape runs s through script segmentation and HarfBuzz, so conjuncts and
// reordered vowel signs come out as the font intends.
func (tf textFace) shape(s string) []shaping.Output {
	key := shapeKey{text: s, face: tf.chain[0], size: tf.size}
	if out, ok := tf.fs.shaped[key]; ok {
		return out
	}
	runes := []rune(s)
	in := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Face:      tf.chain[0],
		Size:      tf.size,
	}
	runs := tf.fs.seg.Split(in, fallback(tf.chain))
	out := make([]shaping.Output, 0, len(runs))
	for _, r := range runs {
		out = append(out, tf.fs.shaper.Shape(r))
	}
	if len(tf.fs.shaped) >= maxShaped {
		clear(tf.fs.shaped)
	}
	tf.fs.shaped[key] = out
	return out
}

func (tf textFace) width(s string) int {
	var adv fixed.Int26_6
	for _, run := range tf.shape(s) {
		adv += run.Advance
	}
	return adv.Ceil()
}

// draw fills the shaped outlines of s with col, the pen starting at
// (x, baseline).
func (tf textFace) draw(dst draw.Image, s string, x, baseline int, col color.Color) {
	runs := tf.shape(s)
	if len(runs) == 0 {
		return
	}
	w := tf.width(s)
	pad := tf.size.Ceil()/2 + 1
	r := image.Rect(x-pad, baseline-tf.ascent-pad, x+w+pad, baseline+tf.descent+pad)
	if !r.Overlaps(dst.Bounds()) {
		return
	}

	z := &tf.fs.raster
	z.Reset(r.Dx(), r.Dy())
	ox := float32(x - r.Min.X)
	oy := float32(baseline - r.Min.Y)
	var dot fixed.Int26_6
	for _, run := range runs {
		scale := float32(run.Size) / 64 / float32(run.Face.Upem())
		for _, g := range run.Glyphs {
			gx := ox + float32(dot+g.XOffset)/64
			gy := oy - float32(g.YOffset)/64
			if outline, ok := run.Face.GlyphData(g.GlyphID).(font.GlyphOutline); ok {
				fillOutline(z, outline, gx, gy, scale)
			}
			dot += g.XAdvance
		}
	}
	mask := image.NewAlpha(image.Rect(0, 0, r.Dx(), r.Dy()))
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	draw.DrawMask(dst, r, image.NewUniform(col), image.Point{}, mask, image.Point{}, draw.Over)
}

// fillOutline adds a glyph outline, y-up in font units, to z with its
// origin at (x, y) in y-down pixels.
func fillOutline(z *vector.Rasterizer, o font.GlyphOutline, x, y, scale float32) {
	pt := func(p ot.SegmentPoint) (float32, float32) {
		return x + p.X*scale, y - p.Y*scale
	}
	open := false
	for _, seg := range o.Segments {
		switch seg.Op {
		case ot.SegmentOpMoveTo:
			if open {
				z.ClosePath()
			}
			z.MoveTo(pt(seg.Args[0]))
			open = true
		case ot.SegmentOpLineTo:
			z.LineTo(pt(seg.Args[0]))
		case ot.SegmentOpQuadTo:
			ax, ay := pt(seg.Args[0])
			bx, by := pt(seg.Args[1])
			z.QuadTo(ax, ay, bx, by)
		case ot.SegmentOpCubeTo:
			ax, ay := pt(seg.Args[0])
			bx, by := pt(seg.Args[1])
			cx, cy := pt(seg.Args[2])
			z.CubeTo(ax, ay, bx, by, cx, cy)
		}
	}
	if open {
		z.ClosePath()
	}
}

// wrapText splits s into lines no wider than maxW. A single word wider
// than maxW gets a line of its own.
func wrapText(face textFace, s string, maxW int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	cur := words[0]
	for _, w := range words[1:] {
		if face.width(cur+" "+w) <= maxW {
			cur += " " + w
			continue
		}
		lines = append(lines, cur)
		cur = w
	}
	return append(lines, cur)
}

type glowKey struct {
	text string
	size fixed.Int26_6
	face *font.Face
	col  color.NRGBA
}

// glow is a blurred rendering of a text line. Offset is added to the
// line's baseline origin to position Img.
type glow struct {
	Img    *image.NRGBA
	Offset image.Point
}

func makeGlow(face textFace, s string, col color.NRGBA, sigma float64) glow {
	pad := int(math.Ceil(3*sigma)) + face.size.Ceil()/2
	scratch := image.NewRGBA(image.Rect(0, 0, face.width(s)+2*pad, face.ascent+face.descent+2*pad))
	face.draw(scratch, s, pad, pad+face.ascent, col)
	return glow{
		Img:    imaging.Blur(scratch, sigma),
		Offset: image.Pt(-pad, -pad-face.ascent),
	}
}
