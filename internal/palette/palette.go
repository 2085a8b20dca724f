// Package palette derives a small ordered colour palette from an image.
package palette

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register decoders
	_ "image/jpeg" // register decoders
	_ "image/png"  // register decoders
	"log"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	_ "golang.org/x/image/webp"

	"github.com/satindergrewal/lyricvid/internal/errs"
)

// Palette is an ordered list of #rrggbb colours, never empty.
type Palette []string

// Fallback is used whenever extraction fails or finds nothing.
var Fallback = Palette{"#67e8f9", "#a78bfa", "#f472b6"}

const (
	// DefaultCount is how many colours Extract keeps.
	DefaultCount = 4
	sampleStride = 10
	quantStep    = 32
)

// Provider produces a palette for an image. Implementations must not fail;
// they degrade to Fallback.
type Provider interface {
	Palette(img image.Image) Palette
}

// Extractor is the default Provider: a frequency count of quantized pixels.
type Extractor struct {
	Count int
}

// Palette implements Provider.
func (e Extractor) Palette(img image.Image) Palette {
	n := e.Count
	if n <= 0 {
		n = DefaultCount
	}
	p, err := Extract(img, n)
	if err != nil {
		log.Printf("Palette extraction failed, using fallback: %v", err)
		return Fallback
	}
	return p
}

// Extract samples every 10th pixel, skips transparent and near-black or
// near-white pixels, quantizes channels to steps of 32 and returns the
// count most frequent colours.
func Extract(img image.Image, count int) (p Palette, err error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	// some decoders hand back images that panic on out-of-range access
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("read pixels: %v", r)
		}
	}()

	b := img.Bounds()
	w := b.Dx()
	total := w * b.Dy()
	if total == 0 {
		return nil, fmt.Errorf("empty image")
	}

	counts := make(map[uint32]int)
	var order []uint32 // first-seen order keeps ties deterministic
	for i := 0; i < total; i += sampleStride {
		x := b.Min.X + i%w
		y := b.Min.Y + i/w
		c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
		if c.A < 128 {
			continue
		}
		if c.R < 10 && c.G < 10 && c.B < 10 {
			continue
		}
		if c.R > 245 && c.G > 245 && c.B > 245 {
			continue
		}
		key := uint32(quantize(c.R))<<16 | uint32(quantize(c.G))<<8 | uint32(quantize(c.B))
		if counts[key] == 0 {
			order = append(order, key)
		}
		counts[key]++
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("no usable pixels")
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > count {
		order = order[:count]
	}
	p = make(Palette, len(order))
	for i, k := range order {
		p[i] = fmt.Sprintf("#%02x%02x%02x", k>>16&0xff, k>>8&0xff, k&0xff)
	}
	return p, nil
}

// quantize rounds c to the nearest multiple of 32, clamped to 255.
func quantize(c uint8) uint8 {
	q := math.Round(float64(c)/quantStep) * quantStep
	if q > 255 {
		q = 255
	}
	return uint8(q)
}

// Load decodes the image at path. Decode failure is an asset error.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Asset("open image", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errs.Asset("decode image "+path, err)
	}
	return img, nil
}

// At returns the colour for index i, cycling through the palette.
func (p Palette) At(i int) color.NRGBA {
	if len(p) == 0 {
		return Fallback.At(i)
	}
	if i < 0 {
		i = -i
	}
	c, err := ParseHex(p[i%len(p)])
	if err != nil {
		return color.NRGBA{R: 0x67, G: 0xe8, B: 0xf9, A: 0xff}
	}
	return c
}

// OrFallback returns p, or Fallback when p is empty.
func (p Palette) OrFallback() Palette {
	if len(p) == 0 {
		return Fallback
	}
	return p
}

// ParseHex parses #rgb or #rrggbb.
func ParseHex(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return color.NRGBA{}, fmt.Errorf("bad hex colour %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("bad hex colour %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
