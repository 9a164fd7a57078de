// Package mask composites redaction boxes onto document images.
package mask

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	// registers BMP and TIFF decoders alongside imaging's defaults
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/raaihank/docmask/internal/matcher"
)

// fallbackMarker is drawn when the label does not fit inside a box.
const fallbackMarker = "X"

// Options controls mask appearance.
type Options struct {
	Fill       color.NRGBA
	Marker     color.NRGBA
	MarkerText string
}

// DefaultOptions is an opaque black box with a white REDACTED label.
func DefaultOptions() Options {
	return Options{
		Fill:       color.NRGBA{A: 255},
		Marker:     color.NRGBA{R: 255, G: 255, B: 255, A: 255},
		MarkerText: "REDACTED",
	}
}

// Renderer draws masks. It holds no per-image state and is safe for
// concurrent use.
type Renderer struct {
	opts Options
	face font.Face
}

// NewRenderer creates a renderer with the given options.
func NewRenderer(opts Options) *Renderer {
	return &Renderer{opts: opts, face: basicfont.Face7x13}
}

// Render returns a new image the size of src with every match box filled in
// list order; later boxes paint over earlier ones. src is not modified.
func (r *Renderer) Render(src image.Image, matches []matcher.PIIMatch) *image.NRGBA {
	dst := imaging.Clone(src)
	fill := image.NewUniform(r.opts.Fill)

	for _, m := range matches {
		b := m.BoundingBox
		rect := image.Rect(b.X0, b.Y0, b.X1, b.Y1).Intersect(dst.Bounds())
		if rect.Empty() {
			continue
		}

		draw.Draw(dst, rect, fill, image.Point{}, draw.Over)
		r.drawMarker(dst, rect)
	}

	return dst
}

func (r *Renderer) drawMarker(dst draw.Image, rect image.Rectangle) {
	metrics := r.face.Metrics()
	ascent := metrics.Ascent.Ceil()
	height := ascent + metrics.Descent.Ceil()
	if rect.Dy() < height {
		return
	}

	label := r.opts.MarkerText
	width := font.MeasureString(r.face, label).Ceil()
	if label == "" || width > rect.Dx() {
		label = fallbackMarker
		width = font.MeasureString(r.face, label).Ceil()
		if width > rect.Dx() {
			return
		}
	}

	x := rect.Min.X + (rect.Dx()-width)/2
	y := rect.Min.Y + (rect.Dy()-height)/2 + ascent

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(r.opts.Marker),
		Face: r.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(label)
}

// Decode reads a PNG, JPEG, GIF, BMP or TIFF image.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Encode writes img as PNG.
func Encode(w io.Writer, img image.Image) error {
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// RenderPNG renders matches onto src and returns the encoded PNG.
func (r *Renderer) RenderPNG(src image.Image, matches []matcher.PIIMatch) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, r.Render(src, matches)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseHexColor parses #RRGGBB or #RRGGBBAA.
func ParseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	if len(hex) == 6 {
		hex += "ff"
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.NRGBA{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}, nil
}
