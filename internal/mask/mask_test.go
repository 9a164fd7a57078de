package mask

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/raaihank/docmask/internal/matcher"
	"github.com/raaihank/docmask/internal/ocr"
)

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 3), G: uint8(y * 5), B: uint8(x + y), A: 255})
		}
	}
	return img
}

func box(x0, y0, x1, y1 int) matcher.PIIMatch {
	return matcher.PIIMatch{Category: "Email Address", BoundingBox: ocr.BoundingBox{X0: x0, Y0: y0, X1: x1, Y1: y1}}
}

func TestRenderWithoutMatchesEqualsReencode(t *testing.T) {
	src := testImage(64, 48)
	r := NewRenderer(DefaultOptions())

	out, err := r.RenderPNG(src, nil)
	if err != nil {
		t.Fatalf("RenderPNG() error = %v", err)
	}

	var direct bytes.Buffer
	if err := Encode(&direct, src); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !bytes.Equal(out, direct.Bytes()) {
		t.Fatal("expected byte-identical output to a direct re-encode")
	}

	decoded, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bounds() != src.Bounds() {
		t.Errorf("bounds changed: %v", decoded.Bounds())
	}
}

func TestRenderFillsBoxAndLeavesSourceUntouched(t *testing.T) {
	src := testImage(120, 60)
	before := append([]uint8(nil), src.Pix...)

	out := NewRenderer(DefaultOptions()).Render(src, []matcher.PIIMatch{box(10, 10, 110, 40)})

	if !bytes.Equal(before, src.Pix) {
		t.Fatal("source image was mutated")
	}
	if out.Bounds() != src.Bounds() {
		t.Fatalf("expected %v bounds, got %v", src.Bounds(), out.Bounds())
	}
	// corner of the box is fill, outside stays original
	if got := out.NRGBAAt(10, 10); got != (color.NRGBA{A: 255}) {
		t.Errorf("expected fill at box corner, got %v", got)
	}
	if got := out.NRGBAAt(5, 5); got != src.NRGBAAt(5, 5) {
		t.Errorf("pixel outside box changed: %v", got)
	}
	if got := out.NRGBAAt(110, 40); got != src.NRGBAAt(110, 40) {
		t.Errorf("box must be exclusive of its max corner, got %v", got)
	}

	// the label is drawn somewhere inside the box
	marker := false
	for y := 10; y < 40 && !marker; y++ {
		for x := 10; x < 110; x++ {
			if out.NRGBAAt(x, y).R > 128 {
				marker = true
				break
			}
		}
	}
	if !marker {
		t.Error("expected marker glyph pixels inside the box")
	}
}

func TestRenderOverlapIsLastWriterWins(t *testing.T) {
	src := testImage(100, 60)
	opts := DefaultOptions()
	opts.Fill = color.NRGBA{R: 40, G: 40, B: 40, A: 255}
	r := NewRenderer(opts)

	first := box(0, 0, 70, 40)
	last := box(30, 10, 100, 60)

	both := r.Render(src, []matcher.PIIMatch{first, last})
	onlyLast := r.Render(src, []matcher.PIIMatch{last})

	overlap := image.Rect(30, 10, 70, 40)
	for y := overlap.Min.Y; y < overlap.Max.Y; y++ {
		for x := overlap.Min.X; x < overlap.Max.X; x++ {
			if both.NRGBAAt(x, y) != onlyLast.NRGBAAt(x, y) {
				t.Fatalf("pixel (%d,%d) = %v, want %v from last match", x, y, both.NRGBAAt(x, y), onlyLast.NRGBAAt(x, y))
			}
		}
	}
}

func TestRenderClipsAndSkipsDegenerateBoxes(t *testing.T) {
	src := testImage(40, 30)
	r := NewRenderer(DefaultOptions())

	out := r.Render(src, []matcher.PIIMatch{
		box(-20, -20, 5, 5),
		box(100, 100, 200, 200),
		box(10, 10, 10, 20),
	})

	if got := out.NRGBAAt(0, 0); got != (color.NRGBA{A: 255}) {
		t.Errorf("expected clipped fill at origin, got %v", got)
	}
	if got := out.NRGBAAt(10, 15); got != src.NRGBAAt(10, 15) {
		t.Errorf("zero-width box should draw nothing, got %v", got)
	}
}

func TestRenderSmallBoxHasNoMarker(t *testing.T) {
	src := testImage(40, 30)
	out := NewRenderer(DefaultOptions()).Render(src, []matcher.PIIMatch{box(2, 2, 12, 8)})

	for y := 2; y < 8; y++ {
		for x := 2; x < 12; x++ {
			if got := out.NRGBAAt(x, y); got != (color.NRGBA{A: 255}) {
				t.Fatalf("expected plain fill at (%d,%d), got %v", x, y, got)
			}
		}
	}
}

func TestDecode(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(8, 8)); err != nil {
		t.Fatal(err)
	}
	img, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if img.Bounds().Dx() != 8 {
		t.Errorf("unexpected bounds %v", img.Bounds())
	}

	if _, err := Decode(bytes.NewReader([]byte("GIF89a-not-really"))); err == nil {
		t.Error("expected error for corrupt image")
	}
}

func TestParseHexColor(t *testing.T) {
	testCases := []struct {
		in   string
		want color.NRGBA
		ok   bool
	}{
		{"#000000", color.NRGBA{A: 255}, true},
		{"#FF8000", color.NRGBA{R: 255, G: 128, A: 255}, true},
		{"#ff800080", color.NRGBA{R: 255, G: 128, A: 128}, true},
		{"ff8000", color.NRGBA{R: 255, G: 128, A: 255}, true},
		{"#fff", color.NRGBA{}, false},
		{"#gggggg", color.NRGBA{}, false},
	}
	for _, tc := range testCases {
		got, err := ParseHexColor(tc.in)
		if (err == nil) != tc.ok {
			t.Errorf("ParseHexColor(%q) error = %v", tc.in, err)
			continue
		}
		if tc.ok && got != tc.want {
			t.Errorf("ParseHexColor(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
