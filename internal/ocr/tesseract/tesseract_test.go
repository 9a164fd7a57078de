package tesseract

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os/exec"
	"strings"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/raaihank/docmask/internal/ocr"
)

func TestNewEngine(t *testing.T) {
	e, err := NewEngine("", TesseractOptions{})
	if err != nil || e.Name() != "tesseract" {
		t.Fatalf("expected tesseract default, got %v %v", e, err)
	}
	if _, err := NewEngine("cloud", TesseractOptions{}); err == nil {
		t.Fatal("expected error for unknown engine")
	}
}

func TestPreprocessKeepsDimensions(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 37, 19))
	draw.Draw(src, src.Bounds(), &image.Uniform{C: color.NRGBA{R: 200, G: 30, B: 30, A: 255}}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode: %v", err)
	}

	out, err := Preprocess(buf.Bytes())
	if err != nil {
		t.Fatalf("Preprocess() error = %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds() != src.Bounds() {
		t.Errorf("bounds changed: %v -> %v", src.Bounds(), img.Bounds())
	}

	if _, err := Preprocess([]byte("not an image")); err == nil {
		t.Error("expected decode error")
	}
}

func TestTesseractEngineRecognize(t *testing.T) {
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}

	img := image.NewRGBA(image.Rect(0, 0, 320, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 50),
	}
	d.DrawString("CALL 9876543210")

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}

	var statuses []string
	raw, err := NewTesseractEngine(TesseractOptions{}).Recognize(context.Background(), buf.Bytes(), "eng", func(ev ocr.ProgressEvent) {
		statuses = append(statuses, ev.Status)
	})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if !strings.Contains(raw.Text, "9876543210") {
		t.Logf("recognized %q", raw.Text)
	}
	if len(statuses) == 0 || statuses[len(statuses)-1] != ocr.StatusRecognizingText {
		t.Errorf("expected recognizing text as the last status, got %v", statuses)
	}
}

func TestTesseractEngineHonorsCancelledContext(t *testing.T) {
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewTesseractEngine(TesseractOptions{}).Recognize(ctx, []byte{}, "eng", nil); err == nil {
		t.Fatal("expected an error for a cancelled context or empty image")
	}
}
