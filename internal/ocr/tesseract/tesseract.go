// Package tesseract provides the local Tesseract OCR engine.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/raaihank/docmask/internal/ocr"
)

// TesseractOptions configures the local Tesseract engine.
type TesseractOptions struct {
	PageSegMode int
	// Preprocess converts the image to a sharpened, high-contrast grayscale
	// copy before recognition. The image is never resized, so word boxes stay
	// in the original coordinate space.
	Preprocess bool
}

// TesseractEngine implements ocr.Engine on top of the gosseract client.
type TesseractEngine struct {
	opts          TesseractOptions
	clientFactory func() *gosseract.Client
}

// NewTesseractEngine constructs a Tesseract-backed engine.
func NewTesseractEngine(opts TesseractOptions) *TesseractEngine {
	return &TesseractEngine{opts: opts, clientFactory: gosseract.NewClient}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) Close() error { return nil }

type recognition struct {
	raw *ocr.RawResult
	err error
}

// Recognize runs Tesseract on the image. gosseract calls cannot be
// interrupted, so on cancellation the call is left to finish in the
// background and its result discarded.
func (e *TesseractEngine) Recognize(ctx context.Context, image []byte, language string, progress ocr.ProgressFunc) (*ocr.RawResult, error) {
	if progress == nil {
		progress = func(ocr.ProgressEvent) {}
	}

	done := make(chan recognition, 1)
	go func() {
		raw, err := e.recognize(image, language, progress)
		done <- recognition{raw: raw, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.raw, r.err
	}
}

func (e *TesseractEngine) recognize(image []byte, language string, progress ocr.ProgressFunc) (*ocr.RawResult, error) {
	progress(ocr.ProgressEvent{Status: "loading image", Progress: 0})
	data := image
	if e.opts.Preprocess {
		enhanced, err := Preprocess(image)
		if err != nil {
			return nil, err
		}
		data = enhanced
	}
	progress(ocr.ProgressEvent{Status: "loading image", Progress: 1})

	c := e.clientFactory()
	defer c.Close()

	progress(ocr.ProgressEvent{Status: "initializing api", Progress: 0})
	if language != "" {
		if err := c.SetLanguage(language); err != nil {
			return nil, fmt.Errorf("set language %s: %w", language, err)
		}
	}
	if e.opts.PageSegMode > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(e.opts.PageSegMode)); err != nil {
			return nil, fmt.Errorf("set page segmentation mode: %w", err)
		}
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	progress(ocr.ProgressEvent{Status: "initializing api", Progress: 1})

	progress(ocr.ProgressEvent{Status: ocr.StatusRecognizingText, Progress: 0})
	text, err := c.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}
	progress(ocr.ProgressEvent{Status: ocr.StatusRecognizingText, Progress: 0.9})

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("word boxes: %w", err)
	}
	progress(ocr.ProgressEvent{Status: ocr.StatusRecognizingText, Progress: 1})

	words := make([]ocr.RawWord, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, ocr.RawWord{
			Text:       b.Word,
			Box:        ocr.BoundingBox{X0: b.Box.Min.X, Y0: b.Box.Min.Y, X1: b.Box.Max.X, Y1: b.Box.Max.Y},
			Confidence: b.Confidence,
		})
	}

	return &ocr.RawResult{Text: strings.TrimSpace(text), Words: words}, nil
}

// Preprocess returns a grayscale, contrast-boosted and sharpened PNG copy of
// the image with unchanged dimensions.
func Preprocess(image []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("decode for preprocessing: %w", err)
	}

	gray := imaging.Grayscale(img)
	contrast := imaging.AdjustContrast(gray, 10)
	sharp := imaging.Sharpen(contrast, 1.1)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, sharp, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode preprocessed image: %w", err)
	}
	return buf.Bytes(), nil
}

// NewEngine creates an engine by name.
func NewEngine(engineType string, opts TesseractOptions) (ocr.Engine, error) {
	switch engineType {
	case "tesseract", "":
		return NewTesseractEngine(opts), nil
	default:
		return nil, fmt.Errorf("unknown engine type: %s", engineType)
	}
}
