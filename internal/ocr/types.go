package ocr

import "context"

// StatusRecognizingText tags the progress events that track recognition
// itself; other statuses (loading, initializing) are informational only.
const StatusRecognizingText = "recognizing text"

// BoundingBox is an axis-aligned rectangle in image pixel coordinates.
type BoundingBox struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

// Token is one unit of recognized text with its own geometry.
type Token struct {
	Text        string      `json:"text"`
	BoundingBox BoundingBox `json:"bbox"`
	Confidence  float64     `json:"confidence"` // 0-100
}

// Result is the normalized Token Index for one image.
type Result struct {
	Text   string  `json:"text"`
	Tokens []Token `json:"tokens"`
}

// RawWord is a word as reported by an engine, before validation.
type RawWord struct {
	Text       string
	Box        BoundingBox
	Confidence float64
}

// RawResult is engine output. Words may be nil when the engine produced no
// geometry.
type RawResult struct {
	Text  string
	Words []RawWord
}

// ProgressEvent is a single progress report from an engine.
type ProgressEvent struct {
	Status   string
	Progress float64 // 0.0-1.0
}

// ProgressFunc receives progress reports. Engines call it synchronously from
// whatever goroutine they run on; implementations must not block.
type ProgressFunc func(ProgressEvent)

// Engine recognizes text and word geometry in an encoded image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte, language string, progress ProgressFunc) (*RawResult, error)
	Close() error
}
