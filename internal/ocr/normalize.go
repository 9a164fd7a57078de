package ocr

import (
	"math"
	"strings"
)

// Normalize converts engine output into a Token Index. A nil result or a
// missing word list yields an index with no tokens rather than an error.
// Blank words are dropped since an empty string is a substring of every
// match; inverted box corners are reordered and confidence is clamped to 0-100.
func Normalize(raw *RawResult) Result {
	if raw == nil {
		return Result{Tokens: []Token{}}
	}

	tokens := make([]Token, 0, len(raw.Words))
	for _, w := range raw.Words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		tokens = append(tokens, Token{
			Text:        text,
			BoundingBox: orderBox(w.Box),
			Confidence:  clampConfidence(w.Confidence),
		})
	}

	return Result{Text: raw.Text, Tokens: tokens}
}

func orderBox(b BoundingBox) BoundingBox {
	if b.X0 > b.X1 {
		b.X0, b.X1 = b.X1, b.X0
	}
	if b.Y0 > b.Y1 {
		b.Y0, b.Y1 = b.Y1, b.Y0
	}
	return b
}

func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}

// ProgressPercent maps a fractional progress value onto 0-100.
func ProgressPercent(p float64) int {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return 100
	}
	return int(math.Round(p * 100))
}
