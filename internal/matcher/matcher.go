// Package matcher classifies PII in extracted text and attaches geometry from
// the OCR token index.
package matcher

import (
	"strings"

	"github.com/raaihank/docmask/internal/ocr"
	"github.com/raaihank/docmask/internal/patterns"
)

// PIIMatch is one classified occurrence. Confidence and BoundingBox are
// copied unmodified from the single token it was correlated with.
type PIIMatch struct {
	Category    string          `json:"category"`
	MatchedText string          `json:"matchedText"`
	Confidence  float64         `json:"confidence"`
	BoundingBox ocr.BoundingBox `json:"boundingBox"`
}

// Stats describes a Find run without exposing matched text.
type Stats struct {
	Occurrences int
	Dropped     int
	ByCategory  map[string]int
}

// Find scans text with every definition in order and correlates each
// occurrence with the first token whose text contains it or is contained by
// it, ignoring case. Uncorrelated occurrences are dropped. Output is ordered
// by category, then by position in text.
func Find(text string, tokens []ocr.Token, defs []patterns.Definition) []PIIMatch {
	matches, _ := FindWithStats(text, tokens, defs)
	return matches
}

// FindWithStats is Find plus counters for logging.
func FindWithStats(text string, tokens []ocr.Token, defs []patterns.Definition) ([]PIIMatch, Stats) {
	stats := Stats{ByCategory: make(map[string]int)}
	matches := make([]PIIMatch, 0)

	lowered := make([]string, len(tokens))
	for i, tok := range tokens {
		lowered[i] = strings.ToLower(tok.Text)
	}

	for _, def := range defs {
		for _, occurrence := range def.Rule.FindAllString(text, -1) {
			stats.Occurrences++

			idx := correlate(strings.ToLower(occurrence), lowered)
			if idx < 0 {
				stats.Dropped++
				continue
			}

			tok := tokens[idx]
			matches = append(matches, PIIMatch{
				Category:    def.Label,
				MatchedText: occurrence,
				Confidence:  tok.Confidence,
				BoundingBox: tok.BoundingBox,
			})
			stats.ByCategory[def.Label]++
		}
	}

	return matches, stats
}

func correlate(occurrence string, tokens []string) int {
	for i, tok := range tokens {
		if tok == "" {
			continue
		}
		if strings.Contains(tok, occurrence) || strings.Contains(occurrence, tok) {
			return i
		}
	}
	return -1
}
