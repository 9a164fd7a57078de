package report

import (
	"strings"

	"github.com/raaihank/docmask/internal/matcher"
)

// Finding is one row of a findings report
type Finding struct {
	Category    string  `csv:"category" parquet:"category" json:"category"`
	MatchedText string  `csv:"matched_text" parquet:"matched_text" json:"matched_text"`
	Confidence  float64 `csv:"confidence" parquet:"confidence" json:"confidence"`
	X0          int32   `csv:"x0" parquet:"x0" json:"x0"`
	Y0          int32   `csv:"y0" parquet:"y0" json:"y0"`
	X1          int32   `csv:"x1" parquet:"x1" json:"x1"`
	Y1          int32   `csv:"y1" parquet:"y1" json:"y1"`
}

var csvHeader = []string{"category", "matched_text", "confidence", "x0", "y0", "x1", "y1"}

// FileFormat represents supported report formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".parquet"):
		return FormatParquet
	case strings.HasSuffix(lower, ".json"), strings.HasSuffix(lower, ".jsonl"):
		return FormatJSON
	default:
		return FormatCSV
	}
}

// FromMatches converts matches into report rows, preserving order
func FromMatches(matches []matcher.PIIMatch) []Finding {
	rows := make([]Finding, len(matches))
	for i, m := range matches {
		rows[i] = Finding{
			Category:    m.Category,
			MatchedText: m.MatchedText,
			Confidence:  m.Confidence,
			X0:          int32(m.BoundingBox.X0),
			Y0:          int32(m.BoundingBox.Y0),
			X1:          int32(m.BoundingBox.X1),
			Y1:          int32(m.BoundingBox.Y1),
		}
	}
	return rows
}
