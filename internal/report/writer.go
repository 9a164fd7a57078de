// Package report exports detected PII findings as CSV, Parquet or JSON lines.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/segmentio/parquet-go"
)

// WriteFile writes rows to path in the format implied by its extension
func WriteFile(path string, rows []Finding) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}

	switch DetectFileFormat(path) {
	case FormatParquet:
		err = WriteParquet(file, rows)
	case FormatJSON:
		err = WriteJSON(file, rows)
	default:
		err = WriteCSV(file, rows)
	}

	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close report file: %w", closeErr)
	}
	return err
}

// WriteCSV writes a header row followed by one row per finding
func WriteCSV(w io.Writer, rows []Finding) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			r.Category,
			r.MatchedText,
			strconv.FormatFloat(r.Confidence, 'f', -1, 64),
			strconv.Itoa(int(r.X0)),
			strconv.Itoa(int(r.Y0)),
			strconv.Itoa(int(r.X1)),
			strconv.Itoa(int(r.Y1)),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// WriteParquet writes findings as a single Parquet row group
func WriteParquet(w io.Writer, rows []Finding) error {
	writer := parquet.NewGenericWriter[Finding](w)

	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write Parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close Parquet writer: %w", err)
	}
	return nil
}

// WriteJSON writes one JSON object per line
func WriteJSON(w io.Writer, rows []Finding) error {
	encoder := json.NewEncoder(w)
	for _, r := range rows {
		if err := encoder.Encode(r); err != nil {
			return fmt.Errorf("failed to write JSON record: %w", err)
		}
	}
	return nil
}
