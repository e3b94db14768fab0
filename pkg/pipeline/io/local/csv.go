package local

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ReadColumnCSV reads a CSV file and returns the non-empty values of column.
//
// Rows before the header are skipped: exported connection lists carry a free-text
// preamble above the real header. The header match is case-insensitive.
func ReadColumnCSV(r io.Reader, column string) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	idx := -1
	for idx < 0 {
		header, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("missing required column %q", column)
		}
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		for i, col := range header {
			if strings.EqualFold(strings.TrimSpace(col), column) {
				idx = i
				break
			}
		}
	}

	values := []string{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if idx >= len(rec) {
			continue
		}
		if v := strings.TrimSpace(rec[idx]); v != "" {
			values = append(values, v)
		}
	}
	return values, nil
}
