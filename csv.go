package ghostbuses

import (
	"bytes"
	"fmt"

	"github.com/gocarina/gocsv"
)

// Renders rows as CSV with a header line taken from their csv tags.
func MarshalCSV[T any](rows []T) ([]byte, error) {
	if rows == nil {
		rows = []T{}
	}
	buf, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return nil, fmt.Errorf("marshaling csv: %w", err)
	}
	return buf, nil
}

// Reads CSV rows written by MarshalCSV. An empty input holds no rows.
func UnmarshalCSV[T any](data []byte) ([]T, error) {
	rows := []T{}
	if len(bytes.TrimSpace(data)) == 0 {
		return rows, nil
	}
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling csv: %w", err)
	}
	return rows, nil
}
