package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// ReadCSV reads a CSV file whose first record is the header. Fields equal to
// nullToken become nil; every other value stays a string and is converted by
// the server according to the column type.
func ReadCSV(r io.Reader, nullToken string) (*Batch, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading csv: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	cr.FieldsPerRecord = len(header)

	var rows [][]any
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		row := make([]any, len(rec))
		for i, v := range rec {
			if v == nullToken {
				row[i] = nil
				continue
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return New(header, rows)
}

// ReadCSVFile is ReadCSV over a file on disk.
func ReadCSVFile(path, nullToken string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f, nullToken)
}
