package recorder

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// Row is one parsed line of an acquisition CSV file.
type Row struct {
	Timestamp time.Time
	ChZ       float64
	ChR       float64
	ChL       float64
	Bat       float64
	IsRepair  bool
}

// Read parses acquisition CSV rows from r. The header row is required.
func Read(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 6

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header[0] != "datetime" {
		return nil, fmt.Errorf("unexpected header: %v", header)
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		row, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(rows)+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadFile parses an acquisition CSV file.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()
	return Read(f)
}

func parseRow(rec []string) (Row, error) {
	ts, err := time.Parse("2006-01-02T15:04:05.000Z07:00", rec[0])
	if err != nil {
		return Row{}, fmt.Errorf("parse timestamp %q: %w", rec[0], err)
	}

	vals := make([]float64, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(rec[i+1], 64)
		if err != nil {
			return Row{}, fmt.Errorf("parse field %q: %w", rec[i+1], err)
		}
		vals[i] = v
	}

	repair, err := strconv.Atoi(rec[5])
	if err != nil {
		return Row{}, fmt.Errorf("parse repair flag %q: %w", rec[5], err)
	}

	return Row{
		Timestamp: ts,
		ChZ:       vals[0],
		ChR:       vals[1],
		ChL:       vals[2],
		Bat:       vals[3],
		IsRepair:  repair != 0,
	}, nil
}
