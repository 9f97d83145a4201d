// Package recorder writes acquisition CSV files. One row per sample:
// an ISO-8601 timestamp with millisecond precision in the sensor's home
// timezone (UTC+9), the three channel values, battery level and repair
// flag. Timestamps start at the device time reported by the sensor at
// measurement start and advance by the fixed sample period.
package recorder

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pitaeeg/sensor-server/pkg/haru"
)

// Header is the CSV header row.
const Header = "datetime,ChZ,ChR,ChL,bat,isRepair"

// jst is the fixed UTC+9 offset used for all timestamps in the file.
var jst = time.FixedZone("UTC+9", 9*60*60)

// Writer streams samples to one CSV file.
type Writer struct {
	w      *bufio.Writer
	closer io.Closer
	nextMS int64
	count  int64
}

// NewWriter writes the CSV header to w and returns a Writer whose first
// row will carry the timestamp deviceTimeMS.
func NewWriter(w io.Writer, deviceTimeMS int64) (*Writer, error) {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Header + "\n"); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	closer, _ := w.(io.Closer)
	return &Writer{w: bw, closer: closer, nextMS: deviceTimeMS}, nil
}

// DefaultFileName derives the output file name from the device time, in
// the sensor's home timezone: YYYYMMDDhhmmss.csv.
func DefaultFileName(deviceTimeMS int64) string {
	return time.UnixMilli(deviceTimeMS).In(jst).Format("20060102150405") + ".csv"
}

// Create opens a CSV file under dir, creating the directory when needed.
// An empty name picks the default device-time-derived file name.
func Create(dir, name string, deviceTimeMS int64) (*Writer, string, error) {
	if name == "" {
		name = DefaultFileName(deviceTimeMS)
	}
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("create output file: %w", err)
	}
	w, err := NewWriter(f, deviceTimeMS)
	if err != nil {
		f.Close()
		return nil, "", err
	}
	return w, path, nil
}

// Write appends one sample row and advances the timestamp by the sample
// period.
func (w *Writer) Write(s haru.Sample) error {
	ts := time.UnixMilli(w.nextMS).In(jst)
	repair := 0
	if s.Repaired() {
		repair = 1
	}
	_, err := fmt.Fprintf(w.w, "%s,%.6f,%.6f,%.6f,%.3f,%d\n",
		ts.Format("2006-01-02T15:04:05.000Z07:00"),
		s.Data[0], s.Data[1], s.Data[2], s.BatLevel, repair,
	)
	if err != nil {
		return fmt.Errorf("write sample: %w", err)
	}
	w.nextMS += haru.SamplePeriodMS
	w.count++
	return nil
}

// Count returns the number of rows written so far.
func (w *Writer) Count() int64 {
	return w.count
}

// Close flushes buffered rows and closes the underlying file, if any.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
