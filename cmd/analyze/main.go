// Command analyze records a fixed-duration measurement, reports sensor
// health (battery, firmware, contact resistance), then band-limits the
// traces to the EEG band (0.5-40 Hz) and prints per-channel statistics.
// The raw recording and the filtered traces are both written as CSV.
//
//	analyze <port> <sensor> [--dll path] [--out file] [--scan-timeout 10] [--duration 30]
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pitaeeg/sensor-server/internal/dsp"
	"github.com/pitaeeg/sensor-server/internal/recorder"
	"github.com/pitaeeg/sensor-server/pkg/haru"
	"github.com/pitaeeg/sensor-server/pkg/haru/native"
)

// sampleRate follows from the 4 ms sample period.
const sampleRate = 250.0

// EEG band edges and FIR tap counts for the offline filter.
const (
	highpassHz   = 0.5
	lowpassHz    = 40.0
	highpassTaps = 251
	lowpassTaps  = 127
)

func main() {
	var dll = flag.String("dll", "", "path to native library file or directory")
	var out = flag.String("out", "", "output file name (defaults to YYYYMMDDhhmmss.csv)")
	var scanTimeout = flag.Int("scan-timeout", 10, "device scan timeout in seconds")
	var duration = flag.Float64("duration", 30, "measurement duration in seconds")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 2 {
		usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), flag.Arg(1), *dll, *out, *scanTimeout, *duration); err != nil {
		fmt.Printf("[ERROR] %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] <port> <sensor>\n", filepath.Base(os.Args[0]))
	fmt.Fprintf(os.Stderr, "  port    serial port (e.g. COM3, /dev/ttyUSB0)\n")
	fmt.Fprintf(os.Stderr, "  sensor  sensor name to connect to (e.g. HARU2-001)\n")
	flag.PrintDefaults()
}

func run(port, sensorName, dll, out string, scanTimeout int, duration float64) error {
	fmt.Printf("[INFO] Initializing sensor on port %s...\n", port)

	transport, err := native.Load(dll)
	if err != nil {
		return err
	}

	session, err := haru.Open(transport, port)
	if err != nil {
		return err
	}
	defer session.Close()
	fmt.Println("[OK] Sensor initialized")

	fmt.Printf("[INFO] Scanning for device '%s' (timeout: %ds)...\n", sensorName, scanTimeout)
	if err := session.Connect(sensorName, time.Duration(scanTimeout)*time.Second); err != nil {
		return err
	}
	fmt.Printf("[OK] Connected to '%s'\n", sensorName)

	if err := reportHealth(session); err != nil {
		return err
	}

	path, err := record(session, out, duration)
	if err != nil {
		return err
	}
	fmt.Printf("[DONE] Data saved to %s\n", path)

	return analyze(path)
}

// reportHealth prints the auxiliary sensor readings.
func reportHealth(session *haru.Session) error {
	minutes, err := session.BatteryRemainingTime()
	if err != nil {
		return err
	}
	fmt.Printf("[INFO] Battery remaining time: %.1f [min]\n", minutes)

	version, err := session.Version()
	if err != nil {
		return err
	}
	fmt.Printf("[INFO] Sensor version: %.3f\n", version)

	state, errCode, err := session.SensorState()
	if err != nil {
		return err
	}
	fmt.Printf("[INFO] Sensor state: %d, error: %d\n", state, errCode)

	res, err := session.GetContactResistance()
	if err != nil {
		return err
	}
	fmt.Printf("[INFO] Contact resistance: ChZ=%.2f, ChR=%.2f, ChL=%.2f\n", res.ChZ, res.ChR, res.ChL)
	return nil
}

// record runs one bounded measurement and returns the CSV path.
func record(session *haru.Session, out string, duration float64) (string, error) {
	deviceTimeMS, err := session.StartMeasurement(nil)
	if err != nil {
		return "", err
	}
	fmt.Printf("[OK] Measurement started (device time: %d ms)\n", deviceTimeMS)

	dir, name := ".", ""
	if out != "" {
		dir, name = filepath.Dir(out), filepath.Base(out)
	}
	w, path, err := recorder.Create(dir, name, deviceTimeMS)
	if err != nil {
		return "", err
	}
	fmt.Printf("[INFO] Writing to: %s\n", path)

	stream, err := session.ReceiveData()
	if err != nil {
		w.Close()
		return "", err
	}

	go func() {
		time.Sleep(time.Duration(duration * float64(time.Second)))
		fmt.Println("\n[INFO] Measurement duration reached")
		session.StopMeasurement()
	}()

	fmt.Printf("[INFO] Receiving data for %.0f sec ...\n", duration)
	for {
		sample, ok := stream.Next()
		if !ok {
			break
		}
		if err := w.Write(sample); err != nil {
			w.Close()
			return "", err
		}
	}

	session.StopMeasurement()
	if err := w.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// analyze band-limits the recorded traces, writes them next to the raw
// file and prints per-channel statistics.
func analyze(path string) error {
	rows, err := recorder.ReadFile(path)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("[WARN] No data collected; nothing to analyze.")
		return nil
	}

	channels := [3][]float64{}
	for _, row := range rows {
		channels[0] = append(channels[0], row.ChZ)
		channels[1] = append(channels[1], row.ChR)
		channels[2] = append(channels[2], row.ChL)
	}

	labels := []string{"ChZ", "ChR", "ChL"}
	filtered := [3][]float64{}

	fmt.Printf("[INFO] Filtered EEG (%.1f-%.0f Hz), %d samples:\n", highpassHz, lowpassHz, len(rows))
	for ch := range channels {
		filtered[ch] = dsp.Bandpass(channels[ch], highpassHz, lowpassHz, sampleRate, highpassTaps, lowpassTaps)
		stats := dsp.Summarize(filtered[ch])
		fmt.Printf("  %s: mean=%.3f rms=%.3f p2p=%.3f\n", labels[ch], stats.Mean, stats.RMS, stats.PeakToPeak)
	}

	outPath := filteredPath(path)
	if err := writeFiltered(outPath, rows, filtered); err != nil {
		return err
	}
	fmt.Printf("[DONE] Filtered traces saved to %s\n", outPath)
	return nil
}

func filteredPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_filtered" + ext
}

func writeFiltered(path string, rows []recorder.Row, filtered [3][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create filtered file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"datetime", "ChZ", "ChR", "ChL"}); err != nil {
		return err
	}
	for i, row := range rows {
		rec := []string{row.Timestamp.Format("2006-01-02T15:04:05.000Z07:00")}
		for ch := 0; ch < 3; ch++ {
			rec = append(rec, strconv.FormatFloat(filtered[ch][i], 'f', 6, 64))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
