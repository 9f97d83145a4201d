// Command acquire records one measurement from a wireless EEG sensor to
// a CSV file.
//
//	acquire <port> <sensor> [--dll path] [--out file] [--scan-timeout 10] [--duration 0]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pitaeeg/sensor-server/internal/recorder"
	"github.com/pitaeeg/sensor-server/pkg/haru"
	"github.com/pitaeeg/sensor-server/pkg/haru/native"
)

func main() {
	var dll = flag.String("dll", "", "path to native library file or directory")
	var out = flag.String("out", "", "output file name (defaults to YYYYMMDDhhmmss.csv)")
	var scanTimeout = flag.Int("scan-timeout", 10, "device scan timeout in seconds")
	var duration = flag.Float64("duration", 0, "measurement duration in seconds (0 = until interrupted)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 2 {
		usage()
		os.Exit(2)
	}
	port := flag.Arg(0)
	sensorName := flag.Arg(1)

	if err := run(port, sensorName, *dll, *out, *scanTimeout, *duration); err != nil {
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

	deviceTimeMS, err := session.StartMeasurement(nil)
	if err != nil {
		return err
	}
	fmt.Printf("[OK] Measurement started (device time: %s)\n",
		time.UnixMilli(deviceTimeMS).In(time.FixedZone("UTC+9", 9*60*60)).Format(time.RFC3339))

	dir, name := ".", ""
	if out != "" {
		dir, name = filepath.Dir(out), filepath.Base(out)
	}
	w, path, err := recorder.Create(dir, name, deviceTimeMS)
	if err != nil {
		return err
	}
	if abs, aerr := filepath.Abs(path); aerr == nil {
		path = abs
	}
	fmt.Printf("[INFO] Writing to: %s\n", path)

	stream, err := session.ReceiveData()
	if err != nil {
		w.Close()
		return err
	}

	// An interrupt or the elapsed duration flips the session out of the
	// measuring state, which ends the stream on its next poll.
	interrupted := watchStop(session, duration)

	fmt.Println("[INFO] Receiving data... press Ctrl-C to stop.")
	for {
		sample, ok := stream.Next()
		if !ok {
			break
		}
		if err := w.Write(sample); err != nil {
			w.Close()
			return err
		}
	}

	session.StopMeasurement()
	if err := w.Close(); err != nil {
		return err
	}

	select {
	case <-interrupted:
		fmt.Println("\n[INFO] Interrupted by user")
	default:
	}

	fmt.Printf("[DONE] Data saved to %s (%d samples)\n", path, w.Count())
	return nil
}

// watchStop stops the measurement on SIGINT/SIGTERM or after duration
// seconds (when positive). The returned channel is closed when the stop
// was user-initiated.
func watchStop(session *haru.Session, duration float64) <-chan struct{} {
	interrupted := make(chan struct{})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var timeout <-chan time.Time
	if duration > 0 {
		timeout = time.After(time.Duration(duration * float64(time.Second)))
	}

	go func() {
		select {
		case <-sigChan:
			close(interrupted)
		case <-timeout:
			fmt.Println("\n[INFO] Measurement duration reached")
		}
		session.StopMeasurement()
	}()

	return interrupted
}
