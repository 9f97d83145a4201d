// Command scan lists wireless EEG sensors visible to the USB receiver.
//
//	scan <port> [--dll path] [--timeout 10]
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pitaeeg/sensor-server/pkg/haru"
	"github.com/pitaeeg/sensor-server/pkg/haru/native"
)

func main() {
	var dll = flag.String("dll", "", "path to native library file or directory")
	var timeout = flag.Int("timeout", 10, "scan timeout in seconds")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *dll, *timeout); err != nil {
		fmt.Printf("[ERROR] %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] <port>\n", filepath.Base(os.Args[0]))
	fmt.Fprintf(os.Stderr, "  port  serial port (e.g. COM3, /dev/ttyUSB0)\n")
	flag.PrintDefaults()
}

func run(port, dll string, timeout int) error {
	transport, err := native.Load(dll)
	if err != nil {
		return err
	}

	session, err := haru.Open(transport, port)
	if err != nil {
		return err
	}
	defer session.Close()

	fmt.Printf("[INFO] Scanning on port %s (timeout: %ds)...\n", port, timeout)
	devices, err := session.ScanDevices(time.Duration(timeout) * time.Second)
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		fmt.Println("[INFO] No devices found")
		return nil
	}

	fmt.Printf("[OK] Found %d device(s):\n", len(devices))
	for _, dev := range devices {
		fmt.Printf("  %-24s id=%s\n", dev.DeviceName(), dev.DeviceID())
	}
	return nil
}
