package haru

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

type fakeRecord struct {
	status int
	sample Sample
}

// fakeTransport is a scripted in-memory Transport.
type fakeTransport struct {
	initHandle int
	initCalls  int
	gotPort    string
	gotTiming  TimesetParam
	termCalls  int

	startScanRC    int
	startScanCalls int
	stopScanCalls  int
	scanQueue      []DeviceInfo
	onScannedCount func()

	connectRC     int
	connectCalls  int
	connectedWith []DeviceInfo

	disconnectCalls int

	startMeasureRC    int
	startMeasureCalls int
	gotParam          SensorParam
	deviceTimeMS      int64
	stopMeasureCalls  int

	receiveQueue []fakeRecord

	batteryRC      int
	batteryMinutes float64
	versionRC      int
	version        float64
	stateRC        int
	devState       int
	devErr         int
	contactRC      int
	contact        ContactResistance
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{initHandle: 3, deviceTimeMS: 1700000000000}
}

func (f *fakeTransport) Init(port string, timing TimesetParam) int {
	f.initCalls++
	f.gotPort = port
	f.gotTiming = timing
	return f.initHandle
}

func (f *fakeTransport) Term(handle int) int { f.termCalls++; return 0 }

func (f *fakeTransport) StartScan(handle int) int {
	f.startScanCalls++
	return f.startScanRC
}

func (f *fakeTransport) StopScan(handle int) int { f.stopScanCalls++; return 0 }

func (f *fakeTransport) ScannedCount(handle int) int {
	if f.onScannedCount != nil {
		f.onScannedCount()
	}
	return len(f.scanQueue)
}

func (f *fakeTransport) ScannedDevice(handle int, out *DeviceInfo) int {
	if len(f.scanQueue) == 0 {
		return -1
	}
	*out = f.scanQueue[0]
	f.scanQueue = f.scanQueue[1:]
	return 0
}

func (f *fakeTransport) Connect(handle int, dev *DeviceInfo) int {
	f.connectCalls++
	f.connectedWith = append(f.connectedWith, *dev)
	return f.connectRC
}

func (f *fakeTransport) Disconnect(handle int) int { f.disconnectCalls++; return 0 }

func (f *fakeTransport) StartMeasure(handle int, param *SensorParam) (int, int64) {
	f.startMeasureCalls++
	f.gotParam = *param
	return f.startMeasureRC, f.deviceTimeMS
}

func (f *fakeTransport) StopMeasure(handle int) int { f.stopMeasureCalls++; return 0 }

func (f *fakeTransport) ReceivedCount(handle int) int { return len(f.receiveQueue) }

func (f *fakeTransport) Receive(handle int, out *Sample) int {
	if len(f.receiveQueue) == 0 {
		return -1
	}
	rec := f.receiveQueue[0]
	f.receiveQueue = f.receiveQueue[1:]
	if rec.status >= 0 {
		*out = rec.sample
	}
	return rec.status
}

func (f *fakeTransport) BatteryRemainingTime(handle int) (int, float64) {
	return f.batteryRC, f.batteryMinutes
}

func (f *fakeTransport) FirmwareVersion(handle int) (int, float64) {
	return f.versionRC, f.version
}

func (f *fakeTransport) StateAndError(handle int) (int, int, int) {
	return f.stateRC, f.devState, f.devErr
}

func (f *fakeTransport) ContactResistance(handle int) (int, ContactResistance) {
	return f.contactRC, f.contact
}

func device(name string, id byte) DeviceInfo {
	var d DeviceInfo
	d.ID[7] = id
	copy(d.Name[:], name)
	return d
}

func TestOpenInitFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.initHandle = -2

	_, err := Open(ft, "COM3")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrInitialization) {
		t.Fatalf("want ErrInitialization, got %v", err)
	}
	if !strings.Contains(err.Error(), "Init failed with error code: -2") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestOpenDefaultsAndOptions(t *testing.T) {
	ft := newFakeTransport()
	s, err := Open(ft, "COM3")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if ft.gotPort != "COM3" {
		t.Errorf("port = %q, want COM3", ft.gotPort)
	}
	if ft.gotTiming.ComTimeout != DefaultComTimeout || ft.gotTiming.ScanTimeout != DefaultScanTimeout {
		t.Errorf("timing = %+v, want defaults", ft.gotTiming)
	}
	if got := s.State(); got != StateInitialized {
		t.Errorf("state = %v, want INITIALIZED", got)
	}

	ft2 := newFakeTransport()
	s2, err := Open(ft2, "COM4", WithTiming(TimesetParam{ComTimeout: 500, ScanTimeout: 1500}))
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if ft2.gotTiming.ComTimeout != 500 || ft2.gotTiming.ScanTimeout != 1500 {
		t.Errorf("timing = %+v, want overrides", ft2.gotTiming)
	}
}

// State ordering: out-of-order operations fail with the matching typed
// error and leave the session state untouched.
func TestStateOrdering(t *testing.T) {
	ft := newFakeTransport()
	s, err := Open(ft, "COM3")
	if err != nil {
		t.Fatal(err)
	}

	// Measurement requires a connected device; no transport call is made.
	if _, err := s.StartMeasurement(nil); !errors.Is(err, ErrMeasurement) {
		t.Fatalf("want ErrMeasurement, got %v", err)
	} else if !strings.Contains(err.Error(), "No device connected") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if ft.startMeasureCalls != 0 {
		t.Errorf("startMeasure called %d times, want 0", ft.startMeasureCalls)
	}
	if got := s.State(); got != StateInitialized {
		t.Errorf("state = %v, want INITIALIZED", got)
	}

	// Receiving requires a running measurement.
	ft.scanQueue = []DeviceInfo{device("HARU2-001", 1)}
	if err := s.Connect("HARU2-001", time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReceiveData(); !errors.Is(err, ErrMeasurement) {
		t.Fatalf("want ErrMeasurement, got %v", err)
	} else if !strings.Contains(err.Error(), "Measurement not started") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if got := s.State(); got != StateConnected {
		t.Errorf("state = %v, want CONNECTED", got)
	}

	// Connecting during a measurement is rejected.
	if _, err := s.StartMeasurement(nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Connect("HARU2-001", time.Second); !errors.Is(err, ErrConnection) {
		t.Fatalf("want ErrConnection, got %v", err)
	}
	if got := s.State(); got != StateMeasuring {
		t.Errorf("state = %v, want MEASURING", got)
	}

	// Everything fails with "Sensor not initialized" after close.
	s.Close()
	for name, call := range map[string]func() error{
		"ScanDevices": func() error { _, err := s.ScanDevices(time.Second); return err },
		"Connect":     func() error { return s.Connect("HARU2-001", time.Second) },
		"StartMeasurement": func() error {
			_, err := s.StartMeasurement(nil)
			return err
		},
		"ReceiveData": func() error { _, err := s.ReceiveData(); return err },
		"Battery":     func() error { _, err := s.BatteryRemainingTime(); return err },
	} {
		err := call()
		if !errors.Is(err, ErrSensor) {
			t.Errorf("%s after close: want sensor error, got %v", name, err)
			continue
		}
		if !strings.Contains(err.Error(), "Sensor not initialized") {
			t.Errorf("%s after close: unexpected message %q", name, err.Error())
		}
	}
}

// Close is idempotent and never fails observably.
func TestCloseIdempotent(t *testing.T) {
	ft := newFakeTransport()
	s, err := Open(ft, "COM3")
	if err != nil {
		t.Fatal(err)
	}
	ft.scanQueue = []DeviceInfo{device("HARU2-001", 1)}
	if err := s.Connect("HARU2-001", time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := s.StartMeasurement(nil); err != nil {
		t.Fatal(err)
	}

	s.Close()
	s.Close()

	if ft.stopMeasureCalls != 1 {
		t.Errorf("stopMeasure calls = %d, want 1", ft.stopMeasureCalls)
	}
	if ft.disconnectCalls != 1 {
		t.Errorf("disconnect calls = %d, want 1", ft.disconnectCalls)
	}
	if ft.termCalls != 1 {
		t.Errorf("term calls = %d, want 1", ft.termCalls)
	}
	if s.IsConnected() || s.IsMeasuring() {
		t.Error("IsConnected/IsMeasuring must be false after close")
	}
	if got := s.State(); got != StateClosed {
		t.Errorf("state = %v, want CLOSED", got)
	}
}

// Filtered discovery connects to exactly the named device.
func TestConnectFilterCorrectness(t *testing.T) {
	ft := newFakeTransport()
	s, err := Open(ft, "COM3")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ft.scanQueue = []DeviceInfo{device("HARU2-001", 1), device("HARU2-002", 2)}

	if err := s.Connect("HARU2-002", 10*time.Second); err != nil {
		t.Fatal(err)
	}
	if ft.connectCalls != 1 {
		t.Fatalf("connect calls = %d, want 1", ft.connectCalls)
	}
	if got := ft.connectedWith[0].DeviceName(); got != "HARU2-002" {
		t.Errorf("connected to %q, want HARU2-002", got)
	}
	if ft.connectedWith[0].ID[7] != 2 {
		t.Errorf("connected device id = %v, want 02", ft.connectedWith[0].DeviceID())
	}
	dev, ok := s.ConnectedDevice()
	if !ok || dev.DeviceName() != "HARU2-002" {
		t.Errorf("ConnectedDevice = %v/%v, want HARU2-002", dev, ok)
	}
}

// Filtered discovery fails with "not found" at the timeout and issues
// stop-scan exactly once.
func TestConnectTimeout(t *testing.T) {
	ft := newFakeTransport()
	mock := clock.NewMock()
	// The transport never reports a matching device; each poll advances
	// the simulated clock past the deadline.
	ft.onScannedCount = func() { mock.Add(11 * time.Second) }

	s, err := Open(ft, "COM3", WithClock(mock))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	err = s.Connect("HARU2-009", 10*time.Second)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("want ErrConnection, got %v", err)
	}
	if !strings.Contains(err.Error(), "Device 'HARU2-009' not found") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if ft.stopScanCalls != 1 {
		t.Errorf("stopScan calls = %d, want 1", ft.stopScanCalls)
	}
	if ft.connectCalls != 0 {
		t.Errorf("connect calls = %d, want 0", ft.connectCalls)
	}
	if got := s.State(); got != StateInitialized {
		t.Errorf("state = %v, want INITIALIZED", got)
	}
}

func TestConnectRejected(t *testing.T) {
	ft := newFakeTransport()
	ft.connectRC = -5
	s, err := Open(ft, "COM3")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ft.scanQueue = []DeviceInfo{device("HARU2-001", 1)}
	err = s.Connect("HARU2-001", time.Second)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("want ErrConnection, got %v", err)
	}
	if !strings.Contains(err.Error(), "Failed to connect to device 'HARU2-001'") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if s.IsConnected() {
		t.Error("session must not report connected after a rejected connect")
	}
}

func TestScanStartFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.startScanRC = -1
	s, err := Open(ft, "COM3")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.ScanDevices(time.Second); !errors.Is(err, ErrScan) {
		t.Fatalf("want ErrScan, got %v", err)
	}
	if err := s.Connect("HARU2-001", time.Second); !errors.Is(err, ErrConnection) {
		t.Fatalf("want ErrConnection, got %v", err)
	}
}

// Unfiltered discovery returns the first non-empty batch and always stops
// the scan.
func TestScanDevicesFirstBatch(t *testing.T) {
	ft := newFakeTransport()
	s, err := Open(ft, "COM3")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ft.scanQueue = []DeviceInfo{device("HARU2-001", 1), device("HARU2-002", 2)}

	devices, err := s.ScanDevices(10 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}
	if devices[0].DeviceName() != "HARU2-001" || devices[1].DeviceName() != "HARU2-002" {
		t.Errorf("unexpected device order: %v", devices)
	}
	if ft.stopScanCalls != 1 {
		t.Errorf("stopScan calls = %d, want 1", ft.stopScanCalls)
	}
}

func TestScanDevicesTimeoutEmpty(t *testing.T) {
	ft := newFakeTransport()
	mock := clock.NewMock()
	ft.onScannedCount = func() { mock.Add(11 * time.Second) }

	s, err := Open(ft, "COM3", WithClock(mock))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	devices, err := s.ScanDevices(10 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 0 {
		t.Fatalf("got %d devices, want 0", len(devices))
	}
	if ft.stopScanCalls != 1 {
		t.Errorf("stopScan calls = %d, want 1", ft.stopScanCalls)
	}
}

func TestStartMeasurementChannelMask(t *testing.T) {
	ft := newFakeTransport()
	s, err := Open(ft, "COM3")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ft.scanQueue = []DeviceInfo{device("HARU2-001", 1)}
	if err := s.Connect("HARU2-001", time.Second); err != nil {
		t.Fatal(err)
	}

	deviceTime, err := s.StartMeasurement(nil)
	if err != nil {
		t.Fatal(err)
	}
	if deviceTime != 1700000000000 {
		t.Errorf("deviceTime = %d, want 1700000000000", deviceTime)
	}
	for i, u := range ft.gotParam.UseCh {
		if u != 1 {
			t.Errorf("channel %d disabled in default mask", i)
		}
	}
	if got := s.State(); got != StateMeasuring {
		t.Errorf("state = %v, want MEASURING", got)
	}

	s.StopMeasurement()
	if got := s.State(); got != StateConnected {
		t.Errorf("state after stop = %v, want CONNECTED", got)
	}

	// Subset selection.
	if _, err := s.StartMeasurement([]int{0, 2}); err != nil {
		t.Fatal(err)
	}
	want := [MaxChannels]byte{1, 0, 1, 0, 0, 0, 0, 0}
	if ft.gotParam.UseCh != want {
		t.Errorf("mask = %v, want %v", ft.gotParam.UseCh, want)
	}
}

func TestStartMeasurementRejected(t *testing.T) {
	ft := newFakeTransport()
	ft.startMeasureRC = 4
	s, err := Open(ft, "COM3")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ft.scanQueue = []DeviceInfo{device("HARU2-001", 1)}
	if err := s.Connect("HARU2-001", time.Second); err != nil {
		t.Fatal(err)
	}
	_, err = s.StartMeasurement(nil)
	if !errors.Is(err, ErrMeasurement) {
		t.Fatalf("want ErrMeasurement, got %v", err)
	}
	if !strings.Contains(err.Error(), "startMeasure failed with error code: 4") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	var serr *SensorError
	if !errors.As(err, &serr) || serr.Code != 4 {
		t.Errorf("want driver code 4 on error, got %+v", serr)
	}
	if got := s.State(); got != StateConnected {
		t.Errorf("state = %v, want CONNECTED", got)
	}
}

// Stream drains the reported count one record at a time and silently
// skips records the driver flags with a negative status.
func TestStreamDrainAndSkip(t *testing.T) {
	ft := newFakeTransport()
	s, err := Open(ft, "COM3")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ft.scanQueue = []DeviceInfo{device("HARU2-001", 1)}
	if err := s.Connect("HARU2-001", time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := s.StartMeasurement(nil); err != nil {
		t.Fatal(err)
	}

	first := Sample{Data: [Haru2ChannelCount]float64{1, 2, 3}, BatLevel: 90}
	third := Sample{Data: [Haru2ChannelCount]float64{4, 5, 6}, BatLevel: 89, IsRepair: 1}
	ft.receiveQueue = []fakeRecord{
		{status: 0, sample: first},
		{status: -1},
		{status: 0, sample: third},
	}

	stream, err := s.ReceiveData()
	if err != nil {
		t.Fatal(err)
	}

	got1, ok := stream.Next()
	if !ok || got1 != first {
		t.Fatalf("first sample = %v/%v, want %v", got1, ok, first)
	}
	got2, ok := stream.Next()
	if !ok || got2 != third {
		t.Fatalf("second sample = %v/%v, want %v", got2, ok, third)
	}

	// End of the stream is observed at the next poll after stop.
	s.StopMeasurement()
	if _, ok := stream.Next(); ok {
		t.Fatal("stream must end once the session stops measuring")
	}
}

func TestAuxiliaryQueries(t *testing.T) {
	ft := newFakeTransport()
	ft.batteryMinutes = 123.5
	ft.version = 2.1
	ft.devState = 3
	ft.devErr = 0
	ft.contact = ContactResistance{ChZ: 1000, ChR: 2000, ChL: 3000}

	s, err := Open(ft, "COM3")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if min, err := s.BatteryRemainingTime(); err != nil || min != 123.5 {
		t.Errorf("battery = %v/%v", min, err)
	}
	if v, err := s.Version(); err != nil || v != 2.1 {
		t.Errorf("version = %v/%v", v, err)
	}
	if st, code, err := s.SensorState(); err != nil || st != 3 || code != 0 {
		t.Errorf("state = %v/%v/%v", st, code, err)
	}
	if cr, err := s.GetContactResistance(); err != nil || cr.ChR != 2000 {
		t.Errorf("contact = %v/%v", cr, err)
	}

	ft.batteryRC = -1
	if _, err := s.BatteryRemainingTime(); !errors.Is(err, ErrMeasurement) {
		t.Errorf("want ErrMeasurement on battery failure, got %v", err)
	}
	ft.versionRC = 2
	if _, err := s.Version(); err == nil || !strings.Contains(err.Error(), "getVersion failed with error code: 2") {
		t.Errorf("unexpected version error: %v", err)
	}
}

// Full lifecycle: open, connect, measure, stream one record, stop, close,
// with exactly one transport call per operation.
func TestLifecycleScenario(t *testing.T) {
	ft := newFakeTransport()
	s, err := Open(ft, "COM3")
	if err != nil {
		t.Fatal(err)
	}

	ft.scanQueue = []DeviceInfo{device("HARU2-001", 1)}
	if err := s.Connect("HARU2-001", 10*time.Second); err != nil {
		t.Fatal(err)
	}

	deviceTime, err := s.StartMeasurement(nil)
	if err != nil {
		t.Fatal(err)
	}
	if deviceTime != 1700000000000 {
		t.Fatalf("deviceTime = %d", deviceTime)
	}

	want := Sample{Data: [Haru2ChannelCount]float64{1.23, 4.56, 7.89}, BatLevel: 95.5}
	ft.receiveQueue = []fakeRecord{{status: 0, sample: want}}

	stream, err := s.ReceiveData()
	if err != nil {
		t.Fatal(err)
	}
	got, ok := stream.Next()
	if !ok || got != want {
		t.Fatalf("sample = %v/%v, want %v", got, ok, want)
	}
	if got.Repaired() {
		t.Error("sample must not be flagged repaired")
	}

	s.StopMeasurement()
	s.Close()

	if got := s.State(); got != StateClosed {
		t.Errorf("final state = %v, want CLOSED", got)
	}
	for name, calls := range map[string]int{
		"init":         ft.initCalls,
		"startScan":    ft.startScanCalls,
		"stopScan":     ft.stopScanCalls,
		"connect":      ft.connectCalls,
		"startMeasure": ft.startMeasureCalls,
		"stopMeasure":  ft.stopMeasureCalls,
		"disconnect":   ft.disconnectCalls,
		"term":         ft.termCalls,
	} {
		if calls != 1 {
			t.Errorf("%s called %d times, want 1", name, calls)
		}
	}
}

func TestDisconnect(t *testing.T) {
	ft := newFakeTransport()
	s, err := Open(ft, "COM3")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// No-op when nothing is connected.
	s.Disconnect()
	if ft.disconnectCalls != 0 {
		t.Errorf("disconnect calls = %d, want 0", ft.disconnectCalls)
	}

	ft.scanQueue = []DeviceInfo{device("HARU2-001", 1)}
	if err := s.Connect("HARU2-001", time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := s.StartMeasurement(nil); err != nil {
		t.Fatal(err)
	}

	s.Disconnect()
	if ft.stopMeasureCalls != 1 || ft.disconnectCalls != 1 {
		t.Errorf("stopMeasure/disconnect = %d/%d, want 1/1", ft.stopMeasureCalls, ft.disconnectCalls)
	}
	if got := s.State(); got != StateInitialized {
		t.Errorf("state = %v, want INITIALIZED", got)
	}
}
