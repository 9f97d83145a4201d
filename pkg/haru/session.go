package haru

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Default driver timeouts, milliseconds.
const (
	DefaultComTimeout  = 2000
	DefaultScanTimeout = 5000
)

// scanPollInterval is the cadence at which a running scan is polled for
// newly seen devices. Coarse on purpose: discovery is not latency-bound.
const scanPollInterval = 100 * time.Millisecond

// Session owns one driver handle and enforces the legal operation order
// Initialized -> Connected -> Measuring. The handle is never exposed;
// Close is the only teardown path and never fails observably.
//
// A Session supports a single caller with one in-flight operation at a
// time. The one concession to concurrency is that StopMeasurement may be
// called from another goroutine to cancel a running Stream cooperatively.
type Session struct {
	mu        sync.Mutex
	transport Transport
	clock     clock.Clock
	port      string
	timing    TimesetParam
	handle    int
	state     SessionState
	device    *DeviceInfo
}

// Option configures a Session before the driver is initialized.
type Option func(*Session)

// WithTiming overrides the driver communication and scan timeouts.
func WithTiming(timing TimesetParam) Option {
	return func(s *Session) { s.timing = timing }
}

// WithClock substitutes the wall clock used by the discovery loop.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// Open initializes a driver session on the given serial port (e.g. "COM3"
// on Windows, "/dev/ttyUSB0" on Linux). It fails with ErrInitialization
// when the driver rejects the port or timing configuration.
func Open(t Transport, port string, opts ...Option) (*Session, error) {
	s := &Session{
		transport: t,
		clock:     clock.New(),
		port:      port,
		timing: TimesetParam{
			ComTimeout:  DefaultComTimeout,
			ScanTimeout: DefaultScanTimeout,
		},
		state: StateUninitialized,
	}
	for _, opt := range opts {
		opt(s)
	}

	handle := t.Init(port, s.timing)
	if handle < 0 {
		return nil, newCodeError(ErrInitialization, handle, "Init failed with error code: %d", handle)
	}
	s.handle = handle
	s.state = StateInitialized
	return s, nil
}

// checkedHandle returns the driver handle, or an error of the given kind
// when the session was never opened or is already closed.
func (s *Session) checkedHandle(kind error) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUninitialized || s.state == StateClosed {
		return 0, newError(kind, "Sensor not initialized")
	}
	return s.handle, nil
}

// ScanDevices scans for reachable devices for at most timeout. Polling
// stops as soon as one pass reports any device, so the result may be a
// partial set when the driver reports devices in waves; callers needing a
// complete list must rescan. StopScan is always issued, whatever the exit
// path.
func (s *Session) ScanDevices(timeout time.Duration) ([]DeviceInfo, error) {
	handle, err := s.checkedHandle(ErrScan)
	if err != nil {
		return nil, err
	}

	if s.transport.StartScan(handle) != 0 {
		return nil, newError(ErrScan, "Failed to start device scan")
	}
	defer s.transport.StopScan(handle)

	var devices []DeviceInfo
	start := s.clock.Now()
	for s.clock.Since(start) < timeout {
		n := s.transport.ScannedCount(handle)
		for i := 0; i < n; i++ {
			var info DeviceInfo
			if s.transport.ScannedDevice(handle, &info) == 0 {
				devices = append(devices, info)
			}
		}
		if len(devices) > 0 {
			break
		}
		// Re-check the deadline before sleeping so the loop cannot
		// overshoot it by a full poll interval.
		if s.clock.Since(start) >= timeout {
			break
		}
		s.clock.Sleep(scanPollInterval)
	}
	return devices, nil
}

// Connect scans for a device with exactly the given name and connects to
// it. The first exact match wins. It fails with ErrConnection when the
// scan cannot be started, the device does not show up within scanTimeout,
// or the driver rejects the connect call. On success the session moves to
// StateConnected.
func (s *Session) Connect(deviceName string, scanTimeout time.Duration) error {
	handle, err := s.checkedHandle(ErrConnection)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.state == StateMeasuring {
		s.mu.Unlock()
		return newError(ErrConnection, "measurement in progress")
	}
	s.mu.Unlock()

	if s.transport.StartScan(handle) != 0 {
		return newError(ErrConnection, "Failed to start device scan")
	}

	var target *DeviceInfo
	start := s.clock.Now()
	func() {
		defer s.transport.StopScan(handle)
		for s.clock.Since(start) < scanTimeout {
			n := s.transport.ScannedCount(handle)
			for i := 0; i < n; i++ {
				var info DeviceInfo
				if s.transport.ScannedDevice(handle, &info) == 0 {
					if info.DeviceName() == deviceName {
						target = &info
						break
					}
				}
			}
			if target != nil {
				break
			}
			if s.clock.Since(start) >= scanTimeout {
				break
			}
			s.clock.Sleep(scanPollInterval)
		}
	}()

	if target == nil {
		return newError(ErrConnection, "Device '%s' not found", deviceName)
	}

	if rc := s.transport.Connect(handle, target); rc != 0 {
		return newCodeError(ErrConnection, rc, "Failed to connect to device '%s'", deviceName)
	}

	s.mu.Lock()
	s.device = target
	s.state = StateConnected
	s.mu.Unlock()
	return nil
}

// StartMeasurement starts acquisition on the selected channels (0..7; nil
// enables all) and returns the device-side epoch time in milliseconds. It
// requires a connected device and moves the session to StateMeasuring.
func (s *Session) StartMeasurement(channels []int) (int64, error) {
	handle, err := s.checkedHandle(ErrMeasurement)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	if s.device == nil {
		s.mu.Unlock()
		return 0, newError(ErrMeasurement, "No device connected")
	}
	if s.state == StateMeasuring {
		s.mu.Unlock()
		return 0, newError(ErrMeasurement, "measurement already started")
	}
	s.mu.Unlock()

	param := NewSensorParam(channels)
	rc, deviceTimeMS := s.transport.StartMeasure(handle, &param)
	if rc != 0 {
		return 0, newCodeError(ErrMeasurement, rc, "startMeasure failed with error code: %d", rc)
	}

	s.mu.Lock()
	s.state = StateMeasuring
	s.mu.Unlock()
	return deviceTimeMS, nil
}

// StopMeasurement stops a running measurement and moves the session back
// to StateConnected. It is a no-op when no measurement is running, which
// makes it safe to call from a cancellation path or another goroutine.
func (s *Session) StopMeasurement() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateMeasuring {
		return
	}
	s.transport.StopMeasure(s.handle)
	s.state = StateConnected
}

// ReceiveData returns the sample stream for the running measurement. It
// fails with ErrMeasurement when no measurement is running. The stream
// ends when the session leaves StateMeasuring.
func (s *Session) ReceiveData() (*Stream, error) {
	_, err := s.checkedHandle(ErrMeasurement)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateMeasuring {
		return nil, newError(ErrMeasurement, "Measurement not started")
	}
	return &Stream{session: s}, nil
}

// measuringHandle snapshots the handle together with whether the session
// is still measuring. Stream polls it at the top of every iteration.
func (s *Session) measuringHandle() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle, s.state == StateMeasuring
}

// BatteryRemainingTime returns the estimated remaining battery time in
// minutes.
func (s *Session) BatteryRemainingTime() (float64, error) {
	handle, err := s.checkedHandle(ErrMeasurement)
	if err != nil {
		return 0, err
	}
	rc, minutes := s.transport.BatteryRemainingTime(handle)
	if rc != 0 {
		return 0, newCodeError(ErrMeasurement, rc, "getBatteryRemainingTime failed with error code: %d", rc)
	}
	return minutes, nil
}

// Version returns the firmware version reported by the sensor.
func (s *Session) Version() (float64, error) {
	handle, err := s.checkedHandle(ErrMeasurement)
	if err != nil {
		return 0, err
	}
	rc, version := s.transport.FirmwareVersion(handle)
	if rc != 0 {
		return 0, newCodeError(ErrMeasurement, rc, "getVersion failed with error code: %d", rc)
	}
	return version, nil
}

// SensorState returns the device-side state and error registers.
func (s *Session) SensorState() (state int, errCode int, err error) {
	handle, cerr := s.checkedHandle(ErrMeasurement)
	if cerr != nil {
		return 0, 0, cerr
	}
	rc, devState, devErr := s.transport.StateAndError(handle)
	if rc != 0 {
		return 0, 0, newCodeError(ErrMeasurement, rc, "getState failed with error code: %d", rc)
	}
	return devState, devErr, nil
}

// GetContactResistance returns the electrode contact resistance per
// channel.
func (s *Session) GetContactResistance() (ContactResistance, error) {
	handle, err := s.checkedHandle(ErrMeasurement)
	if err != nil {
		return ContactResistance{}, err
	}
	rc, res := s.transport.ContactResistance(handle)
	if rc != 0 {
		return ContactResistance{}, newCodeError(ErrMeasurement, rc, "getContactResistance failed with error code: %d", rc)
	}
	return res, nil
}

// Disconnect stops any running measurement and disconnects the device,
// moving the session back to StateInitialized. Driver status codes are
// ignored; disconnecting an unconnected session is a no-op.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected && s.state != StateMeasuring {
		return
	}
	if s.state == StateMeasuring {
		s.transport.StopMeasure(s.handle)
	}
	s.transport.Disconnect(s.handle)
	s.device = nil
	s.state = StateInitialized
}

// Close releases the session: stop measurement if measuring, disconnect
// if connected, terminate the handle. Every step runs regardless of the
// driver status of the previous one; errors during teardown are
// swallowed. Close is idempotent and safe to call from error paths.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUninitialized || s.state == StateClosed {
		s.state = StateClosed
		return
	}
	if s.state == StateMeasuring {
		s.transport.StopMeasure(s.handle)
	}
	if s.device != nil {
		s.transport.Disconnect(s.handle)
		s.device = nil
	}
	s.transport.Term(s.handle)
	s.handle = 0
	s.state = StateClosed
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether a device is connected.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device != nil
}

// IsMeasuring reports whether a measurement is running.
func (s *Session) IsMeasuring() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateMeasuring
}

// ConnectedDevice returns the descriptor of the connected device.
func (s *Session) ConnectedDevice() (DeviceInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return DeviceInfo{}, false
	}
	return *s.device, true
}

// Port returns the serial port the session was opened on.
func (s *Session) Port() string {
	return s.port
}
