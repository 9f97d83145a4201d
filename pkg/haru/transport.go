package haru

// Transport is the vendor driver ABI seen from the session layer. The
// concrete implementation (pkg/haru/native) calls into the closed-source
// dynamic library; tests substitute a scripted fake.
//
// Methods return raw driver status codes: 0 means success, negative means
// failure, counts are non-negative. Translating codes into errors is the
// Session's job, never the transport's.
type Transport interface {
	// Init opens a driver session on the given serial port. The returned
	// handle is negative on failure.
	Init(port string, timing TimesetParam) int
	// Term releases the handle.
	Term(handle int) int

	StartScan(handle int) int
	StopScan(handle int) int
	// ScannedCount returns the number of devices seen so far by the
	// running scan.
	ScannedCount(handle int) int
	// ScannedDevice pops one scanned device into out.
	ScannedDevice(handle int, out *DeviceInfo) int

	Connect(handle int, dev *DeviceInfo) int
	Disconnect(handle int) int

	// StartMeasure begins acquisition on the enabled channels and reports
	// the device-side epoch time in milliseconds.
	StartMeasure(handle int, param *SensorParam) (status int, deviceTimeMS int64)
	StopMeasure(handle int) int

	// ReceivedCount returns the number of samples buffered by the driver.
	ReceivedCount(handle int) int
	// Receive pops one buffered sample into out. A negative status marks
	// a transient miss, not a terminal error.
	Receive(handle int, out *Sample) int

	BatteryRemainingTime(handle int) (status int, minutes float64)
	FirmwareVersion(handle int) (status int, version float64)
	StateAndError(handle int) (status int, state int, errCode int)
	ContactResistance(handle int) (status int, res ContactResistance)
}
