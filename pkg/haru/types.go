package haru

import (
	"encoding/hex"
	"fmt"
)

// Limits fixed by the vendor C ABI.
const (
	// MaxChannels is the number of hardware channels the driver exposes.
	MaxChannels = 8

	// Haru2ChannelCount is the number of channels carrying data on the
	// HARU2 device family.
	Haru2ChannelCount = 3

	// MaxDeviceNameLen is the size of the null-padded device name field.
	MaxDeviceNameLen = 24

	// MaxDeviceAddrLen is the size of the device address field.
	MaxDeviceAddrLen = 8
)

// SamplePeriodMS is the nominal interval between samples in milliseconds.
const SamplePeriodMS = 4

// TimesetParam holds the timeout parameters passed to the driver at
// initialization. Values are milliseconds. It mirrors the TIMESET_PARAM
// struct of the vendor ABI and is never mutated after Open.
type TimesetParam struct {
	ComTimeout  int32
	ScanTimeout int32
}

// DeviceInfo identifies one device reported by a scan. It mirrors the
// DEVICE_INFO struct of the vendor ABI: an 8-byte address and a
// null-padded name of up to 24 bytes.
type DeviceInfo struct {
	ID   [MaxDeviceAddrLen]byte
	Name [MaxDeviceNameLen]byte
}

// DeviceName returns the device name with the null padding stripped.
func (d DeviceInfo) DeviceName() string {
	for i, b := range d.Name {
		if b == 0 {
			return string(d.Name[:i])
		}
	}
	return string(d.Name[:])
}

// DeviceID returns the device address as a lowercase hex string.
func (d DeviceInfo) DeviceID() string {
	return hex.EncodeToString(d.ID[:])
}

// String implements fmt.Stringer.
func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s (%s)", d.DeviceName(), d.DeviceID())
}

// SensorParam selects the channels enabled for a measurement. It mirrors
// the SENSOR_PARAM struct of the vendor ABI. UseCh[i] is 1 when channel i
// is enabled. Reserve must stay zeroed.
type SensorParam struct {
	UseCh   [MaxChannels]byte
	Reserve [32]byte
}

// NewSensorParam builds a SensorParam from a set of channel indices
// (0..7). A nil or empty selection enables every hardware channel, even
// though only three carry data on the HARU2 family; other models in the
// sensor family use more. Out-of-range indices are ignored.
func NewSensorParam(channels []int) SensorParam {
	var p SensorParam
	if len(channels) == 0 {
		for i := range p.UseCh {
			p.UseCh[i] = 1
		}
		return p
	}
	for _, ch := range channels {
		if ch >= 0 && ch < MaxChannels {
			p.UseCh[ch] = 1
		}
	}
	return p
}

// EnabledChannels returns the indices of the enabled channels.
func (p SensorParam) EnabledChannels() []int {
	var out []int
	for i, u := range p.UseCh {
		if u != 0 {
			out = append(out, i)
		}
	}
	return out
}

// Sample is one measurement record as delivered by the driver. It mirrors
// the RECEIVE_DATA2 struct of the vendor ABI: three channel readings in
// microvolts, a battery percentage and a repair flag.
type Sample struct {
	Data     [Haru2ChannelCount]float64
	BatLevel float64
	IsRepair uint8
}

// Repaired reports whether the driver applied correction to this sample.
func (s Sample) Repaired() bool {
	return s.IsRepair != 0
}

// ContactResistance holds the electrode contact resistance per channel in
// ohms. Lower values mean better electrode contact.
type ContactResistance struct {
	ChZ float32
	ChR float32
	ChL float32
}

// SessionState is the lifecycle state of a Session. Transitions are the
// sole authority for which operations are legal.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateInitialized
	StateConnected
	StateMeasuring
	StateClosed
)

// String implements fmt.Stringer.
func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateInitialized:
		return "INITIALIZED"
	case StateConnected:
		return "CONNECTED"
	case StateMeasuring:
		return "MEASURING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}
