//go:build windows

package native

import (
	"fmt"
	"syscall"
	"unsafe"

	"github.com/pitaeeg/sensor-server/pkg/haru"
)

// transport is the LoadLibrary-backed haru.Transport. The vendor structs
// are mirrored exactly by the fixed-layout types in pkg/haru, so pointers
// to them are passed straight through.
type transport struct {
	dll *syscall.DLL

	procInit                     *syscall.Proc
	procTerm                     *syscall.Proc
	procStartScan                *syscall.Proc
	procStopScan                 *syscall.Proc
	procGetScannedNum            *syscall.Proc
	procGetScannedDevice         *syscall.Proc
	procConnectDevice            *syscall.Proc
	procDisconnectDevice         *syscall.Proc
	procStartMeasure             *syscall.Proc
	procStopMeasure              *syscall.Proc
	procGetReceiveNum            *syscall.Proc
	procGetReceiveData2          *syscall.Proc
	procGetBatteryRemainingTime  *syscall.Proc
	procGetVersion               *syscall.Proc
	procGetState                 *syscall.Proc
	procGetContactResistance     *syscall.Proc
}

func load(path string) (haru.Transport, error) {
	dll, err := syscall.LoadDLL(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	t := &transport{dll: dll}
	for _, bind := range []struct {
		name string
		dst  **syscall.Proc
	}{
		{"Init", &t.procInit},
		{"Term", &t.procTerm},
		{"startScan", &t.procStartScan},
		{"stopScan", &t.procStopScan},
		{"getScannedNum", &t.procGetScannedNum},
		{"getScannedDevice", &t.procGetScannedDevice},
		{"connect_device", &t.procConnectDevice},
		{"disconnect_device", &t.procDisconnectDevice},
		{"startMeasure", &t.procStartMeasure},
		{"stopMeasure", &t.procStopMeasure},
		{"getReceiveNum", &t.procGetReceiveNum},
		{"getReceiveData2", &t.procGetReceiveData2},
		{"getBatteryRemainingTime", &t.procGetBatteryRemainingTime},
		{"getVersion", &t.procGetVersion},
		{"getState", &t.procGetState},
		{"getContactResistance", &t.procGetContactResistance},
	} {
		proc, err := dll.FindProc(bind.name)
		if err != nil {
			dll.Release()
			return nil, fmt.Errorf("find %s in %s: %w", bind.name, path, err)
		}
		*bind.dst = proc
	}
	return t, nil
}

func (t *transport) Init(port string, timing haru.TimesetParam) int {
	cport := append([]byte(port), 0)
	r, _, _ := t.procInit.Call(
		uintptr(unsafe.Pointer(&cport[0])),
		uintptr(unsafe.Pointer(&timing)),
	)
	return int(int32(r))
}

func (t *transport) callInt(proc *syscall.Proc, handle int) int {
	r, _, _ := proc.Call(uintptr(handle))
	return int(int32(r))
}

func (t *transport) Term(handle int) int      { return t.callInt(t.procTerm, handle) }
func (t *transport) StartScan(handle int) int { return t.callInt(t.procStartScan, handle) }
func (t *transport) StopScan(handle int) int  { return t.callInt(t.procStopScan, handle) }

func (t *transport) ScannedCount(handle int) int {
	return t.callInt(t.procGetScannedNum, handle)
}

func (t *transport) ScannedDevice(handle int, out *haru.DeviceInfo) int {
	r, _, _ := t.procGetScannedDevice.Call(uintptr(handle), uintptr(unsafe.Pointer(out)))
	return int(int32(r))
}

func (t *transport) Connect(handle int, dev *haru.DeviceInfo) int {
	r, _, _ := t.procConnectDevice.Call(uintptr(handle), uintptr(unsafe.Pointer(dev)))
	return int(int32(r))
}

func (t *transport) Disconnect(handle int) int {
	return t.callInt(t.procDisconnectDevice, handle)
}

func (t *transport) StartMeasure(handle int, param *haru.SensorParam) (int, int64) {
	var dummy float64
	var deviceTime int64
	r, _, _ := t.procStartMeasure.Call(
		uintptr(handle),
		uintptr(unsafe.Pointer(param)),
		uintptr(unsafe.Pointer(&dummy)),
		uintptr(unsafe.Pointer(&deviceTime)),
	)
	return int(int32(r)), deviceTime
}

func (t *transport) StopMeasure(handle int) int {
	return t.callInt(t.procStopMeasure, handle)
}

func (t *transport) ReceivedCount(handle int) int {
	return t.callInt(t.procGetReceiveNum, handle)
}

func (t *transport) Receive(handle int, out *haru.Sample) int {
	r, _, _ := t.procGetReceiveData2.Call(uintptr(handle), uintptr(unsafe.Pointer(out)))
	return int(int32(r))
}

func (t *transport) BatteryRemainingTime(handle int) (int, float64) {
	var minutes float64
	r, _, _ := t.procGetBatteryRemainingTime.Call(uintptr(handle), uintptr(unsafe.Pointer(&minutes)))
	return int(int32(r)), minutes
}

func (t *transport) FirmwareVersion(handle int) (int, float64) {
	var version float64
	r, _, _ := t.procGetVersion.Call(uintptr(handle), uintptr(unsafe.Pointer(&version)))
	return int(int32(r)), version
}

func (t *transport) StateAndError(handle int) (int, int, int) {
	var state, devErr int32
	r, _, _ := t.procGetState.Call(
		uintptr(handle),
		uintptr(unsafe.Pointer(&state)),
		uintptr(unsafe.Pointer(&devErr)),
	)
	return int(int32(r)), int(state), int(devErr)
}

func (t *transport) ContactResistance(handle int) (int, haru.ContactResistance) {
	var res haru.ContactResistance
	r, _, _ := t.procGetContactResistance.Call(uintptr(handle), uintptr(unsafe.Pointer(&res)))
	return int(int32(r)), res
}
