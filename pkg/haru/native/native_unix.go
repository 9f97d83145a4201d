//go:build (linux || darwin) && cgo

package native

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>
#include <stdint.h>
#include <string.h>

typedef struct {
	int32_t com_timeout;
	int32_t scan_timeout;
} haru_timeset_param;

typedef struct {
	unsigned char deviceid[8];
	char devicename[24];
} haru_device_info;

typedef struct {
	unsigned char usech[8];
	unsigned char reserve[32];
} haru_sensor_param;

typedef struct {
	double data[3];
	double batlevel;
	unsigned char isRepair;
} haru_receive_data2;

typedef struct {
	float ChZ;
	float ChR;
	float ChL;
} haru_contact_resistance;

static int haru_call_init(void *f, const char *port, haru_timeset_param *t) {
	return ((int (*)(const char *, haru_timeset_param *))f)(port, t);
}
static int haru_call_int(void *f, int h) {
	return ((int (*)(int))f)(h);
}
static int haru_call_device(void *f, int h, haru_device_info *d) {
	return ((int (*)(int, haru_device_info *))f)(h, d);
}
static int haru_call_start_measure(void *f, int h, haru_sensor_param *p, double *d, long long *t) {
	return ((int (*)(int, haru_sensor_param *, double *, long long *))f)(h, p, d, t);
}
static int haru_call_receive(void *f, int h, haru_receive_data2 *r) {
	return ((int (*)(int, haru_receive_data2 *))f)(h, r);
}
static int haru_call_double(void *f, int h, double *out) {
	return ((int (*)(int, double *))f)(h, out);
}
static int haru_call_state(void *f, int h, int *state, int *err) {
	return ((int (*)(int, int *, int *))f)(h, state, err);
}
static int haru_call_contact(void *f, int h, haru_contact_resistance *out) {
	return ((int (*)(int, haru_contact_resistance *))f)(h, out);
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/pitaeeg/sensor-server/pkg/haru"
)

// transport is the dlopen-backed haru.Transport.
type transport struct {
	lib unsafe.Pointer

	fnInit                   unsafe.Pointer
	fnTerm                   unsafe.Pointer
	fnStartScan              unsafe.Pointer
	fnStopScan               unsafe.Pointer
	fnGetScannedNum          unsafe.Pointer
	fnGetScannedDevice       unsafe.Pointer
	fnConnectDevice          unsafe.Pointer
	fnDisconnectDevice       unsafe.Pointer
	fnStartMeasure           unsafe.Pointer
	fnStopMeasure            unsafe.Pointer
	fnGetReceiveNum          unsafe.Pointer
	fnGetReceiveData2        unsafe.Pointer
	fnGetBatteryRemainingTime unsafe.Pointer
	fnGetVersion             unsafe.Pointer
	fnGetState               unsafe.Pointer
	fnGetContactResistance   unsafe.Pointer
}

func load(path string) (haru.Transport, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	lib := C.dlopen(cpath, C.RTLD_NOW)
	if lib == nil {
		return nil, fmt.Errorf("dlopen %s: %s", path, C.GoString(C.dlerror()))
	}

	t := &transport{lib: lib}
	for _, bind := range []struct {
		name string
		dst  *unsafe.Pointer
	}{
		{"Init", &t.fnInit},
		{"Term", &t.fnTerm},
		{"startScan", &t.fnStartScan},
		{"stopScan", &t.fnStopScan},
		{"getScannedNum", &t.fnGetScannedNum},
		{"getScannedDevice", &t.fnGetScannedDevice},
		{"connect_device", &t.fnConnectDevice},
		{"disconnect_device", &t.fnDisconnectDevice},
		{"startMeasure", &t.fnStartMeasure},
		{"stopMeasure", &t.fnStopMeasure},
		{"getReceiveNum", &t.fnGetReceiveNum},
		{"getReceiveData2", &t.fnGetReceiveData2},
		{"getBatteryRemainingTime", &t.fnGetBatteryRemainingTime},
		{"getVersion", &t.fnGetVersion},
		{"getState", &t.fnGetState},
		{"getContactResistance", &t.fnGetContactResistance},
	} {
		cname := C.CString(bind.name)
		sym := C.dlsym(lib, cname)
		C.free(unsafe.Pointer(cname))
		if sym == nil {
			C.dlclose(lib)
			return nil, fmt.Errorf("dlsym %s in %s: %s", bind.name, path, C.GoString(C.dlerror()))
		}
		*bind.dst = sym
	}
	return t, nil
}

func (t *transport) Init(port string, timing haru.TimesetParam) int {
	cport := C.CString(port)
	defer C.free(unsafe.Pointer(cport))
	ct := C.haru_timeset_param{
		com_timeout:  C.int32_t(timing.ComTimeout),
		scan_timeout: C.int32_t(timing.ScanTimeout),
	}
	return int(C.haru_call_init(t.fnInit, cport, &ct))
}

func (t *transport) Term(handle int) int {
	return int(C.haru_call_int(t.fnTerm, C.int(handle)))
}

func (t *transport) StartScan(handle int) int {
	return int(C.haru_call_int(t.fnStartScan, C.int(handle)))
}

func (t *transport) StopScan(handle int) int {
	return int(C.haru_call_int(t.fnStopScan, C.int(handle)))
}

func (t *transport) ScannedCount(handle int) int {
	return int(C.haru_call_int(t.fnGetScannedNum, C.int(handle)))
}

func (t *transport) ScannedDevice(handle int, out *haru.DeviceInfo) int {
	var ci C.haru_device_info
	rc := int(C.haru_call_device(t.fnGetScannedDevice, C.int(handle), &ci))
	if rc == 0 {
		C.memcpy(unsafe.Pointer(&out.ID[0]), unsafe.Pointer(&ci.deviceid[0]), C.size_t(len(out.ID)))
		C.memcpy(unsafe.Pointer(&out.Name[0]), unsafe.Pointer(&ci.devicename[0]), C.size_t(len(out.Name)))
	}
	return rc
}

func (t *transport) Connect(handle int, dev *haru.DeviceInfo) int {
	var ci C.haru_device_info
	C.memcpy(unsafe.Pointer(&ci.deviceid[0]), unsafe.Pointer(&dev.ID[0]), C.size_t(len(dev.ID)))
	C.memcpy(unsafe.Pointer(&ci.devicename[0]), unsafe.Pointer(&dev.Name[0]), C.size_t(len(dev.Name)))
	return int(C.haru_call_device(t.fnConnectDevice, C.int(handle), &ci))
}

func (t *transport) Disconnect(handle int) int {
	return int(C.haru_call_int(t.fnDisconnectDevice, C.int(handle)))
}

func (t *transport) StartMeasure(handle int, param *haru.SensorParam) (int, int64) {
	var cp C.haru_sensor_param
	C.memcpy(unsafe.Pointer(&cp.usech[0]), unsafe.Pointer(&param.UseCh[0]), C.size_t(len(param.UseCh)))
	var dummy C.double
	var deviceTime C.longlong
	rc := int(C.haru_call_start_measure(t.fnStartMeasure, C.int(handle), &cp, &dummy, &deviceTime))
	return rc, int64(deviceTime)
}

func (t *transport) StopMeasure(handle int) int {
	return int(C.haru_call_int(t.fnStopMeasure, C.int(handle)))
}

func (t *transport) ReceivedCount(handle int) int {
	return int(C.haru_call_int(t.fnGetReceiveNum, C.int(handle)))
}

func (t *transport) Receive(handle int, out *haru.Sample) int {
	var cr C.haru_receive_data2
	rc := int(C.haru_call_receive(t.fnGetReceiveData2, C.int(handle), &cr))
	if rc >= 0 {
		for i := range out.Data {
			out.Data[i] = float64(cr.data[i])
		}
		out.BatLevel = float64(cr.batlevel)
		out.IsRepair = uint8(cr.isRepair)
	}
	return rc
}

func (t *transport) BatteryRemainingTime(handle int) (int, float64) {
	var minutes C.double
	rc := int(C.haru_call_double(t.fnGetBatteryRemainingTime, C.int(handle), &minutes))
	return rc, float64(minutes)
}

func (t *transport) FirmwareVersion(handle int) (int, float64) {
	var version C.double
	rc := int(C.haru_call_double(t.fnGetVersion, C.int(handle), &version))
	return rc, float64(version)
}

func (t *transport) StateAndError(handle int) (int, int, int) {
	var state, devErr C.int
	rc := int(C.haru_call_state(t.fnGetState, C.int(handle), &state, &devErr))
	return rc, int(state), int(devErr)
}

func (t *transport) ContactResistance(handle int) (int, haru.ContactResistance) {
	var cr C.haru_contact_resistance
	rc := int(C.haru_call_contact(t.fnGetContactResistance, C.int(handle), &cr))
	return rc, haru.ContactResistance{
		ChZ: float32(cr.ChZ),
		ChR: float32(cr.ChR),
		ChL: float32(cr.ChL),
	}
}
