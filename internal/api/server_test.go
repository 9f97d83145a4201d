package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pitaeeg/sensor-server/internal/acquisition"
	"github.com/pitaeeg/sensor-server/internal/config"
	"github.com/pitaeeg/sensor-server/pkg/crypto"
	"github.com/pitaeeg/sensor-server/pkg/haru"
)

// stubTransport is an idle driver: the session opens but no devices are
// found and no measurement runs.
type stubTransport struct{}

func (stubTransport) Init(port string, timing haru.TimesetParam) int          { return 1 }
func (stubTransport) Term(handle int) int                                     { return 0 }
func (stubTransport) StartScan(handle int) int                                { return 0 }
func (stubTransport) StopScan(handle int) int                                 { return 0 }
func (stubTransport) ScannedCount(handle int) int                             { return 0 }
func (stubTransport) ScannedDevice(handle int, out *haru.DeviceInfo) int      { return -1 }
func (stubTransport) Connect(handle int, dev *haru.DeviceInfo) int            { return 0 }
func (stubTransport) Disconnect(handle int) int                               { return 0 }
func (stubTransport) StartMeasure(handle int, p *haru.SensorParam) (int, int64) { return 0, 0 }
func (stubTransport) StopMeasure(handle int) int                              { return 0 }
func (stubTransport) ReceivedCount(handle int) int                            { return 0 }
func (stubTransport) Receive(handle int, out *haru.Sample) int                { return -1 }
func (stubTransport) BatteryRemainingTime(handle int) (int, float64)          { return 0, 240 }
func (stubTransport) FirmwareVersion(handle int) (int, float64)               { return 0, 1.2 }
func (stubTransport) StateAndError(handle int) (int, int, int)                { return 0, 1, 0 }
func (stubTransport) ContactResistance(handle int) (int, haru.ContactResistance) {
	return 0, haru.ContactResistance{}
}

func testServer(t *testing.T) *RESTServer {
	t.Helper()

	hash, err := crypto.HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	cfg := &config.Config{}
	cfg.Sensor.Port = "/dev/ttyUSB0"
	cfg.Sensor.Device = "EEG-HARU-001"
	cfg.Sensor.DeviceScanTimeout = time.Second
	cfg.Recording.OutputDir = t.TempDir()
	cfg.Auth.Username = "operator"
	cfg.Auth.PasswordHash = hash
	cfg.Auth.JWTSecret = "test-jwt-secret"
	cfg.Auth.AccessTokenTTL = 15 * time.Minute
	cfg.Auth.RefreshTokenTTL = 24 * time.Hour

	session, err := haru.Open(stubTransport{}, cfg.Sensor.Port)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(session.Close)

	svc := acquisition.New(session, cfg, nil, nil)
	return NewRESTServer(cfg, nil, session, svc)
}

func login(t *testing.T, ts *httptest.Server) string {
	t.Helper()

	body, _ := json.Marshal(map[string]string{
		"username": "operator",
		"password": "secret",
	})
	resp, err := http.Post(ts.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if out.AccessToken == "" {
		t.Fatal("expected non-empty access token")
	}
	return out.AccessToken
}

func TestHealthEndpoint(t *testing.T) {
	ts := httptest.NewServer(testServer(t).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts := httptest.NewServer(testServer(t).Handler())
	defer ts.Close()

	body, _ := json.Marshal(map[string]string{
		"username": "operator",
		"password": "wrong",
	})
	resp, err := http.Post(ts.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("login status = %d, want 401", resp.StatusCode)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := httptest.NewServer(testServer(t).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("status request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("status request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status with bad token = %d, want 401", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	ts := httptest.NewServer(testServer(t).Handler())
	defer ts.Close()

	token := login(t, ts)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("status request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if out["state"] != "INITIALIZED" {
		t.Errorf("state = %v, want INITIALIZED", out["state"])
	}
	if out["port"] != "/dev/ttyUSB0" {
		t.Errorf("port = %v, want /dev/ttyUSB0", out["port"])
	}
	if out["measuring"] != false {
		t.Errorf("measuring = %v, want false", out["measuring"])
	}
}

func TestStartMeasurementWithoutDevice(t *testing.T) {
	ts := httptest.NewServer(testServer(t).Handler())
	defer ts.Close()

	token := login(t, ts)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/measurement/start", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("start request: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("start without device = %d, want 409", resp.StatusCode)
	}
}

func TestStopMeasurementWithoutRun(t *testing.T) {
	ts := httptest.NewServer(testServer(t).Handler())
	defer ts.Close()

	token := login(t, ts)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/measurement/stop", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stop request: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("stop without run = %d, want 409", resp.StatusCode)
	}
}

func TestRecordingsWithoutStorage(t *testing.T) {
	ts := httptest.NewServer(testServer(t).Handler())
	defer ts.Close()

	token := login(t, ts)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/recordings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("recordings request: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("recordings without storage = %d, want 503", resp.StatusCode)
	}
}
