package models

import (
	"time"

	"github.com/google/uuid"
)

// SampleMessage is the per-sample payload published to the message bus.
type SampleMessage struct {
	RecordingID uuid.UUID `json:"recordingId"`
	DeviceName  string    `json:"deviceName"`
	Sequence    int64     `json:"sequence"`
	Timestamp   time.Time `json:"timestamp"`
	ChZ         float64   `json:"chZ"`
	ChR         float64   `json:"chR"`
	ChL         float64   `json:"chL"`
	BatLevel    float64   `json:"bat"`
	IsRepair    bool      `json:"isRepair"`
}

// StatusMessage is the periodic device status payload.
type StatusMessage struct {
	DeviceName     string    `json:"deviceName"`
	SessionState   string    `json:"sessionState"`
	BatteryMinutes float64   `json:"batteryMinutes,omitempty"`
	Firmware       float64   `json:"firmware,omitempty"`
	ReportedAt     time.Time `json:"reportedAt"`
}
