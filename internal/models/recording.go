package models

import (
	"time"

	"github.com/google/uuid"
)

// Recording represents one acquisition run against a sensor. Samples go
// to the CSV file and the message bus; only the run metadata is stored.
type Recording struct {
	ID         uuid.UUID `json:"id" db:"id"`
	DeviceName string    `json:"deviceName" db:"device_name"`
	DeviceID   string    `json:"deviceId" db:"device_id"`
	Port       string    `json:"port" db:"port"`
	FilePath   string    `json:"filePath" db:"file_path"`

	// DeviceTimeMS is the sensor-side epoch reported at measurement
	// start; sample timestamps derive from it by fixed increment.
	DeviceTimeMS int64 `json:"deviceTimeMs" db:"device_time_ms"`

	StartedAt   time.Time  `json:"startedAt" db:"started_at"`
	EndedAt     *time.Time `json:"endedAt,omitempty" db:"ended_at"`
	SampleCount int64      `json:"sampleCount" db:"sample_count"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Finished reports whether the recording has ended.
func (r *Recording) Finished() bool {
	return r.EndedAt != nil
}
