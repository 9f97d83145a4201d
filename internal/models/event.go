package models

import (
	"time"

	"github.com/google/uuid"
)

// EventLog represents an event log entry
type EventLog struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	RecordingID *uuid.UUID `json:"recordingId,omitempty" db:"recording_id"`
	DeviceName  string     `json:"deviceName,omitempty" db:"device_name"`

	Type        EventType  `json:"type" db:"type"`
	Level       EventLevel `json:"level" db:"level"`
	Code        string     `json:"code" db:"code"`
	Description string     `json:"description" db:"description"`

	Details Variables `json:"details,omitempty" db:"details"`
}

// EventType represents event types
type EventType string

const (
	// Sensor events
	EventTypeScan       EventType = "SCAN"
	EventTypeConnect    EventType = "CONNECT"
	EventTypeDisconnect EventType = "DISCONNECT"
	EventTypeMeasure    EventType = "MEASURE"
	EventTypeError      EventType = "ERROR"

	// Recording events
	EventTypeRecordingStarted  EventType = "RECORDING_STARTED"
	EventTypeRecordingFinished EventType = "RECORDING_FINISHED"

	// System events
	EventTypeAPICall     EventType = "API_CALL"
	EventTypeIntegration EventType = "INTEGRATION"
)

// EventLevel represents event severity levels
type EventLevel string

const (
	EventLevelInfo    EventLevel = "INFO"
	EventLevelWarning EventLevel = "WARNING"
	EventLevelError   EventLevel = "ERROR"
)
