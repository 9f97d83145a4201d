package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pitaeeg/sensor-server/internal/models"
)

// Common errors
var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidData = errors.New("invalid data")
)

// Store defines the storage interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// Recording methods
	CreateRecording(ctx context.Context, rec *models.Recording) error
	GetRecording(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	FinishRecording(ctx context.Context, id uuid.UUID, endedAt time.Time, sampleCount int64) error
	ListRecordings(ctx context.Context, limit, offset int) ([]*models.Recording, int64, error)

	// Event methods
	CreateEvent(ctx context.Context, event *models.EventLog) error
	ListEvents(ctx context.Context, recordingID *uuid.UUID, limit, offset int) ([]*models.EventLog, int64, error)

	Close() error
}
