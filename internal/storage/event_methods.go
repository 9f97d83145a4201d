package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pitaeeg/sensor-server/internal/models"
)

// CreateEvent creates an event log entry
func (s *PostgresStore) CreateEvent(ctx context.Context, event *models.EventLog) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
        INSERT INTO event_logs (
            id, created_at, recording_id, device_name,
            type, level, code, description, details
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.getDB().ExecContext(ctx, query,
		event.ID, event.CreatedAt, event.RecordingID, event.DeviceName,
		event.Type, event.Level, event.Code, event.Description, event.Details,
	)

	return err
}

// ListEvents lists event log entries, newest first, optionally filtered
// by recording
func (s *PostgresStore) ListEvents(ctx context.Context, recordingID *uuid.UUID, limit, offset int) ([]*models.EventLog, int64, error) {
	where := ""
	args := []interface{}{limit, offset}
	if recordingID != nil {
		where = "WHERE recording_id = $3"
		args = append(args, *recordingID)
	}

	var count int64
	countQuery := "SELECT COUNT(*) FROM event_logs"
	if recordingID != nil {
		if err := s.getDB().QueryRowContext(ctx, countQuery+" WHERE recording_id = $1", *recordingID).Scan(&count); err != nil {
			return nil, 0, err
		}
	} else {
		if err := s.getDB().QueryRowContext(ctx, countQuery).Scan(&count); err != nil {
			return nil, 0, err
		}
	}

	query := `
        SELECT id, created_at, recording_id, device_name,
               type, level, code, description, details
        FROM event_logs ` + where + `
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2`

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*models.EventLog
	for rows.Next() {
		event := &models.EventLog{}
		if err := rows.Scan(
			&event.ID, &event.CreatedAt, &event.RecordingID, &event.DeviceName,
			&event.Type, &event.Level, &event.Code, &event.Description, &event.Details,
		); err != nil {
			return nil, 0, err
		}
		events = append(events, event)
	}

	return events, count, rows.Err()
}
