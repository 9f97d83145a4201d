package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pitaeeg/sensor-server/internal/models"
)

// CreateRecording creates a recording record
func (s *PostgresStore) CreateRecording(ctx context.Context, rec *models.Recording) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = rec.CreatedAt
	}

	query := `
        INSERT INTO recordings (
            id, device_name, device_id, port, file_path,
            device_time_ms, started_at, ended_at, sample_count, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.getDB().ExecContext(ctx, query,
		rec.ID, rec.DeviceName, rec.DeviceID, rec.Port, rec.FilePath,
		rec.DeviceTimeMS, rec.StartedAt, rec.EndedAt, rec.SampleCount, rec.CreatedAt,
	)

	return err
}

// GetRecording fetches a recording by ID
func (s *PostgresStore) GetRecording(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	query := `
        SELECT id, device_name, device_id, port, file_path,
               device_time_ms, started_at, ended_at, sample_count, created_at
        FROM recordings
        WHERE id = $1`

	rec := &models.Recording{}
	err := s.getDB().QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.DeviceName, &rec.DeviceID, &rec.Port, &rec.FilePath,
		&rec.DeviceTimeMS, &rec.StartedAt, &rec.EndedAt, &rec.SampleCount, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FinishRecording marks a recording as ended and stores the sample count
func (s *PostgresStore) FinishRecording(ctx context.Context, id uuid.UUID, endedAt time.Time, sampleCount int64) error {
	res, err := s.getDB().ExecContext(ctx,
		"UPDATE recordings SET ended_at = $2, sample_count = $3 WHERE id = $1",
		id, endedAt, sampleCount,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecordings lists recordings, newest first
func (s *PostgresStore) ListRecordings(ctx context.Context, limit, offset int) ([]*models.Recording, int64, error) {
	var count int64
	if err := s.getDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM recordings").Scan(&count); err != nil {
		return nil, 0, err
	}

	query := `
        SELECT id, device_name, device_id, port, file_path,
               device_time_ms, started_at, ended_at, sample_count, created_at
        FROM recordings
        ORDER BY started_at DESC
        LIMIT $1 OFFSET $2`

	rows, err := s.getDB().QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var recordings []*models.Recording
	for rows.Next() {
		rec := &models.Recording{}
		if err := rows.Scan(
			&rec.ID, &rec.DeviceName, &rec.DeviceID, &rec.Port, &rec.FilePath,
			&rec.DeviceTimeMS, &rec.StartedAt, &rec.EndedAt, &rec.SampleCount, &rec.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		recordings = append(recordings, rec)
	}

	return recordings, count, rows.Err()
}
