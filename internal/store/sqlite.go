package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nerrad567/tempsense/internal/infrastructure/config"
	"github.com/nerrad567/tempsense/internal/infrastructure/database"
	"github.com/nerrad567/tempsense/internal/reading"
	"github.com/nerrad567/tempsense/migrations"
)

// SQLiteStore implements ReadingStore on the readings table.
type SQLiteStore struct {
	db *database.DB
}

// OpenSQLite opens the database at cfg.Path and migrates it.
func OpenSQLite(ctx context.Context, cfg config.DatabaseConfig) (*SQLiteStore, error) {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return NewSQLiteStore(db), nil
}

// NewSQLiteStore wraps an already migrated database.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Write upserts the reading.
func (s *SQLiteStore) Write(ctx context.Context, r reading.Reading) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO readings (device_id, timestamp, temperature)
		VALUES (?, ?, ?)
		ON CONFLICT (device_id, timestamp) DO UPDATE SET temperature = excluded.temperature`,
		r.DeviceID, r.Timestamp, r.Temperature.String(),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// QueryRange returns deviceID's readings after since, oldest first.
func (s *SQLiteStore) QueryRange(ctx context.Context, deviceID string, since int64) ([]reading.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, temperature
		FROM readings
		WHERE device_id = ? AND timestamp > ?
		ORDER BY timestamp ASC`,
		deviceID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer rows.Close()

	out := []reading.Reading{}
	for rows.Next() {
		var (
			ts   int64
			temp string
		)
		if err := rows.Scan(&ts, &temp); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %w", ErrQueryFailed, err)
		}
		d, err := decimal.NewFromString(temp)
		if err != nil {
			return nil, fmt.Errorf("%w: temperature %q at %d: %w", ErrQueryFailed, temp, ts, err)
		}
		out = append(out, reading.Reading{DeviceID: deviceID, Timestamp: ts, Temperature: d})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return out, nil
}

// HealthCheck pings the database.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
