package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/tempsense/internal/infrastructure/config"
	"github.com/nerrad567/tempsense/internal/reading"
)

// RecentWindow is the look-back used by the dashboard read path.
const RecentWindow = 24 * time.Hour

// ReadingStore is durable, keyed, time-ordered storage for readings.
type ReadingStore interface {
	// Write upserts r keyed by (DeviceID, Timestamp).
	Write(ctx context.Context, r reading.Reading) error

	// QueryRange returns deviceID's readings with Timestamp > since,
	// ascending by Timestamp. An empty slice is not an error.
	QueryRange(ctx context.Context, deviceID string, since int64) ([]reading.Reading, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}

// Open connects to the backend selected by cfg.Backend.
//
// The SQLite backend also applies pending schema migrations, so the
// returned store is ready for writes.
//
// Returns:
//   - ReadingStore: Ready store; the caller must Close it
//   - error: ErrUnknownBackend or ErrConnectionFailed wrapping the cause
func Open(ctx context.Context, cfg config.StoreConfig) (ReadingStore, error) {
	switch cfg.Backend {
	case config.BackendSQLite, "":
		s, err := OpenSQLite(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendInfluxDB:
		s, err := OpenInfluxDB(ctx, cfg.InfluxDB)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Recent returns the readings for deviceID in the RecentWindow before now,
// together with the lower bound used.
func Recent(ctx context.Context, s ReadingStore, deviceID string, now time.Time) ([]reading.Reading, int64, error) {
	since := now.Add(-RecentWindow).Unix()
	readings, err := s.QueryRange(ctx, deviceID, since)
	return readings, since, err
}
