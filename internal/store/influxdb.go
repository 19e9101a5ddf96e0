package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/shopspring/decimal"

	"github.com/nerrad567/tempsense/internal/infrastructure/config"
	"github.com/nerrad567/tempsense/internal/reading"
)

const (
	// defaultMeasurement is used when none is configured.
	defaultMeasurement = "temperature"

	// temperatureField holds the decimal string.
	temperatureField = "temperature"

	// deviceTag is the tag carrying the device ID.
	deviceTag = "device_id"

	defaultPingTimeout = 5 * time.Second
)

// InfluxDBStore implements ReadingStore on an InfluxDB v2 bucket.
//
// Writes go through the blocking write API so every failure reaches the
// caller; the batching async API would report errors out of band.
type InfluxDBStore struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	queryAPI    api.QueryAPI
	bucket      string
	measurement string
}

// OpenInfluxDB connects to InfluxDB and verifies it is healthy.
//
// The bucket must already exist.
//
// Returns:
//   - *InfluxDBStore: Ready store
//   - error: ErrConnectionFailed if the ping fails or reports unhealthy
func OpenInfluxDB(ctx context.Context, cfg config.InfluxDBConfig) (*InfluxDBStore, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	measurement := cfg.Measurement
	if measurement == "" {
		measurement = defaultMeasurement
	}

	return &InfluxDBStore{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI:    client.QueryAPI(cfg.Org),
		bucket:      cfg.Bucket,
		measurement: measurement,
	}, nil
}

// Write stores the reading as a single point at its timestamp.
func (s *InfluxDBStore) Write(ctx context.Context, r reading.Reading) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	point := influxdb2.NewPoint(
		s.measurement,
		map[string]string{deviceTag: r.DeviceID},
		map[string]interface{}{temperatureField: r.Temperature.String()},
		r.Time(),
	)
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// QueryRange runs a Flux range query for deviceID after since.
func (s *InfluxDBStore) QueryRange(ctx context.Context, deviceID string, since int64) ([]reading.Reading, error) {
	result, err := s.queryAPI.Query(ctx, buildRangeQuery(s.bucket, s.measurement, deviceID, since))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer result.Close()

	out := []reading.Reading{}
	for result.Next() {
		rec := result.Record()

		raw, ok := rec.Value().(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected value type %T", ErrQueryFailed, rec.Value())
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: temperature %q: %w", ErrQueryFailed, raw, err)
		}

		ts := rec.Time().Unix()
		if ts <= since {
			continue
		}
		out = append(out, reading.Reading{DeviceID: deviceID, Timestamp: ts, Temperature: d})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	// Flux sorts per table; a schema change can split a series into
	// several tables, so order the merged result here.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out, nil
}

// HealthCheck pings the server.
func (s *InfluxDBStore) HealthCheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := s.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}
	return nil
}

// Close releases the HTTP client.
func (s *InfluxDBStore) Close() error {
	s.client.Close()
	return nil
}

// buildRangeQuery renders the Flux query for one device after since.
// The range start is inclusive, so it begins one second after since.
func buildRangeQuery(bucket, measurement, deviceID string, since int64) string {
	start := time.Unix(since+1, 0).UTC().Format(time.RFC3339)

	return fmt.Sprintf(`from(bucket: %s)
  |> range(start: %s)
  |> filter(fn: (r) => r._measurement == %s and r._field == %s and r.%s == %s)
  |> keep(columns: ["_time", "_value", "%s"])
  |> sort(columns: ["_time"])`,
		fluxString(bucket),
		start,
		fluxString(measurement),
		fluxString(temperatureField),
		deviceTag,
		fluxString(deviceID),
		deviceTag,
	)
}

// fluxString quotes s as a Flux string literal.
func fluxString(s string) string {
	return `"` + fluxEscaper.Replace(s) + `"`
}

var fluxEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `${`, `\${`)
