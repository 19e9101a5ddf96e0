package reading

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places kept for temperatures.
const Precision = 2

// Reading is a single temperature observation.
type Reading struct {
	DeviceID    string          `json:"device_id"`
	Timestamp   int64           `json:"timestamp"`
	Temperature decimal.Decimal `json:"temperature"`
}

// New builds a Reading stamped with at truncated to whole seconds.
// The temperature is rounded to Precision places.
func New(deviceID string, at time.Time, temperature decimal.Decimal) Reading {
	return Reading{
		DeviceID:    deviceID,
		Timestamp:   at.Unix(),
		Temperature: Round(temperature),
	}
}

// Round rounds d to Precision decimal places (half away from zero).
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Precision)
}

// Time returns the reading timestamp as a time.Time in UTC.
func (r Reading) Time() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}

// Validate checks the reading can be published and stored.
func (r Reading) Validate() error {
	if r.DeviceID == "" {
		return ErrMissingDeviceID
	}
	return nil
}

// Payload is the JSON document published to the broker.
type Payload struct {
	DeviceID    string `json:"deviceId"`
	Temperature string `json:"temperature"`
	Timestamp   int64  `json:"timestamp"`
}

// Payload converts the reading to its wire representation.
func (r Reading) Payload() Payload {
	return Payload{
		DeviceID:    r.DeviceID,
		Temperature: r.Temperature.String(),
		Timestamp:   r.Timestamp,
	}
}

// Encode serialises the reading as the broker payload.
//
// Returns:
//   - []byte: JSON payload
//   - error: ErrMissingDeviceID if the reading has no device
func Encode(r Reading) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(r.Payload())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return data, nil
}

// Decode parses a broker payload back into a Reading.
//
// Returns:
//   - Reading: The decoded reading
//   - error: ErrInvalidPayload if the JSON or temperature is malformed
func Decode(data []byte) (Reading, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Reading{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	temp, err := decimal.NewFromString(p.Temperature)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: temperature %q: %w", ErrInvalidPayload, p.Temperature, err)
	}

	r := Reading{DeviceID: p.DeviceID, Timestamp: p.Timestamp, Temperature: temp}
	if err := r.Validate(); err != nil {
		return Reading{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return r, nil
}
