package reading

import "errors"

// Domain-specific errors for reading validation and decoding.
var (
	// ErrInvalidPayload indicates the payload bytes are not a valid reading.
	ErrInvalidPayload = errors.New("reading: invalid payload")

	// ErrMissingDeviceID indicates a reading without a device identifier.
	ErrMissingDeviceID = errors.New("reading: device id is required")
)
