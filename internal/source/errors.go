package source

import "errors"

// Acquisition errors. None of these reach the caller of Fetch, which always
// returns a value; they are reported in Measurement.Err and in logs.
var (
	// ErrRequestFailed indicates the provider could not be reached.
	ErrRequestFailed = errors.New("source: request failed")

	// ErrBadStatus indicates a non-2xx response.
	ErrBadStatus = errors.New("source: unexpected HTTP status")

	// ErrDecode indicates the body was not the expected JSON document.
	ErrDecode = errors.New("source: invalid response body")

	// ErrNoData indicates the value array was empty or its last value missing.
	ErrNoData = errors.New("source: no observation in response")

	// ErrBreakerOpen indicates the provider was skipped because the circuit
	// breaker is open.
	ErrBreakerOpen = errors.New("source: circuit breaker open")
)
