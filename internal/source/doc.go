// Package source acquires the current air temperature from an HTTP
// provider.
//
// The provider returns a JSON document with a "value" array; the last
// element's "value" field is the observation. SMHI open data encodes it as a
// string ("5.1"), other providers as a number; both are accepted.
//
// Fetch never fails. If the request, status, body, or value is bad, or the
// circuit breaker is open, it returns a uniformly distributed substitute in
// [fallback_min, fallback_max] rounded to two decimal places, so a cycle is
// never blocked on acquisition.
//
// The breaker (sony/gobreaker) opens after a configured number of
// consecutive failures and skips the network for the cool-down period.
package source
