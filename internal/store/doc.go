// Package store persists readings keyed by (device, timestamp).
//
// Two backends implement ReadingStore:
//
//   - SQLite (default): the readings table created by the embedded
//     migrations, written with INSERT ... ON CONFLICT DO UPDATE.
//   - InfluxDB v2: one point per reading in the configured measurement,
//     tagged with device_id. InfluxDB replaces a point with the same series
//     key and time, which gives the same overwrite semantics.
//
// # Contract
//
//   - Write is an idempotent upsert. Writing the same (device, timestamp)
//     twice leaves one reading holding the last temperature.
//   - QueryRange returns only the requested device's readings with
//     timestamp strictly greater than since, in ascending timestamp order.
//   - Failures are returned wrapped in ErrWriteFailed or ErrQueryFailed.
//     Neither backend retries internally.
package store
