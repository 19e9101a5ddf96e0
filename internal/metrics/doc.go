// Package metrics exposes Prometheus instruments for the publish cycle.
//
// Each Metrics value owns its own registry so tests and multiple instances
// do not collide on the default registerer. Handler serves the registry in
// the Prometheus text format.
//
// Exported series:
//
//	tempsense_cycles_total
//	tempsense_stage_results_total{stage, outcome}
//	tempsense_acquisitions_total{source}          provider | fallback
//	tempsense_breaker_state                       0 closed, 1 half-open, 2 open
//	tempsense_transport_connected                 0 or 1
//	tempsense_last_temperature_celsius
//	tempsense_last_reading_timestamp_seconds
//	tempsense_cycle_duration_seconds
//
// All methods are safe on a nil *Metrics, which records nothing.
package metrics
