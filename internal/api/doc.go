// Package api implements the optional HTTP status server for tempsense.
//
// This package provides:
//   - GET /api/v1/health reporting store and transport reachability
//   - GET /api/v1/readings returning the device's recent readings
//   - GET /metrics exposing the Prometheus registry
//   - Middleware stack (request ID, logging, recovery)
//
// The server only reads. It never writes readings and never touches the
// transport beyond its health check, so it can run alongside the publish
// loop without coordination.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Readings query
//
// The readings endpoint answers "all readings for this device since a
// lower bound", ascending by timestamp. The bound defaults to 24 hours
// before the request. An empty result is a 200 with count 0; a store
// failure is a 503 so dashboards can tell "no data" from "no store".
package api
