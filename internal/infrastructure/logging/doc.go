// Package logging provides structured logging for tempsense.
//
// It wraps log/slog so every entry carries the service name and build
// version, and so the output format and level come from configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("cycle complete", "device_id", id, "published", true)
//
// Never log broker passwords or InfluxDB tokens.
package logging
