package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/tempsense/internal/reading"
	"github.com/nerrad567/tempsense/internal/store"
)

// healthCheckTimeout bounds each dependency probe in the health handler.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such route")
	})

	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/readings", s.handleReadings)
	})

	return r
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

// handleHealth runs every registered check. Any failure makes the
// response 503 with status "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Checks:  make(map[string]string, len(s.checks)),
	}

	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := check(ctx)
		cancel()

		if err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// ReadingsResponse is the body of GET /api/v1/readings.
type ReadingsResponse struct {
	DeviceID string            `json:"device_id"`
	Since    int64             `json:"since"`
	Count    int               `json:"count"`
	Readings []reading.Reading `json:"readings"`
}

// handleReadings returns the device's readings newer than ?since=
// (unix seconds), defaulting to the last 24 hours.
func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	var (
		readings []reading.Reading
		since    int64
		err      error
	)

	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || since < 0 {
			writeBadRequest(w, "since must be a non-negative unix timestamp in seconds")
			return
		}
		readings, err = s.store.QueryRange(r.Context(), s.deviceID, since)
	} else {
		readings, since, err = store.Recent(r.Context(), s.store, s.deviceID, s.now())
	}

	if err != nil {
		s.logger.Warn("readings query failed", "device_id", s.deviceID, "since", since, "error", err)
		if errors.Is(err, context.Canceled) {
			return
		}
		writeUnavailable(w, "reading store unavailable")
		return
	}

	if readings == nil {
		readings = []reading.Reading{}
	}
	writeJSON(w, http.StatusOK, ReadingsResponse{
		DeviceID: s.deviceID,
		Since:    since,
		Count:    len(readings),
		Readings: readings,
	})
}
