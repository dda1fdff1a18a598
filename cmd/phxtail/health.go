package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rickgao/phx-stream/internal/phx"
)

// socketStatus is the part of *phx.Socket the health check reads.
type socketStatus interface {
	State() phx.ConnectionState
	Stats() phx.Stats
	Channels() ([]*phx.Channel, error)
}

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status     string         `json:"status"` // healthy, degraded, unhealthy
	Components map[string]any `json:"components"`
}

// newRouter serves /health and the metrics handler at metricsPath. db may
// be nil when the recorder is disabled.
func newRouter(sock socketStatus, db pinger, metricsHandler http.Handler, metricsPath string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		health := healthResponse{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// Socket
		state := sock.State()
		socket := map[string]any{
			"state": state.String(),
			"stats": sock.Stats(),
		}
		if channels, err := sock.Channels(); err == nil {
			topics := make([]string, len(channels))
			for i, ch := range channels {
				topics[i] = ch.Topic()
			}
			socket["topics"] = topics
		}
		health.Components["socket"] = socket
		if state != phx.Connected {
			health.Status = "degraded"
		}

		// Database
		if db != nil {
			if err := db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, metricsPath, metricsHandler)
	}

	return r
}
