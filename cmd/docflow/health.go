package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/poiesic/docflow"
	"github.com/poiesic/docflow/metrics"
)

type healthResponse struct {
	Status     string `json:"status"`
	Model      string `json:"model,omitempty"`
	Version    uint64 `json:"version,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
	Error      string `json:"error,omitempty"`
}

// healthHandler answers 200 with the embedding target while the database
// is readable and 503 otherwise.
func healthHandler(db *docflow.Database) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		code := http.StatusOK

		target, err := db.Health(r.Context())
		if err != nil {
			resp = healthResponse{Status: "error", Error: err.Error()}
			code = http.StatusServiceUnavailable
		} else {
			resp.Model = target.Model
			resp.Version = target.Version
			resp.Dimensions = target.Dimensions
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Warn("write health response", "err", err)
		}
	}
}

func newRouter(db *docflow.Database) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", healthHandler(db))
	r.Handle("/metrics", metrics.Handler())
	return r
}

func newServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
}
