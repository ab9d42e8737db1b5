package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Index     string `json:"index"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker is implemented by dependencies that can verify their own
// connectivity. The store and the Qdrant index both satisfy it.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewHealthHandler creates an HTTP handler for the /health endpoint. index
// may be nil when the vector index is in-process and has no failure mode.
func NewHealthHandler(db HealthChecker, index HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		response := HealthResponse{
			Status:    "healthy",
			Database:  "connected",
			Index:     "connected",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		if err := db.Health(ctx); err != nil {
			response.Status = "unhealthy"
			response.Database = "disconnected"
		}
		if index != nil {
			if err := index.Health(ctx); err != nil {
				response.Status = "unhealthy"
				response.Index = "disconnected"
			}
		} else {
			response.Index = "in-process"
		}

		w.Header().Set("Content-Type", "application/json")
		if response.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(response)
	}
}
