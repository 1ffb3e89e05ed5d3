package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/trivio-gg/trivio/internal/ws"
)

type healthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Connections int    `json:"connections"`
}

// HealthHandler reports liveness and the current connection count.
func HealthHandler(registry *ws.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(healthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			Connections: registry.ConnectionCount(),
		})
	}
}
