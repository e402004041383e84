package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/codeon-dev/codeon/internal/sandbox"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	})
}

type sandboxSummary struct {
	Count     int            `json:"count"`
	Sandboxes []sandbox.Info `json:"sandboxes"`
}

// handleSandboxSummary reports the live sandboxes. Read-only; no mutation
// is exposed over REST.
func (s *Server) handleSandboxSummary(w http.ResponseWriter, r *http.Request) {
	infos := s.registry.Snapshot()
	writeJSON(w, http.StatusOK, sandboxSummary{
		Count:     len(infos),
		Sandboxes: infos,
	})
}
