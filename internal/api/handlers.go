package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/syncmesh/fleetrunner/internal/fleet"
	"github.com/syncmesh/fleetrunner/internal/monitor"
)

// healthResponse is the /health payload.
type healthResponse struct {
	Status  monitor.Health  `json:"status"`
	Version string          `json:"version"`
	Uptime  string          `json:"uptime"`
	Summary monitor.Summary `json:"summary"`
}

// fleetResponse is the /v1/fleet payload.
type fleetResponse struct {
	RunID   string               `json:"run_id"`
	Nodes   []fleet.NodeSnapshot `json:"nodes"`
	Summary monitor.Summary      `json:"summary"`
}

// nodeLogsResponse is the /v1/nodes/{name}/logs payload.
type nodeLogsResponse struct {
	Node  string   `json:"node"`
	Lines []string `json:"lines"`
}

// handleHealth reports supervisor health, mirroring the reporter's
// three-level fleet classification.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary := monitor.Summarize(s.registry.Snapshot())
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  summary.Health,
		Version: Version,
		Uptime:  time.Since(s.startTime).Truncate(time.Second).String(),
		Summary: summary,
	})
}

// handleFleet returns a point-in-time snapshot of every node.
func (s *Server) handleFleet(w http.ResponseWriter, r *http.Request) {
	snapshots := s.registry.Snapshot()
	writeJSON(w, http.StatusOK, fleetResponse{
		RunID:   s.runID,
		Nodes:   snapshots,
		Summary: monitor.Summarize(snapshots),
	})
}

// handleNodeLogs returns the last n lines of a node's bounded history.
func (s *Server) handleNodeLogs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	node := s.registry.Get(name)
	if node == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown node " + name})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "n must be a non-negative integer"})
			return
		}
		limit = n
	}

	lines := node.History(limit)
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, nodeLogsResponse{Node: name, Lines: lines})
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
