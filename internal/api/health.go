package api

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

type healthResponse struct {
	Status      string `json:"status"`
	Datasources int    `json:"datasources"`
	LivePairs   int    `json:"live_pairs"`
	Error       string `json:"error,omitempty"`
}

// handleHealthz reports the gateway healthy while the invocation store answers.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Datasources: len(s.datasources.List()),
		LivePairs:   s.executors.Stats().Live,
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check: store unreachable", "error", err)
		resp.Status = "unavailable"
		resp.Error = "invocation store unreachable"
		s.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}
