package api

import (
	"net/http"

	"github.com/seantiz/vantage/internal/cache"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	ByFunction    map[string]int `json:"by_function"`
	ByDatasource  map[string]int `json:"by_datasource"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
	Cache         *cache.Stats   `json:"cache,omitempty"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetInvocationStats(r.Context())
	if err != nil {
		s.logger.Error("get invocation stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	resp := statsResponse{
		Total:         stats.Total,
		ByStatus:      stats.CountByStatus,
		ByFunction:    stats.CountByFunction,
		ByDatasource:  stats.CountByDatasource,
		AvgDurationMS: stats.AvgDurationMS,
	}
	if s.cache != nil {
		cs := s.cache.Stats()
		resp.Cache = &cs
	}
	s.writeJSON(w, http.StatusOK, resp)
}
