package server

import (
	"net/http"

	"github.com/qontrol/qontrol/internal/logging"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.svc.Health.Check(r.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) handleRedisStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Health.RedisStats(r.Context())
	if err != nil {
		s.logger.Error("fetch redis stats failed", logging.Err(err))
		writeError(w, http.StatusInternalServerError, "REDIS_STATS_ERROR", "Failed to fetch Redis stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRedisTrace(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":   s.trace.Entries(),
		"timestamp": s.timestamp(),
	})
}
