package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/qontrol/qontrol/internal/bullmq"
	"github.com/qontrol/qontrol/internal/dashboard"
	"github.com/qontrol/qontrol/internal/logging"
)

// queueName validates the {queue} path value, writing a 400 when it is unusable.
func (s *Server) queueName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.PathValue("queue")
	if err := dashboard.ValidateQueueName(name); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{
			Message: "Invalid queue name",
			Code:    "INVALID_QUEUE_NAME",
			Details: err.Error(),
		})
		return "", false
	}
	return name, true
}

type queueActionResponse struct {
	Message   string    `json:"message"`
	QueueName string    `json:"queueName"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	queues := s.svc.Registry.AllQueuesInfo(r.Context())
	s.metrics.ObserveQueues(queues)
	writeJSON(w, http.StatusOK, map[string]any{
		"queues":    queues,
		"timestamp": s.timestamp(),
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	name, ok := s.queueName(w, r)
	if !ok {
		return
	}
	if !s.svc.Registry.Exists(r.Context(), name) {
		writeError(w, http.StatusNotFound, "QUEUE_NOT_FOUND", "Queue not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queue":     s.svc.Registry.QueueInfo(r.Context(), name),
		"timestamp": s.timestamp(),
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	name, ok := s.queueName(w, r)
	if !ok {
		return
	}
	if err := s.svc.Registry.Pause(r.Context(), name); err != nil {
		s.logger.Error("pause queue failed", slog.String("queue", name), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "QUEUE_PAUSE_ERROR", "Failed to pause queue")
		return
	}
	writeJSON(w, http.StatusOK, queueActionResponse{Message: "Queue paused", QueueName: name, Timestamp: s.timestamp()})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	name, ok := s.queueName(w, r)
	if !ok {
		return
	}
	if err := s.svc.Registry.Resume(r.Context(), name); err != nil {
		s.logger.Error("resume queue failed", slog.String("queue", name), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "QUEUE_RESUME_ERROR", "Failed to resume queue")
		return
	}
	writeJSON(w, http.StatusOK, queueActionResponse{Message: "Queue resumed", QueueName: name, Timestamp: s.timestamp()})
}

type cleanRequest struct {
	Grace int64  `json:"grace"`
	Limit int64  `json:"limit"`
	Type  string `json:"type"`
}

func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	name, ok := s.queueName(w, r)
	if !ok {
		return
	}
	req := cleanRequest{Type: string(bullmq.StateCompleted)}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON")
		return
	}

	var details []fieldError
	state, err := bullmq.ParseJobState(req.Type)
	if err != nil {
		details = append(details, fieldError{Field: "type", Message: err.Error()})
	}
	if req.Grace < 0 {
		details = append(details, fieldError{Field: "grace", Message: "must be >= 0"})
	}
	if req.Limit < 0 {
		details = append(details, fieldError{Field: "limit", Message: "must be >= 0"})
	}
	if len(details) > 0 {
		writeValidationError(w, details)
		return
	}

	removed, err := s.svc.Registry.Clean(r.Context(), name, time.Duration(req.Grace)*time.Millisecond, req.Limit, state)
	if err != nil {
		s.logger.Error("clean queue failed", slog.String("queue", name), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "QUEUE_CLEAN_ERROR", "Failed to clean queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cleaned":   len(removed),
		"jobIds":    removed,
		"queueName": name,
		"type":      state,
		"timestamp": s.timestamp(),
	})
}

type drainRequest struct {
	Delayed bool `json:"delayed"`
}

func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	name, ok := s.queueName(w, r)
	if !ok {
		return
	}
	var req drainRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON")
		return
	}

	drained, err := s.svc.Registry.Drain(r.Context(), name, req.Delayed)
	if err != nil {
		s.logger.Error("drain queue failed", slog.String("queue", name), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "QUEUE_DRAIN_ERROR", "Failed to drain queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"drained":   drained,
		"queueName": name,
		"timestamp": s.timestamp(),
	})
}

func (s *Server) handleObliterate(w http.ResponseWriter, r *http.Request) {
	name, ok := s.queueName(w, r)
	if !ok {
		return
	}
	var force bool
	if raw := r.URL.Query().Get("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeValidationError(w, []fieldError{{Field: "force", Message: "must be a boolean"}})
			return
		}
		force = parsed
	}

	err := s.svc.Registry.Obliterate(r.Context(), name, force)
	switch {
	case errors.Is(err, bullmq.ErrQueueNotPaused):
		writeError(w, http.StatusConflict, "QUEUE_NOT_PAUSED", "Queue must be paused before it can be obliterated")
		return
	case errors.Is(err, bullmq.ErrQueueHasActiveJobs):
		writeError(w, http.StatusConflict, "QUEUE_HAS_ACTIVE_JOBS", "Queue has active jobs; use force to obliterate anyway")
		return
	case err != nil:
		s.logger.Error("obliterate queue failed", slog.String("queue", name), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "QUEUE_OBLITERATE_ERROR", "Failed to obliterate queue")
		return
	}
	s.metrics.ForgetQueue(name)
	writeJSON(w, http.StatusOK, map[string]any{
		"obliterated": true,
		"queueName":   name,
		"timestamp":   s.timestamp(),
	})
}
