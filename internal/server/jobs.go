package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/qontrol/qontrol/internal/bullmq"
	"github.com/qontrol/qontrol/internal/dashboard"
	"github.com/qontrol/qontrol/internal/logging"
	"github.com/qontrol/qontrol/internal/mathutil"
)

type pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type jobsResponse struct {
	Jobs       []dashboard.JobSummary `json:"jobs"`
	Pagination pagination             `json:"pagination"`
	Filters    any                    `json:"filters"`
	Timestamp  time.Time              `json:"timestamp"`
}

// validatedQuery parses and normalizes the job query, writing a 400 on failure.
func (s *Server) validatedQuery(w http.ResponseWriter, r *http.Request) (dashboard.JobQuery, bool) {
	query, details := parseJobQuery(r.URL.Query())
	if len(details) > 0 {
		writeValidationError(w, details)
		return query, false
	}
	normalized, err := query.Normalize()
	if err != nil {
		writeValidationError(w, []fieldError{{Field: "query", Message: err.Error()}})
		return query, false
	}
	return normalized, true
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	name, ok := s.queueName(w, r)
	if !ok {
		return
	}
	query, ok := s.validatedQuery(w, r)
	if !ok {
		return
	}

	page, err := s.svc.Jobs.List(r.Context(), name, query)
	if err != nil {
		if errors.Is(err, dashboard.ErrInvalidQuery) {
			writeValidationError(w, []fieldError{{Field: "query", Message: err.Error()}})
			return
		}
		s.logger.Error("list jobs failed", slog.String("queue", name), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "JOBS_FETCH_ERROR", "Failed to fetch jobs")
		return
	}

	pageSize := query.PageSize
	if query.SearchType == dashboard.SearchID && query.Search != "" {
		pageSize = 1
	}
	writeJSON(w, http.StatusOK, jobsResponse{
		Jobs: page.Jobs,
		Pagination: pagination{
			Page:       query.Page,
			PageSize:   pageSize,
			Total:      page.Total,
			TotalPages: mathutil.CeilDiv(page.Total, pageSize),
		},
		Filters:   query,
		Timestamp: s.timestamp(),
	})
}

// handleJobStream writes one JSON page per line as the windows are read.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	name, ok := s.queueName(w, r)
	if !ok {
		return
	}
	query, ok := s.validatedQuery(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)

	for page, err := range s.svc.Jobs.Stream(r.Context(), name, query) {
		if err != nil {
			s.logger.Warn("stream jobs failed", slog.String("queue", name), logging.Err(err))
			_ = enc.Encode(apiError{Message: err.Error(), Code: "JOBS_STREAM_ERROR"})
			if r.Context().Err() != nil {
				return
			}
			continue
		}
		if err := enc.Encode(page); err != nil {
			return
		}
		_ = rc.Flush()
	}
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	name, ok := s.queueName(w, r)
	if !ok {
		return
	}
	page := s.svc.Jobs.ByID(r.Context(), name, r.PathValue("id"))
	writeJSON(w, http.StatusOK, jobsResponse{
		Jobs:       page.Jobs,
		Pagination: pagination{Page: 1, PageSize: 1, Total: page.Total, TotalPages: 1},
		Filters:    struct{}{},
		Timestamp:  s.timestamp(),
	})
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	name, ok := s.queueName(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	job, err := s.svc.Jobs.Detail(r.Context(), name, id)
	if errors.Is(err, dashboard.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found")
		return
	}
	if err != nil {
		s.logger.Error("fetch job detail failed", slog.String("queue", name), slog.String("job_id", id), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "JOB_DETAIL_FETCH_ERROR", "Failed to fetch job details")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job, "timestamp": s.timestamp()})
}

func (s *Server) handleJobLogs(w http.ResponseWriter, r *http.Request) {
	name, ok := s.queueName(w, r)
	if !ok {
		return
	}

	bounds := [2]int64{0, -1}
	var details []fieldError
	for i, field := range []string{"start", "end"} {
		raw := r.URL.Query().Get(field)
		if raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			details = append(details, fieldError{Field: field, Message: "must be an integer"})
			continue
		}
		bounds[i] = n
	}
	if len(details) > 0 {
		writeValidationError(w, details)
		return
	}

	logs := s.svc.Jobs.Logs(r.Context(), name, r.PathValue("id"), bounds[0], bounds[1])
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs.Entries, "count": logs.Count})
}

type addJobRequest struct {
	Name    string          `json:"name"`
	Data    json.RawMessage `json:"data"`
	Options json.RawMessage `json:"options"`
}

func (s *Server) handleAddJob(w http.ResponseWriter, r *http.Request) {
	name, ok := s.queueName(w, r)
	if !ok {
		return
	}
	var req addJobRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON")
		return
	}

	job, details := req.toNewJob()
	if len(details) > 0 {
		writeValidationError(w, details)
		return
	}

	id, err := s.svc.Jobs.Add(r.Context(), name, job)
	switch {
	case errors.Is(err, dashboard.ErrInvalidQuery):
		writeValidationError(w, []fieldError{{Field: "body", Message: err.Error()}})
		return
	case errors.Is(err, bullmq.ErrDuplicateJob):
		writeError(w, http.StatusConflict, "DUPLICATE_JOB", "A job with this id already exists")
		return
	case err != nil:
		s.logger.Error("add job failed", slog.String("queue", name), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "JOB_ADD_ERROR", "Failed to add job")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":   "Job added successfully",
		"jobId":     id,
		"queueName": name,
		"timestamp": s.timestamp(),
	})
}

// toNewJob accepts data and options either as JSON values or as strings holding JSON.
func (req addJobRequest) toNewJob() (dashboard.NewJob, []fieldError) {
	var details []fieldError
	job := dashboard.NewJob{Name: req.Name}
	if req.Name == "" {
		details = append(details, fieldError{Field: "name", Message: "is required"})
	}

	data, err := unwrapJSONString(req.Data)
	if err != nil {
		details = append(details, fieldError{Field: "data", Message: err.Error()})
	}
	job.Data = data

	rawOpts, err := unwrapJSONString(req.Options)
	if err != nil {
		details = append(details, fieldError{Field: "options", Message: err.Error()})
		return job, details
	}
	if len(rawOpts) == 0 || string(rawOpts) == "null" {
		return job, details
	}

	var opts map[string]any
	dec := json.NewDecoder(bytes.NewReader(rawOpts))
	dec.UseNumber()
	if err := dec.Decode(&opts); err != nil {
		details = append(details, fieldError{Field: "options", Message: "must be a JSON object"})
		return job, details
	}

	for key, value := range opts {
		switch key {
		case "jobId":
			switch v := value.(type) {
			case string:
				job.Options.JobID = v
			case json.Number:
				job.Options.JobID = v.String()
			default:
				details = append(details, fieldError{Field: "options.jobId", Message: "must be a string or number"})
			}
		case "delay", "priority", "attempts":
			n, ok := nonNegativeInt(value)
			if !ok {
				details = append(details, fieldError{Field: "options." + key, Message: "must be an integer >= 0"})
				continue
			}
			switch key {
			case "delay":
				job.Options.Delay = n
			case "priority":
				job.Options.Priority = n
			default:
				job.Options.Attempts = n
			}
		default:
			if job.Options.Extra == nil {
				job.Options.Extra = make(map[string]any)
			}
			job.Options.Extra[key] = value
		}
	}
	return job, details
}

func nonNegativeInt(value any) (int64, bool) {
	number, ok := value.(json.Number)
	if !ok {
		return 0, false
	}
	n, err := number.Int64()
	return n, err == nil && n >= 0
}

func unwrapJSONString(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed, nil
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return nil, err
	}
	if !json.Valid([]byte(inner)) {
		return nil, fmt.Errorf("string value is not valid JSON")
	}
	return json.RawMessage(inner), nil
}

type mutationText struct {
	applied    string
	wrongState string
	errorCode  string
}

var mutationTexts = map[string]mutationText{
	"retry":   {"Job retry initiated successfully", "Job is not in failed state or is locked", "JOB_RETRY_ERROR"},
	"discard": {"Job discarded successfully", "Job cannot be discarded in its current state", "JOB_DISCARD_ERROR"},
	"promote": {"Job promoted successfully", "Job is not delayed", "JOB_PROMOTE_ERROR"},
	"remove":  {"Job removed successfully", "Job is locked by a worker", "JOB_REMOVE_ERROR"},
}

type mutationFunc func(ctx context.Context, queue, id string) (dashboard.Outcome, error)

// mutation adapts a single-job operation: 200 applied, 404 not found, 409 wrong state.
func (s *Server) mutation(op string, fn mutationFunc) http.HandlerFunc {
	text := mutationTexts[op]
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := s.queueName(w, r)
		if !ok {
			return
		}
		id := r.PathValue("id")

		outcome, err := fn(r.Context(), name, id)
		s.metrics.RecordMutation(op, outcome, err)
		if err != nil {
			writeError(w, http.StatusInternalServerError, text.errorCode, "Failed to "+op+" job")
			return
		}
		switch outcome {
		case dashboard.OutcomeNotFound:
			writeError(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found")
		case dashboard.OutcomeWrongState:
			writeError(w, http.StatusConflict, "JOB_WRONG_STATE", text.wrongState)
		default:
			writeJSON(w, http.StatusOK, map[string]any{
				"message":   text.applied,
				"jobId":     id,
				"queueName": name,
				"timestamp": s.timestamp(),
			})
		}
	}
}

type bulkRequest struct {
	JobIDs []string `json:"jobIds"`
}

type bulkResponse struct {
	dashboard.BulkResult
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleBulkRemove(w http.ResponseWriter, r *http.Request) {
	s.bulk(w, r, "bulk-remove", s.svc.Jobs.BulkRemove)
}

func (s *Server) handleBulkRetry(w http.ResponseWriter, r *http.Request) {
	s.bulk(w, r, "bulk-retry", s.svc.Jobs.BulkRetry)
}

func (s *Server) bulk(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, string, []string) dashboard.BulkResult) {
	name, ok := s.queueName(w, r)
	if !ok {
		return
	}
	var req bulkRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JOB_IDS", "jobIds must be a non-empty array")
		return
	}
	switch {
	case len(req.JobIDs) == 0:
		writeError(w, http.StatusBadRequest, "INVALID_JOB_IDS", "jobIds must be a non-empty array")
		return
	case len(req.JobIDs) > dashboard.MaxBulkJobs:
		writeError(w, http.StatusBadRequest, "TOO_MANY_JOBS",
			fmt.Sprintf("Cannot process more than %d jobs at once", dashboard.MaxBulkJobs))
		return
	}

	result := fn(r.Context(), name, req.JobIDs)
	s.metrics.RecordBulk(op, result)
	writeJSON(w, http.StatusOK, bulkResponse{BulkResult: result, Timestamp: s.timestamp()})
}
