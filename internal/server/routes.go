package server

import "net/http"

// routes builds the handler tree. The websocket feed is mounted outside the
// middleware chain so the connection can be hijacked.
//
//	GET    /api/queues
//	GET    /api/queues/{queue}
//	DELETE /api/queues/{queue}?force=
//	POST   /api/queues/{queue}/pause
//	POST   /api/queues/{queue}/resume
//	POST   /api/queues/{queue}/clean
//	POST   /api/queues/{queue}/drain
//	GET    /api/queues/{queue}/jobs
//	POST   /api/queues/{queue}/jobs
//	GET    /api/queues/{queue}/jobs/stream
//	POST   /api/queues/{queue}/jobs/bulk-remove
//	POST   /api/queues/{queue}/jobs/bulk-retry
//	GET    /api/queues/{queue}/job-by-id/{id}
//	GET    /api/queues/{queue}/jobs/{id}
//	DELETE /api/queues/{queue}/jobs/{id}
//	GET    /api/queues/{queue}/jobs/{id}/logs
//	POST   /api/queues/{queue}/jobs/{id}/retry
//	POST   /api/queues/{queue}/jobs/{id}/discard
//	POST   /api/queues/{queue}/jobs/{id}/promote
//	GET    /api/healthz
//	GET    /api/redis/stats
//	GET    /api/debug/redis
//	GET    /api/ws/queues
//	GET    /metrics
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/queues", s.handleQueues)
	mux.HandleFunc("GET /api/queues/{queue}", s.handleQueue)
	mux.HandleFunc("DELETE /api/queues/{queue}", s.handleObliterate)
	mux.HandleFunc("POST /api/queues/{queue}/pause", s.handlePause)
	mux.HandleFunc("POST /api/queues/{queue}/resume", s.handleResume)
	mux.HandleFunc("POST /api/queues/{queue}/clean", s.handleClean)
	mux.HandleFunc("POST /api/queues/{queue}/drain", s.handleDrain)

	mux.HandleFunc("GET /api/queues/{queue}/jobs", s.handleJobs)
	mux.HandleFunc("POST /api/queues/{queue}/jobs", s.handleAddJob)
	mux.HandleFunc("GET /api/queues/{queue}/jobs/stream", s.handleJobStream)
	mux.HandleFunc("POST /api/queues/{queue}/jobs/bulk-remove", s.handleBulkRemove)
	mux.HandleFunc("POST /api/queues/{queue}/jobs/bulk-retry", s.handleBulkRetry)
	mux.HandleFunc("GET /api/queues/{queue}/job-by-id/{id}", s.handleJobByID)
	mux.HandleFunc("GET /api/queues/{queue}/jobs/{id}", s.handleJobDetail)
	mux.HandleFunc("DELETE /api/queues/{queue}/jobs/{id}", s.mutation("remove", s.svc.Jobs.Remove))
	mux.HandleFunc("GET /api/queues/{queue}/jobs/{id}/logs", s.handleJobLogs)
	mux.HandleFunc("POST /api/queues/{queue}/jobs/{id}/retry", s.mutation("retry", s.svc.Jobs.Retry))
	mux.HandleFunc("POST /api/queues/{queue}/jobs/{id}/discard", s.mutation("discard", s.svc.Jobs.Discard))
	mux.HandleFunc("POST /api/queues/{queue}/jobs/{id}/promote", s.mutation("promote", s.svc.Jobs.Promote))

	mux.HandleFunc("GET /api/healthz", s.handleHealth)
	mux.HandleFunc("GET /api/redis/stats", s.handleRedisStats)
	if s.trace != nil {
		mux.HandleFunc("GET /api/debug/redis", s.handleRedisTrace)
	}
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("/api/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})

	var api http.Handler = mux
	api = s.metrics.Middleware(api)
	api = accessLogMiddleware(s.logger)(api)
	api = corsMiddleware(s.corsOrigin)(api)
	api = requestIDMiddleware(api)
	api = recoverMiddleware(s.logger)(api)

	top := http.NewServeMux()
	top.HandleFunc("GET /api/ws/queues", s.feed.HandleWebSocket)
	top.Handle("/", api)
	return top
}
