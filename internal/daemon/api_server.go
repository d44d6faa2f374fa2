package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vocalsplit/internal/api"
	"vocalsplit/internal/jobs"
	"vocalsplit/internal/logging"
	"vocalsplit/internal/services"
)

const (
	defaultLogLimit     = 200
	defaultHistoryLimit = 50
	logFollowWait       = 25 * time.Second
)

type apiServer struct {
	daemon *Daemon
	logger *slog.Logger
}

func newAPIServer(d *Daemon) *apiServer {
	return &apiServer{
		daemon: d,
		logger: logging.NewComponentLogger(d.logger, "api-server"),
	}
}

func (s *apiServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /status/{id}", s.handleJobStatus)
	mux.HandleFunc("GET /download/{filename}", s.handleDownload)
	mux.HandleFunc("GET /preview/{id}", s.handlePreview)
	mux.HandleFunc("GET /api/jobs", s.handleJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJob)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/history", s.handleRecentHistory)
	mux.HandleFunc("GET /api/history/{id}", s.handleJobHistory)
	mux.HandleFunc("POST /api/notifications/test", s.handleTestNotification)
	mux.HandleFunc("GET /ws", s.daemon.updates.ServeHTTP)
	return authMiddleware(s.daemon.cfg.Paths.APIToken, mux)
}

func (s *apiServer) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.jobs.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	resp := s.daemon.jobs.List(r.Context())
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, ok := jobs.ParseStatus(raw)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(raw))
			return
		}
		filtered := resp.Jobs[:0]
		for _, job := range resp.Jobs {
			if job.Status == string(status) {
				filtered = append(filtered, job)
			}
		}
		resp.Jobs = filtered
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	view, err := s.daemon.jobs.Describe(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		LockFilePath: status.LockFilePath,
		HistoryPath:  status.HistoryPath,
		LogPath:      status.LogPath,
		Scheduler:    api.FromSchedulerStats(status.Scheduler),
		JobCounts:    api.CountsByStatus(status.JobCounts),
		LastError:    status.Workflow.LastError,
		LastJobID:    status.Workflow.LastJobID,
		StageHealth:  api.StageHealthSlice(status.Workflow.StageHealth),
		Dependencies: api.FromDependencies(status.Dependencies),
		Checks:       api.FromChecks(status.Checks),
		WSClients:    status.WSClients,
	}
	if status.HistoryOutcomes != nil {
		payload.HistoryOutcomes = make(map[string]int, len(status.HistoryOutcomes))
		for k, v := range status.HistoryOutcomes {
			payload.HistoryOutcomes[string(k)] = v
		}
	}
	if !status.StartedAt.IsZero() {
		payload.StartedAt = status.StartedAt.UTC().Format(time.RFC3339)
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.LogStream()
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: []api.LogEvent{}})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultLogLimit
	}
	follow := queryFlag(query.Get("follow"))
	tail := queryFlag(query.Get("tail"))
	jobFilter := strings.TrimSpace(query.Get("job"))
	component := strings.TrimSpace(query.Get("component"))

	var (
		raw     []logging.LogEvent
		next    uint64
		dropped = hub.Evicted(since)
	)
	if tail && since == 0 && !follow {
		raw, next = hub.Tail(limit)
	} else {
		ctx := r.Context()
		if follow {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, logFollowWait)
			defer cancel()
		}
		var err error
		raw, next, err = hub.Fetch(ctx, since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	events := api.FromLogEvents(raw)
	filtered := events[:0]
	for _, evt := range events {
		if jobFilter != "" && evt.JobID != jobFilter {
			continue
		}
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		filtered = append(filtered, evt)
	}
	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: filtered, Next: next, Dropped: dropped})
}

func (s *apiServer) handleRecentHistory(w http.ResponseWriter, r *http.Request) {
	store := s.daemon.history
	if store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "history journal is disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	events, err := store.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Events: api.FromHistory(events)})
}

func (s *apiServer) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	store := s.daemon.history
	if store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "history journal is disabled")
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	events, err := store.ForJob(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(events) == 0 {
		s.writeError(w, http.StatusNotFound, "no history for job "+id)
		return
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{JobID: id, Events: api.FromHistory(events)})
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.logger.Warn("test notification failed", logging.Error(err))
		s.writeError(w, http.StatusBadGateway, message+": "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.NotificationTestResponse{Sent: sent, Message: message})
}

func queryFlag(value string) bool {
	return value == "1" || strings.EqualFold(value, "true")
}

// writeServiceError maps service markers onto status codes.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrTransient):
		status = http.StatusServiceUnavailable
	}
	s.writeError(w, status, services.Message(err))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Success: false, Error: message})
}
