// Package server exposes the job service as a small JSON API plus a
// WebSocket endpoint for live job status. Handlers validate and dispatch;
// all domain rules live in the jobs service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tkohari/reviewkit/internal/jobs"
	"github.com/tkohari/reviewkit/internal/metrics"
	"github.com/tkohari/reviewkit/internal/models"
	"github.com/tkohari/reviewkit/internal/notify"
	"github.com/tkohari/reviewkit/internal/store"
)

// maxBodyBytes caps request bodies; job submissions carry paths, not data.
const maxBodyBytes = 1 << 20

// Server wraps the HTTP handlers with their dependencies.
type Server struct {
	jobs     *jobs.Service
	watcher  *notify.Watcher
	stats    *metrics.Collector
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New creates the API server.
func New(jobSvc *jobs.Service, watcher *notify.Watcher, stats *metrics.Collector, logger *slog.Logger) *Server {
	return &Server{
		jobs:    jobSvc,
		watcher: watcher,
		stats:   stats,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local dev
			},
		},
	}
}

// Handler returns the routed handler with request logging attached.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/index-jobs", s.createIndexJob)
	mux.HandleFunc("POST /api/classification-jobs", s.createClassificationJob)
	mux.HandleFunc("GET /api/jobs", s.listJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.getJob)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", s.cancelJob)
	mux.HandleFunc("POST /api/industries", s.createIndustry)
	mux.HandleFunc("GET /api/industries", s.listIndustries)
	mux.HandleFunc("GET /api/industries/{id}", s.getIndustry)
	mux.HandleFunc("GET /api/industries/{id}/index", s.getIndexRecord)
	mux.HandleFunc("GET /api/stats", s.getStats)
	mux.HandleFunc("GET /ws/jobs/{id}", s.watchJob)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	return LoggingMiddleware(s.logger)(mux)
}

type indexJobRequest struct {
	Owner      string `json:"owner"`
	IndustryID string `json:"industry_id"`
	SourcePath string `json:"source_path"`
	Mode       string `json:"mode"`
}

type classificationJobRequest struct {
	Owner      string `json:"owner"`
	IndustryID string `json:"industry_id"`
	SourcePath string `json:"source_path"`
	UseIndex   bool   `json:"use_index"`
}

type industryRequest struct {
	Owner      string   `json:"owner"`
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) createIndexJob(w http.ResponseWriter, r *http.Request) {
	var req indexJobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	job, err := s.jobs.SubmitIndexJob(r.Context(), jobs.IndexJobParams{
		Owner:      req.Owner,
		IndustryID: req.IndustryID,
		SourcePath: req.SourcePath,
		Mode:       models.IndexMode(req.Mode),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) createClassificationJob(w http.ResponseWriter, r *http.Request) {
	var req classificationJobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	job, err := s.jobs.SubmitClassificationJob(r.Context(), jobs.ClassificationJobParams{
		Owner:      req.Owner,
		IndustryID: req.IndustryID,
		SourcePath: req.SourcePath,
		UseIndex:   req.UseIndex,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	list, err := s.jobs.ListJobs(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJobStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.CancelJob(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) createIndustry(w http.ResponseWriter, r *http.Request) {
	var req industryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	industry, err := s.jobs.CreateIndustry(r.Context(), req.Owner, req.Name, req.Categories)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, industry)
}

func (s *Server) listIndustries(w http.ResponseWriter, r *http.Request) {
	list, err := s.jobs.ListIndustries(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getIndustry(w http.ResponseWriter, r *http.Request) {
	industry, err := s.jobs.GetIndustry(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, industry)
}

func (s *Server) getIndexRecord(w http.ResponseWriter, r *http.Request) {
	industry, err := s.jobs.GetIndustry(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	rec, err := s.jobs.GetIndexRecord(r.Context(), industry.Owner, industry.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rec == nil {
		s.writeError(w, fmt.Errorf("no index built for industry %s: %w", industry.ID, store.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

// watchJob upgrades the connection and streams status events until the job
// reaches a terminal state or the client disconnects. Existence is checked
// before the upgrade so a missing job answers with a plain 404.
func (s *Server) watchJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.jobs.GetJobStatus(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		s.logger.Warn("websocket upgrade failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// No inbound messages are expected; the read loop only surfaces a
	// client-side close so the event loop below can stop.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for ev := range s.watcher.Watch(ctx, id) {
		if ev.Err != nil {
			s.closeConn(conn, websocket.CloseInternalServerErr, ev.Err.Error())
			return
		}
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
	s.closeConn(conn, websocket.CloseNormalClosure, "")
}

func (s *Server) closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, jobs.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request handling failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
