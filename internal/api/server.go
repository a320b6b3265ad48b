// Package api exposes the HTTP surface of the montage daemon: job
// submission and status plus the motion provider callback.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"montage/internal/deps"
	"montage/internal/jobs"
	"montage/internal/logging"
	"montage/internal/remote/motion"
	"montage/internal/services"
)

const listLimit = 100

// JobService accepts validated submissions and hands them to the worker pool.
type JobService interface {
	Enqueue(ctx context.Context, req jobs.Request) (string, error)
}

// NoticeHandler resolves asynchronous completion notices from the motion
// provider.
type NoticeHandler interface {
	HandleNotice(ctx context.Context, notice motion.Notice) error
}

// Presigner mints time-limited download URLs for stored object keys.
type Presigner interface {
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Options wires a Server's collaborators.
type Options struct {
	Bind    string
	Token   string
	Store   *jobs.Store
	Service JobService
	Notices NoticeHandler
	// Objects presigns result and thumbnail keys on read. Records hold bare
	// object keys so a stored link can never outlive its signature; nil
	// leaves the keys as-is in responses.
	Objects    Presigner
	PresignTTL time.Duration
	// Tools reports external binary availability for the health endpoint.
	Tools  func() []deps.Status
	Logger *slog.Logger
}

// Server is the daemon's HTTP listener.
type Server struct {
	bind       string
	token      string
	store      *jobs.Store
	service    JobService
	notices    NoticeHandler
	objects    Presigner
	presignTTL time.Duration
	tools      func() []deps.Status
	logger     *slog.Logger

	listener net.Listener
	server   *http.Server
}

// NewServer wires the HTTP routes. Returns nil when the bind address is
// empty, which disables the API entirely.
func NewServer(opts Options) *Server {
	bind := strings.TrimSpace(opts.Bind)
	if bind == "" {
		return nil
	}

	presignTTL := opts.PresignTTL
	if presignTTL <= 0 {
		presignTTL = time.Hour
	}
	srv := &Server{
		bind:       bind,
		token:      opts.Token,
		store:      opts.Store,
		service:    opts.Service,
		notices:    opts.Notices,
		objects:    opts.Objects,
		presignTTL: presignTTL,
		tools:      opts.Tools,
		logger:     opts.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs", authMiddleware(srv.token, srv.handleJobs))
	mux.HandleFunc("/api/jobs/", authMiddleware(srv.token, srv.handleJob))
	mux.HandleFunc("/api/callbacks/motion", srv.handleMotionNotice)
	mux.HandleFunc("/api/health", srv.handleHealth)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// Start binds the listener and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", slog.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr reports the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmit(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req jobs.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := s.service.Enqueue(r.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, JobAccepted{JobID: id, Status: string(jobs.StatusProcessing)})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context(), listLimit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload := JobListResponse{Jobs: make([]JobStatus, 0, len(records))}
	for _, record := range records {
		payload.Jobs = append(payload.Jobs, s.statusFor(r.Context(), record))
	}
	s.writeJSON(w, http.StatusOK, payload)
}

// statusFor converts a record and swaps stored object keys for presigned
// download URLs. Presign failures only log; the bare key still identifies
// the artifact.
func (s *Server) statusFor(ctx context.Context, record jobs.Record) JobStatus {
	status := FromRecord(record)
	if s.objects == nil {
		return status
	}
	status.VideoURL = s.presign(ctx, status.VideoURL)
	status.ThumbnailURL = s.presign(ctx, status.ThumbnailURL)
	return status
}

func (s *Server) presign(ctx context.Context, key string) string {
	if key == "" || strings.Contains(key, "://") {
		return key
	}
	url, err := s.objects.PresignedURL(ctx, key, s.presignTTL)
	if err != nil {
		s.log().Warn("presign failed", logging.String("key", key), logging.Error(err))
		return key
	}
	return url
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, found, err := s.store.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !found {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeJSON(w, http.StatusOK, s.statusFor(r.Context(), record))
	case http.MethodDelete:
		if err := s.store.Delete(r.Context(), id); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"job_id": id, "status": "deleted"})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleMotionNotice receives provider callbacks. The provider cannot carry
// our bearer token, so this route is unauthenticated; unknown task ids are
// ignored by the handler.
func (s *Server) handleMotionNotice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.notices == nil {
		s.writeError(w, http.StatusNotFound, "motion callbacks disabled")
		return
	}
	var notice motion.Notice
	if err := json.NewDecoder(r.Body).Decode(&notice); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid callback body")
		return
	}
	if err := s.notices.HandleNotice(r.Context(), notice); err != nil {
		if errors.Is(err, services.ErrValidation) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	payload := map[string]any{"status": "ok"}
	if s.tools != nil {
		tools := make(map[string]bool)
		for _, tool := range s.tools() {
			tools[strings.ToLower(tool.Name)] = tool.Available
		}
		payload["tools"] = tools
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "api-server")
}
