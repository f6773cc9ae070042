package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"trackbridge/internal/api"
	"trackbridge/internal/config"
	"trackbridge/internal/filestore"
	"trackbridge/internal/jobs"
	"trackbridge/internal/logging"
	"trackbridge/internal/pipeline"
	"trackbridge/internal/services"
)

type apiServer struct {
	bind      string
	token     string
	origins   []string
	maxUpload int64
	logger    *slog.Logger
	manager   *pipeline.Manager
	store     *filestore.Store
	registry  *jobs.Registry
	status    func(context.Context) api.DaemonStatus

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, manager *pipeline.Manager, store *filestore.Store, status func(context.Context) api.DaemonStatus, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:      strings.TrimSpace(cfg.Paths.APIBind),
		token:     strings.TrimSpace(cfg.Paths.APIToken),
		origins:   cfg.Server.AllowedOrigins,
		maxUpload: cfg.MaxUploadBytes(),
		logger:    logger,
		manager:   manager,
		store:     store,
		registry:  manager.Registry(),
		status:    status,
	}
	srv.server = &http.Server{
		Handler:           srv.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout(),
		WriteTimeout:      cfg.WriteTimeout(),
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// handler assembles the router and middleware chain. Outermost first: CORS,
// request id, access log, panic recovery, then the router with bearer auth on
// /api.
func (s *apiServer) handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(authMiddleware(s.token))
	apiRouter.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	apiRouter.HandleFunc("/convert/{uploadId}", s.handleConvert).Methods(http.MethodPost)
	apiRouter.HandleFunc("/export/{uploadId}", s.handleExport).Methods(http.MethodPost)
	apiRouter.HandleFunc("/export/{jobId}/download", s.handleDownload).Methods(http.MethodGet)
	apiRouter.HandleFunc("/viewer/{jobId}", s.handleViewer).Methods(http.MethodGet)
	apiRouter.HandleFunc("/jobs", s.handleJobs).Methods(http.MethodGet)
	apiRouter.HandleFunc("/jobs/{jobId}", s.handleJob).Methods(http.MethodGet)
	apiRouter.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	var h http.Handler = r
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: s.log()}),
		handlers.PrintRecoveryStack(false),
	)(h)
	h = handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
	h = requestIDMiddleware(h)
	if len(s.origins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(s.origins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization", requestIDHeader}),
			handlers.ExposedHeaders([]string{requestIDHeader, "Content-Disposition"}),
		)(h)
	}
	return h
}

func (s *apiServer) start(ctx context.Context) error {
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

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
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
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		s.writeJSON(w, http.StatusOK, api.DaemonStatus{Running: true, JobCounts: map[string]int{}})
		return
	}
	s.writeJSON(w, http.StatusOK, s.status(r.Context()))
}

func (s *apiServer) handleJobs(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(s.registry.List())})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.registry.Get(mux.Vars(r)["jobId"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromJob(job))
}

func (s *apiServer) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req api.ConvertRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	uploadID := mux.Vars(r)["uploadId"]
	ctx := services.WithUploadID(r.Context(), uploadID)
	job, err := s.manager.StartConvert(ctx, uploadID, pipeline.ConvertOptions{Width: req.Width, Height: req.Height})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.JobAcceptedResponse{JobID: job.ID})
}

func (s *apiServer) handleExport(w http.ResponseWriter, r *http.Request) {
	var req api.ExportRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	params := s.manager.ExportDefaults()
	if req.FPS != nil {
		params.FPS = *req.FPS
	}
	if req.Scale != nil {
		params.Scale = *req.Scale
	}
	if req.ColorSource != nil {
		params.ColorSource = jobs.ColorSource(*req.ColorSource)
	}

	uploadID := mux.Vars(r)["uploadId"]
	ctx := services.WithUploadID(r.Context(), uploadID)
	job, err := s.manager.StartExport(ctx, uploadID, params)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.JobAcceptedResponse{JobID: job.ID})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

// writeServiceError maps classified errors onto HTTP status codes. Errors
// the caller caused are logged at debug level only.
func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	logger := logging.WithContext(r.Context(), s.log())
	if services.IsClientError(err) || errors.Is(err, jobs.ErrNotFound) {
		logger.Debug("request rejected",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
		)
	} else {
		logging.ErrorWithContext(logger, "request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	s.writeError(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound
	case !services.IsClientError(err):
		return http.StatusInternalServerError
	case errors.Is(err, services.ErrUploadInvalid),
		errors.Is(err, services.ErrInvalidParams):
		return http.StatusBadRequest
	default:
		return http.StatusNotFound
	}
}

// decodeOptionalJSON decodes a JSON body into dst. An empty body leaves dst
// untouched.
func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return services.Wrap(services.ErrInvalidParams, "api", "decode request", "", err)
	}
	return nil
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}

// serveFile streams path with the given download name. A missing file is
// reported as not ready.
func (s *apiServer) serveFile(w http.ResponseWriter, r *http.Request, path, contentType, disposition string) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.writeServiceError(w, r, services.Wrap(services.ErrNotReady, "api", "serve", "artifact missing on disk", nil))
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	if disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), file)
}
