package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/feedharvest/internal/config"
	"github.com/JakeFAU/feedharvest/internal/coordinator"
	"github.com/JakeFAU/feedharvest/internal/metrics"
	"github.com/JakeFAU/feedharvest/internal/pipeline"
	"github.com/JakeFAU/feedharvest/internal/store"
)

// BatchService starts and cancels harvest batches. The batch coordinator is
// the production implementation.
type BatchService interface {
	Submit(ctx context.Context, req coordinator.SubmitRequest) (pipeline.Batch, error)
	Cancel(ctx context.Context, batchID string) error
}

// Server wires HTTP handlers to the coordinator and stores.
type Server struct {
	router   chi.Router
	batches  pipeline.BatchStore
	articles pipeline.ArticleStore
	service  BatchService
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	batches pipeline.BatchStore,
	articles pipeline.ArticleStore,
	service BatchService,
	cfg config.Config,
	logger *zap.Logger,
	progressRepo store.ProgressRepository,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		batches:  batches,
		articles: articles,
		service:  service,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	progress := NewProgressHandler(progressRepo, logger.Named("progress"))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/batches", func(r chi.Router) {
			r.Post("/", s.submitBatch)
			r.Route("/{batch_id}", func(r chi.Router) {
				r.Get("/", s.getBatch)
				r.Get("/articles", s.listArticles)
				r.Post("/cancel", s.cancelBatch)
			})
		})
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", progress.ListRuns)
			r.Route("/{batch_id}", func(r chi.Router) {
				r.Get("/", progress.GetRun)
				r.Get("/sites", progress.ListRunSites)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// Batches run against in-process stores by default; readiness only
	// means the router is up.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitBatchRequest struct {
	FeedURL string               `json:"feed_url"`
	Entries []pipeline.FeedEntry `json:"entries"`
}

func (s *Server) submitBatch(w http.ResponseWriter, r *http.Request) {
	var req submitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.FeedURL == "" && len(req.Entries) == 0 {
		writeError(w, http.StatusBadRequest, "feed_url or entries required")
		return
	}
	if req.FeedURL != "" && len(req.Entries) > 0 {
		writeError(w, http.StatusBadRequest, "provide either feed_url or entries, not both")
		return
	}
	batch, err := s.service.Submit(r.Context(), coordinator.SubmitRequest{
		FeedURL: req.FeedURL,
		Entries: req.Entries,
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, coordinator.ErrNoEntries):
			status = http.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusRequestTimeout
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"batch_id": batch.ID,
		"status":   string(batch.Status),
	})
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	batch, err := s.batches.GetBatch(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, pipeline.ErrBatchNotFound) {
			writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		s.logger.Error("get batch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load batch")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": batch})
}

func (s *Server) listArticles(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	if _, err := s.batches.GetBatch(r.Context(), batchID); err != nil {
		if errors.Is(err, pipeline.ErrBatchNotFound) {
			writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		s.logger.Error("get batch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load batch")
		return
	}
	articles, err := s.articles.ListArticles(r.Context(), batchID)
	if err != nil {
		s.logger.Error("list articles failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list articles")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"batch_id": batchID,
		"articles": articles,
	})
}

func (s *Server) cancelBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	if err := s.service.Cancel(r.Context(), batchID); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrBatchNotFound):
			writeError(w, http.StatusNotFound, "batch not found")
		case errors.Is(err, coordinator.ErrBatchFinished):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("cancel batch failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to cancel batch")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"batch_id": batchID,
		"status":   string(pipeline.BatchStatusCanceled),
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
