// Package api is the thin HTTP shell over the learning engine: scan and
// feedback ingestion plus the consolidated read surface. Authentication and
// rate limiting live in the gateway above this service.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cloudguardai/learning/internal/config"
	"github.com/cloudguardai/learning/internal/engine"
	"github.com/cloudguardai/learning/internal/queue"
)

type Server struct {
	cfg    *config.Config
	router *chi.Mux
	engine *engine.Engine
	queue  *queue.Queue
	http   *http.Server
	logger *slog.Logger
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithQueue attaches the retrain-job queue; without it the manual enqueue
// endpoint reports unavailable and everything else still works.
func WithQueue(q *queue.Queue) ServerOption {
	return func(s *Server) {
		s.queue = q
	}
}

func NewServer(cfg *config.Config, eng *engine.Engine, opts ...ServerOption) *Server {
	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		engine: eng,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(jsonContentType)
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.healthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/scans/completed", s.scanCompleted)
		r.Post("/feedback", s.feedbackReceived)

		r.Route("/retrain", func(r chi.Router) {
			r.Post("/completed", s.retrainCompleted)
			r.Post("/enqueue", s.enqueueRetrain)
			r.Get("/queue", s.queueStats)
		})

		r.Route("/learning", func(r chi.Router) {
			r.Get("/status", s.learningStatus)
			r.Get("/drift", s.driftCheck)
			r.Get("/rules", s.ruleWeightStats)
			r.Get("/patterns", s.patternStats)
		})

		r.Route("/telemetry", func(r chi.Router) {
			r.Get("/summary", s.telemetrySummary)
			r.Get("/recent", s.telemetryRecent)
		})
	})
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
