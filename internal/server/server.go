// Package server exposes the pipeline's read side over HTTP: digests,
// runs, feedback and a trigger for ingestion cycles.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"curio/internal/config"
	"curio/internal/core"
	"curio/internal/logger"
	"curio/internal/pipeline"
)

// Store is the persistence surface the API reads and writes.
// *store.DB satisfies it.
type Store interface {
	Ping(ctx context.Context) error
	GetReader(ctx context.Context, id string) (*core.Reader, error)
	ListDigests(ctx context.Context, readerID string, limit int) ([]core.Digest, error)
	LatestDigest(ctx context.Context, readerID string) (*core.Digest, error)
	GetDigest(ctx context.Context, id string) (*core.Digest, error)
	ScoresForDigest(ctx context.Context, digestID string) ([]core.ReaderScore, error)
	GetArticles(ctx context.Context, ids []string) (map[string]*core.Article, error)
	RecordFeedback(ctx context.Context, readerID, articleID string, action core.FeedbackAction) (*core.FeedbackEvent, error)
	GetRun(ctx context.Context, id string) (*core.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]core.RunRecord, error)
}

// Runner triggers an ingestion cycle. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context) (*pipeline.Summary, error)
}

type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	db         Store
	pipe       Runner
	log        *slog.Logger
}

func New(db Store, pipe Runner, cfg config.Server) *Server {
	s := &Server{
		router: chi.NewRouter(),
		db:     db,
		pipe:   pipe,
		log:    logger.Get(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // Run triggers block until the cycle finishes
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/readers/{id}/digests", s.handleListDigests)
		r.Get("/readers/{id}/digests/latest", s.handleLatestDigest)
		r.Post("/readers/{id}/feedback", s.handleFeedback)
		r.Get("/digests/{id}", s.handleGetDigest)
		r.Post("/runs", s.handleTriggerRun)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/latest", s.handleLatestRun)
		r.Get("/runs/{id}", s.handleGetRun)
	})
}

// Start blocks serving until shutdown.
func (s *Server) Start() error {
	s.log.Info("starting HTTP server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Router exposes the mux for tests.
func (s *Server) Router() *chi.Mux { return s.router }
