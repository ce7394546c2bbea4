// Package api exposes the ingestion pipeline over HTTP.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/mesacredito/fidc-cli/internal/fidc"
	"github.com/mesacredito/fidc-cli/internal/metrics"
	"github.com/mesacredito/fidc-cli/internal/model"
	"github.com/mesacredito/fidc-cli/internal/resilience"
)

// Batcher lists and ingests source files.
type Batcher interface {
	ListFilesWithPrompts(ctx context.Context, dir string) ([]fidc.RequestItem, error)
	ProcessBatch(ctx context.Context, items []fidc.RequestItem) fidc.BatchResult
}

// Reports is the read side of the store.
type Reports interface {
	ConsolidatedValues(ctx context.Context) ([]model.ConsolidatedValue, error)
	ConsolidatedRegistrations(ctx context.Context) ([]model.ConsolidatedRegistration, error)
	ClearCache()
}

// Server holds the handler dependencies.
type Server struct {
	batcher   Batcher
	reports   Reports
	metrics   *metrics.Metrics
	breakers  *resilience.Breakers
	sourceDir string

	// batchMu lets one batch run at a time; every item shares the store.
	batchMu sync.Mutex
}

// Options configures a Server.
type Options struct {
	Batcher   Batcher
	Reports   Reports
	Metrics   *metrics.Metrics
	Breakers  *resilience.Breakers
	SourceDir string
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	return &Server{
		batcher:   opts.Batcher,
		reports:   opts.Reports,
		metrics:   opts.Metrics,
		breakers:  opts.Breakers,
		sourceDir: opts.SourceDir,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Handle("/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/schemas", s.schemas)
		r.Route("/fidcs", func(r chi.Router) {
			r.Get("/files", s.listFiles)
			r.Post("/process", s.process)
		})
		r.Route("/reports", func(r chi.Router) {
			r.Get("/values", s.values)
			r.Get("/registrations", s.registrations)
		})
		r.Post("/cache/clear", s.clearCache)
	})
	return r
}

// requestLogger logs one line per request through zap.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
