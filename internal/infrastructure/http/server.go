// Package http provides the HTTP server infrastructure.
// Clean Architecture: Framework/driver layer - outermost circle.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat-go/internal/domain/usecases"
)

// RequestObserver records served requests, typically as metrics.
type RequestObserver interface {
	ObserveRequest(method, route string, code int, elapsed time.Duration)
}

// Options wires the server to the application.
type Options struct {
	Addr            string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string

	Sessions *usecases.Sessions
	Query    *usecases.QueryUseCase
	Corpus   func() *usecases.Corpus

	Observer       RequestObserver // optional
	MetricsHandler http.Handler    // served on /metrics when set
	Logger         *zap.Logger
}

// Server is the HTTP server for the conversation and query API.
type Server struct {
	opts   Options
	router *chi.Mux
	logger *zap.Logger
}

// NewServer creates a new HTTP server and registers its routes.
func NewServer(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{
		opts:   opts,
		router: chi.NewRouter(),
		logger: opts.Logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(corsMiddleware(s.opts.AllowedOrigins))

	r.Get("/health", s.handleHealth)
	if s.opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", s.handleCreateConversation)
			r.Get("/", s.handleListConversations)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetConversation)
				r.Delete("/", s.handleEndConversation)
				r.Post("/messages", s.handleSubmit)
				r.Post("/cancel", s.handleCancel)
				r.Get("/events", s.handleEvents)
			})
		})

		r.Post("/query", s.handleQuery)
		r.Get("/query/stream", s.handleQueryStream)
		r.Get("/search", s.handleSearch)

		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: SSE responses stay open for the whole conversation.
	}

	s.logger.Info("ragchat server starting", zap.String("addr", s.opts.Addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("ragchat server stopped")
	return nil
}
