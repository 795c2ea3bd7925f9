// Package controller contains the HTTP API served by the worker process.
package controller

import (
	"context"
	"net/http"
	"time"

	"opsplane/internal/controller/handlers"
	"opsplane/internal/controller/middleware"
)

// Options configure the HTTP server.
type Options struct {
	// APIKey protects mutating endpoints when non-empty.
	APIKey string

	// RateLimit throttles requests per client address; zero disables.
	RateLimit float64
	Burst     int

	// Metrics serves GET /metrics when non-nil.
	Metrics http.Handler

	// Ping reports store readiness for /readyz. nil means always ready.
	Ping func(ctx context.Context) error
}

// Server is the HTTP server for the job API.
type Server struct {
	httpServer *http.Server
}

// New creates the API server.
func New(addr string, svc handlers.JobService, opts Options) *Server {
	h := handlers.New(svc, opts.Ping)
	authMW := middleware.APIKey(opts.APIKey)
	limitMW := middleware.RateLimit(opts.RateLimit, opts.Burst)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	protected := func(hf http.HandlerFunc) http.Handler {
		return limitMW(authMW(hf))
	}

	mux.Handle("POST /jobs", protected(h.SubmitJob))
	mux.Handle("GET /jobs", protected(h.ListJobs))
	mux.Handle("GET /jobs/{id}", protected(h.GetJob))
	mux.Handle("DELETE /jobs/{id}", protected(h.CancelJob))
	mux.Handle("GET /jobs/{id}/events", protected(h.StreamEvents))
	mux.Handle("GET /stats", protected(h.Stats))

	return &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// No write timeout: the event stream endpoint holds the
			// connection open for the job's lifetime.
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
