// Package serve exposes the chat pipeline over HTTP: a REST API for
// chats and messages, asynchronous job submission, and an SSE stream of
// pipeline events.
package serve

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/autonoplus/yui/guard"
	"github.com/autonoplus/yui/jobs"
	"github.com/autonoplus/yui/pipeline"
	"github.com/autonoplus/yui/store"
)

// Config holds server configuration.
type Config struct {
	Addr string
	// UseAsyncQueue routes message processing through the job queue
	// instead of streaming inline.
	UseAsyncQueue bool
	// DownloadDir is where sandbox ZIP artifacts are served from; empty
	// disables the download route.
	DownloadDir string
}

// Server is the HTTP front end over the pipeline.
type Server struct {
	pipeline  *pipeline.Pipeline
	store     store.ChatStore
	queue     *jobs.Queue
	usage     *pipeline.UsageTracker
	broker    *pipeline.EventBroker
	governor  *guard.Governor
	cfg       Config
	logger    *slog.Logger
	startedAt time.Time
}

// New creates a server over its collaborators. queue and usage may be
// nil; the corresponding endpoints then report unavailable.
func New(p *pipeline.Pipeline, cs store.ChatStore, broker *pipeline.EventBroker, cfg Config) *Server {
	return &Server{
		pipeline: p,
		store:    cs,
		broker:   broker,
		cfg:      cfg,
		logger:   slog.Default(),
	}
}

// WithQueue installs the async job queue.
func (s *Server) WithQueue(q *jobs.Queue) *Server {
	s.queue = q
	return s
}

// WithUsage installs the daily usage tracker.
func (s *Server) WithUsage(u *pipeline.UsageTracker) *Server {
	s.usage = u
	return s
}

// WithGovernor installs the load governor behind /api/capabilities.
func (s *Server) WithGovernor(g *guard.Governor) *Server {
	s.governor = g
	return s
}

// Start registers routes and listens for HTTP requests. It blocks until
// ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.startedAt = time.Now()

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: corsMiddleware(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("yui serve started", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down server")
	case err := <-errCh:
		return err
	}

	// Close broker first so SSE handlers unblock and the HTTP server
	// can drain cleanly.
	if s.broker != nil {
		s.broker.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("server shutdown error", "error", err)
	}
	return nil
}

// registerRoutes adds all API routes to the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Chats
	mux.HandleFunc("POST /api/chats", s.handleCreateChat)
	mux.HandleFunc("GET /api/chats", s.handleListChats)
	mux.HandleFunc("DELETE /api/chats/{id}", s.handleDeleteChat)
	mux.HandleFunc("PUT /api/chats/{id}/title", s.handleRenameChat)

	// Messages
	mux.HandleFunc("GET /api/chats/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /api/chats/{id}/messages", s.handleSendMessage)

	// Jobs
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)

	// Operational
	mux.HandleFunc("GET /api/usage", s.handleUsage)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/capabilities", s.handleCapabilities)

	// SSE
	mux.HandleFunc("GET /api/events", s.handleSSE)

	// Sandbox ZIP artifacts
	mux.HandleFunc("GET /download/{name}", s.handleDownload)
}

// userID resolves the caller's identity. Tenant separation relies on
// this value; an empty id is rejected by every handler.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// corsMiddleware adds permissive CORS headers for development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
