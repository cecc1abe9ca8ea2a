package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Server hosts the ambient HTTP surface: health, metrics, and whatever
// else was registered on its mux before Start is called. Every handler
// runs behind CoreMiddleware, so WebSocket upgrade endpoints are not
// served here (see NewRouter).
type Server struct {
	logger *slog.Logger
	http   *http.Server
}

// New wraps mux in an *http.Server bound to addr, with the
// recovery/request-ID/logging middleware chain applied ahead of it.
func New(addr string, mux *http.ServeMux, logger *slog.Logger) *Server {
	s := &Server{logger: logger}
	s.http = &http.Server{
		Addr:         addr,
		Handler:      CoreMiddleware(logger)(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start begins listening for HTTP connections. It blocks until the
// server stops or fails.
func (s *Server) Start() error {
	s.logger.Info("edgerpcd http server starting", "address", s.http.Addr)
	return s.http.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("edgerpcd http server shutting down")
	return s.http.Shutdown(ctx)
}
