// Package web exposes the operational HTTP endpoints: health checks and
// Prometheus metrics.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	server *http.Server
	logger *slog.Logger
}

func NewServer(logger *slog.Logger, listenPort string) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		server: &http.Server{
			Addr:              net.JoinHostPort("", listenPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With("component", "web"),
	}
}

// Start runs the HTTP server until it fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
