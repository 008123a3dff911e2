package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/davidleathers/crossborder-health-compliance/internal/infrastructure/config"
	"github.com/davidleathers/crossborder-health-compliance/internal/metrics"
)

// Server wraps the HTTP server with the full middleware chain.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.ServerConfig
}

// NewServer assembles the server around a handler.
func NewServer(cfg *config.ServerConfig, handler *Handler, logger *slog.Logger, registry *metrics.Registry) *Server {
	root := Chain(handler.Routes(),
		RecoveryMiddleware(logger),
		RequestIDMiddleware(),
		LoggingMiddleware(logger, registry),
		RateLimitMiddleware(cfg.RateLimit),
	)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      root,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
		cfg:    cfg,
	}
}

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.logger.Info("http server shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
