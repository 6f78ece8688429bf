package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuro6061/nexum/common/logger"
)

// Server wraps an HTTP server with signal-driven graceful shutdown.
// Workers polling for tasks get the full drain window to finish their
// in-flight request before the listener closes.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
	name       string
	onShutdown []func(context.Context) error
}

// New creates a new server around the given handler.
func New(name string, port int, handler http.Handler, log *logger.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log:  log,
		name: name,
	}
}

// OnShutdown registers a hook to run during graceful shutdown, after the
// listener stops accepting connections. Hooks run in registration order.
func (s *Server) OnShutdown(fn func(context.Context) error) {
	s.onShutdown = append(s.onShutdown, fn)
}

// Start runs the server until it fails or an interrupt signal arrives.
func (s *Server) Start() error {
	serverErrors := make(chan error, 1)

	go func() {
		s.log.Info(fmt.Sprintf("%s listening", s.name), "addr", s.httpServer.Addr)
		serverErrors <- s.httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		s.log.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Error("graceful shutdown failed", "error", err)
			if err := s.httpServer.Close(); err != nil {
				return fmt.Errorf("could not stop server: %w", err)
			}
		}

		for _, fn := range s.onShutdown {
			if err := fn(ctx); err != nil {
				s.log.Warn("shutdown hook failed", "error", err)
			}
		}

		s.log.Info("shutdown complete")
	}

	return nil
}
