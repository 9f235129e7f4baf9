package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/fwprobe/internal/logging"
	"go.uber.org/zap"
)

// shutdownTimeout bounds how long Shutdown waits for in-flight
// requests to drain
const shutdownTimeout = 10 * time.Second

// Config holds the server configuration
type Config struct {
	Host       string
	Port       int
	CaptureDir string // mitmproxy output directory to serve
	LogLevel   string
}

// Server serves a capture directory for review: paired flows and a
// traffic summary over HTTP, plus a WebSocket feed of new requests
// while a capture is still running.
type Server struct {
	config     *Config
	httpServer *http.Server
	mu         sync.Mutex
	watchers   map[string]*websocket.Conn
}

// New creates a new capture review server
func New(config *Config) (*Server, error) {
	if err := logging.Initialize(config.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	if config.CaptureDir == "" {
		return nil, fmt.Errorf("capture directory is required")
	}

	s := &Server{
		config:   config,
		watchers: make(map[string]*websocket.Conn),
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Start starts the server and blocks until a shutdown signal arrives
// or the listener fails
func (s *Server) Start() error {
	logging.Info("Starting capture review server",
		zap.String("addr", s.httpServer.Addr),
		zap.String("capture_dir", s.config.CaptureDir),
		zap.String("log_level", s.config.LogLevel),
	)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errChan <- err
			return
		}
		errChan <- nil
	}()

	logging.Info("Server listening for connections", zap.String("addr", s.httpServer.Addr))

	select {
	case sig := <-sigChan:
		logging.Info("Shutdown signal received, stopping server...",
			zap.String("signal", sig.String()),
		)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(ctx)

	case err := <-errChan:
		if err != nil {
			logging.Error("Server failed", zap.Error(err))
		}
		return err
	}
}

// Shutdown gracefully shuts down the server, closing live watch
// connections first. http.Server.Shutdown does not cover hijacked
// WebSocket connections, so those are closed by hand.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	s.mu.Lock()
	for addr, conn := range s.watchers {
		logging.Info("Closing watch connection", zap.String("remote_addr", addr))
		conn.Close()
	}
	s.mu.Unlock()

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		logging.Warn("Shutdown did not finish cleanly", zap.Error(err))
	} else {
		logging.Info("All connections closed gracefully")
	}

	logging.Sync()
	return err
}

// WatcherCount returns the number of connected WebSocket watchers
func (s *Server) WatcherCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

func (s *Server) addWatcher(addr string, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers[addr] = conn
}

func (s *Server) removeWatcher(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers, addr)
}
