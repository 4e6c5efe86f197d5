package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/zerocopy-systems/zcp/validation"
)

const (
	// maxRequestSize bounds one request; attestations are small, proofs carry hex receipts
	maxRequestSize = 8 << 20

	defaultReadTimeout = 30 * time.Second
)

// Server answers verification requests, one JSON request per connection
type Server struct {
	verifier    *validation.Verifier
	logger      *slog.Logger
	maxWorkers  int
	readTimeout time.Duration
}

// NewServer creates a server with a bounded worker pool
func NewServer(verifier *validation.Verifier, maxWorkers int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		verifier:    verifier,
		logger:      logger,
		maxWorkers:  maxWorkers,
		readTimeout: defaultReadTimeout,
	}
}

// Serve accepts connections until ctx is cancelled or the listener fails.
// Connections beyond maxWorkers are closed immediately rather than queued.
// It returns ctx.Err() after cancellation and an error wrapping net.ErrClosed
// when the listener is closed elsewhere.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if s.maxWorkers < 1 {
		return fmt.Errorf("max workers must be positive, got %d", s.maxWorkers)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Error("failed to close listener", "error", err)
		}
	}()

	semaphore := make(chan struct{}, s.maxWorkers)
	s.logger.Info("worker pool initialized", "max_workers", s.maxWorkers, "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}
			s.logger.Error("failed to accept connection", "error", err)
			continue
		}

		// Acquire worker slot - immediate rejection if pool full
		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }()
				s.handleConnection(c)
			}(conn)
		default:
			s.logger.Warn("no workers available, rejecting connection")
			if err := conn.Close(); err != nil {
				s.logger.Error("failed to close rejected connection", "error", err)
			}
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic recovered in handleConnection", "panic", r)
		}
		if err := conn.Close(); err != nil {
			s.logger.Error("failed to close connection", "error", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))

	var raw json.RawMessage
	if err := json.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		s.logger.Error("failed to read request", "error", err)
		s.writeResponse(conn, errorResponse(newRequestID(""), fmt.Sprintf("Failed to read request: %v", err)))
		return
	}

	s.writeResponse(conn, s.handleRequest(raw))
}

func (s *Server) writeResponse(conn net.Conn, response any) {
	if err := json.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// Helper function for required environment variable parsing
func getRequiredEnvInt(key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("required environment variable %s is not set", key)
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a valid integer)", key, value)
	}

	return intValue, nil
}
