// Package api provides the local HTTP status server for the node.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/holter-node/internal/agent"
	"github.com/nerrad567/holter-node/internal/infrastructure/config"
	"github.com/nerrad567/holter-node/internal/infrastructure/database"
	"github.com/nerrad567/holter-node/internal/infrastructure/logging"
	"github.com/nerrad567/holter-node/internal/journal"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HTTP timeouts. The server only answers small GETs.
const (
	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
)

// StatusProvider reports the agent's current state. *agent.Agent satisfies it.
type StatusProvider interface {
	Status() agent.Status
}

// JournalReader lists journal entries. *journal.SQLiteRepository satisfies it.
type JournalReader interface {
	ListBoots(ctx context.Context, limit int) ([]journal.Boot, error)
	ListEvents(ctx context.Context, filter journal.Filter) ([]journal.Event, error)
	ListMessages(ctx context.Context, filter journal.Filter) ([]journal.Message, error)
}

// Deps holds the dependencies required by the status server.
type Deps struct {
	Config  config.StatusConfig
	Logger  *logging.Logger
	Agent   StatusProvider
	Journal JournalReader // optional: journal endpoints return 503 without it
	DB      *database.DB  // optional: health and metrics
	Version string
}

// Server is the HTTP status server.
type Server struct {
	cfg       config.StatusConfig
	logger    *logging.Logger
	agent     StatusProvider
	journal   JournalReader
	db        *database.DB
	version   string
	startTime time.Time

	server   *http.Server
	listener net.Listener
}

// New creates a new status server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Agent == nil {
		return nil, fmt.Errorf("agent status provider is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		agent:     deps.Agent,
		journal:   deps.Journal,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
//
// Binding happens before Start returns, so a port conflict is reported here.
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("binding status server on %s: %w", addr, err)
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	s.logger.Info("status server listening", "address", listener.Addr().String())

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("status server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down status server: %w", err)
	}
	return nil
}

// HealthCheck verifies the server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("status server health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("status server not started")
	}

	return nil
}
