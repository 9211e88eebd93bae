package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/leitura-auth/internal/audit"
	"github.com/nerrad567/leitura-auth/internal/auth"
	"github.com/nerrad567/leitura-auth/internal/infrastructure/config"
	"github.com/nerrad567/leitura-auth/internal/infrastructure/database"
	"github.com/nerrad567/leitura-auth/internal/infrastructure/logging"
	"github.com/nerrad567/leitura-auth/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Logger    *logging.Logger
	DB        *database.DB
	Codec     *auth.TokenCodec
	Sessions  *auth.SessionManager
	Directory *auth.Directory
	Metrics   *Metrics         // If nil, the server creates its own
	MQTT      *mqtt.Client     // Optional, reported in the runtime summary
	Audit     audit.Repository // Optional, enables GET /audit and failed-login records
	Version   string
}

// Server is the HTTP API server for Leitura.
//
// It manages the HTTP listener, routes and middleware.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	db        *database.DB
	codec     *auth.TokenCodec
	sessions  *auth.SessionManager
	directory *auth.Directory
	metrics   *Metrics
	mqtt      *mqtt.Client
	audit     audit.Repository
	auditor   *audit.Recorder
	version   string
	startTime time.Time
	router    http.Handler
	server    *http.Server
	listener  net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, codec, sessions, directory)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Codec == nil {
		return nil, fmt.Errorf("token codec is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if deps.Directory == nil {
		return nil, fmt.Errorf("user directory is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger.With("component", "api"),
		db:        deps.DB,
		codec:     deps.Codec,
		sessions:  deps.Sessions,
		directory: deps.Directory,
		metrics:   deps.Metrics,
		mqtt:      deps.MQTT,
		audit:     deps.Audit,
		version:   deps.Version,
		startTime: time.Now(),
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.audit != nil {
		s.auditor = audit.NewRecorder(s.audit)
	}
	s.metrics.observeActiveSessions(s.activeSessions)

	s.router = s.buildRouter()
	return s, nil
}

// Handler returns the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP connections.
//
// The listener is bound before Start returns, so a port that is already
// in use is reported here. Requests are served in a background goroutine
// until Close() is called.
//
// Parameters:
//   - ctx: Context for cancellation of the bind (not the listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port)),
		Handler:           s.router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// activeSessionsTimeout bounds the stats query behind the active sessions gauge.
const activeSessionsTimeout = 2 * time.Second

// activeSessions reports the live session count for the metrics gauge.
func (s *Server) activeSessions() float64 {
	ctx, cancel := context.WithTimeout(context.Background(), activeSessionsTimeout)
	defer cancel()

	stats, err := s.sessions.Stats(ctx)
	if err != nil {
		s.logger.Warn("active sessions gauge unavailable", "error", err)
		return 0
	}
	return float64(stats.ActiveCount)
}
