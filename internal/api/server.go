package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/nerrad567/mcuctrl/internal/history"
	"github.com/nerrad567/mcuctrl/internal/infrastructure/config"
	"github.com/nerrad567/mcuctrl/internal/infrastructure/logging"
	"github.com/nerrad567/mcuctrl/internal/reconcile"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// RegisterClient reads and writes named registers.
type RegisterClient interface {
	ReadRegister(ctx context.Context, name string) (byte, error)
	WriteRegister(ctx context.Context, name string, value byte) error
}

// Reconciler is the subset of *reconcile.Reconciler used by the API.
type Reconciler interface {
	Tick(ctx context.Context) (reconcile.Result, error)
	State() reconcile.State
	LastResult() (reconcile.Result, bool)
	ConsecutiveFailures() int
	Config() reconcile.Config
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	Logger     *logging.Logger
	Client     RegisterClient
	Reconciler Reconciler         // optional
	History    history.Repository // optional
	Metrics    http.Handler       // optional, served at /metrics
	Hub        *Hub               // optional, created by Start if nil
	Version    string
}

// Server is the HTTP API server for mcuctrl.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	logger     *logging.Logger
	client     RegisterClient
	reconciler Reconciler
	history    history.Repository
	metrics    http.Handler
	version    string
	pid        int
	started    time.Time

	server   *http.Server
	listener net.Listener
	hub      *Hub
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Client == nil {
		return nil, fmt.Errorf("register client is required")
	}

	return &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		client:     deps.Client,
		reconciler: deps.Reconciler,
		history:    deps.History,
		metrics:    deps.Metrics,
		hub:        deps.Hub,
		version:    deps.Version,
		pid:        os.Getpid(),
		started:    time.Now(),
	}, nil
}

// Hub returns the WebSocket hub. It is nil before Start unless one was
// injected through Deps.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in a background goroutine.
// A bind failure is returned directly.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.logger)
	}
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return srvCtx },
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	s.logger.Info("API server starting", "address", ln.Addr().String(), "auth", s.cfg.Auth.Secret != "")
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
