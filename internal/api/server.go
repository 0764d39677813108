package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/clipstream/clipstream-core/internal/audit"
	"github.com/clipstream/clipstream-core/internal/auth"
	"github.com/clipstream/clipstream-core/internal/infrastructure/analytics"
	"github.com/clipstream/clipstream-core/internal/infrastructure/config"
	"github.com/clipstream/clipstream-core/internal/infrastructure/logging"
	store "github.com/clipstream/clipstream-core/internal/infrastructure/mongo"
	"github.com/clipstream/clipstream-core/internal/upload"
	"github.com/clipstream/clipstream-core/internal/video"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Security  config.SecurityConfig
	Logger    *logging.Logger
	Store     *store.Store
	Users     auth.UserRepository
	Tokens    auth.TokenRepository
	Videos    video.Repository
	AuditRepo audit.Repository
	Analytics *analytics.Client // optional: nil disables view analytics
	Signer    *upload.Signer
	Version   string
}

// Server is the HTTP API server for Clipstream Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	store     *store.Store
	users     auth.UserRepository
	tokens    auth.TokenRepository
	videos    video.Repository
	auditRepo audit.Repository
	auditCh   chan *audit.AuditLog
	analytics *analytics.Client
	signer    *upload.Signer
	version   string
	server    *http.Server
	hub       *Hub
	tickets   *ticketStore
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("backing store is required")
	}
	if deps.Users == nil || deps.Tokens == nil {
		return nil, fmt.Errorf("user and token repositories are required")
	}
	if deps.Videos == nil {
		return nil, fmt.Errorf("video repository is required")
	}
	if deps.Signer == nil {
		return nil, fmt.Errorf("upload signer is required")
	}
	// Analytics and audit are optional — views still count without them

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		store:     deps.Store,
		users:     deps.Users,
		tokens:    deps.Tokens,
		videos:    deps.Videos,
		auditRepo: deps.AuditRepo,
		analytics: deps.Analytics,
		signer:    deps.Signer,
		version:   deps.Version,
		tickets:   newTicketStore(),
	}

	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub and the background
// audit writer, and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Start periodic ticket cleanup to prevent memory leaks
	go s.cleanTicketsLoop(srvCtx)

	if s.auditCh != nil {
		go s.drainAuditLog(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup, audit writer)
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

// storeError writes the appropriate response for a repository failure:
// 503 when the backing store could not be reached, 500 otherwise.
func (s *Server) storeError(w http.ResponseWriter, err error, message string) {
	s.logger.Error(message, "error", err)
	if errors.Is(err, store.ErrConnect) || errors.Is(err, store.ErrClosed) {
		writeServiceUnavailable(w, "backing store unavailable")
		return
	}
	writeInternalError(w, message)
}

// HealthCheck verifies the API server is running and responsive.
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
