package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/clipstream/clipstream-core/internal/infrastructure/config"
	"github.com/clipstream/clipstream-core/internal/infrastructure/logging"
)

// Defaults applied when the configuration leaves them unset.
const (
	defaultMaxPoolSize    = 10
	defaultConnectTimeout = 5 * time.Second
)

// Sentinel errors for the connection store.
var (
	// ErrEmptyURI is returned when the connection string is missing.
	// Configuration is validated at startup, so hitting this at runtime
	// indicates the store was constructed without going through config.Load.
	ErrEmptyURI = errors.New("mongo uri cannot be empty")

	// ErrEmptyDatabase is returned when the database name is missing.
	ErrEmptyDatabase = errors.New("mongo database name cannot be empty")

	// ErrConnect wraps connection establishment failures. The failure is
	// surfaced to every caller waiting on the attempt; the next Acquire
	// call starts a fresh attempt.
	ErrConnect = errors.New("mongo connect failed")

	// ErrClosed is returned after Close has released the connection.
	ErrClosed = errors.New("mongo store is closed")

	// ErrNilClient is returned when the driver hands back a nil client
	// without an error.
	ErrNilClient = errors.New("mongo driver returned nil client")
)

// Store is the process-wide connection cache for the backing store.
//
// Every data-accessing code path calls Acquire before performing any
// database operation. The store guarantees that at most one underlying
// client (and at most one in-flight connection attempt) exists per
// process: concurrent callers coalesce onto a single establishment
// effort and all observe its outcome. Once established, the client is
// cached for the lifetime of the process and never replaced; the driver's
// own pool monitoring handles transient link failures underneath it.
//
// Construct with New and share the instance explicitly — repositories
// receive it as a dependency rather than reaching for a package global.
//
// Thread Safety: all methods are safe for concurrent use.
type Store struct {
	cfg    config.MongoConfig
	logger *logging.Logger
	deps   storeDeps

	mu      sync.Mutex
	client  *mongo.Client // established handle, nil until first success
	pending *attempt      // in-flight establishment, nil when idle
	closed  bool
}

// attempt is one connection-establishment effort. Waiters block on done;
// exactly one of client/err is set before done is closed.
type attempt struct {
	done   chan struct{}
	client *mongo.Client
	err    error
}

// storeDeps holds the driver entry points, injectable for tests.
type storeDeps struct {
	connect    func(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error)
	ping       func(ctx context.Context, client *mongo.Client) error
	disconnect func(ctx context.Context, client *mongo.Client) error
}

func defaultDeps() storeDeps {
	return storeDeps{
		connect: func(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
			return mongo.Connect(ctx, opts)
		},
		ping: func(ctx context.Context, client *mongo.Client) error {
			return client.Ping(ctx, nil)
		},
		disconnect: func(ctx context.Context, client *mongo.Client) error {
			return client.Disconnect(ctx)
		},
	}
}

// Option customises internal store dependencies (primarily for tests).
type Option func(*storeDeps)

// New validates the configuration and returns a Store.
//
// No connection is made here — establishment is lazy, triggered by the
// first Acquire call. A missing URI or database name is a configuration
// error and should abort startup.
//
// Parameters:
//   - cfg: Backing store configuration from config.yaml
//   - logger: Logger instance
//
// Returns:
//   - *Store: Store ready for use
//   - error: If the configuration is invalid
func New(cfg config.MongoConfig, logger *logging.Logger, opts ...Option) (*Store, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, ErrEmptyURI
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return nil, ErrEmptyDatabase
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = defaultMaxPoolSize
	}

	deps := defaultDeps()
	for _, opt := range opts {
		opt(&deps)
	}

	return &Store{
		cfg:    cfg,
		logger: logger,
		deps:   deps,
	}, nil
}

// Acquire returns the shared client, establishing the connection on first use.
//
// Behaviour:
//  1. If a client is already cached, it is returned immediately.
//  2. Otherwise, if no attempt is in flight, one is started.
//  3. The caller suspends until the attempt resolves (or ctx is done —
//     the attempt itself keeps running to completion either way).
//  4. On success every waiter receives the same handle; on failure every
//     waiter receives the error and the next Acquire retries from scratch.
//
// The store owns the returned client; callers must not Disconnect it.
func (s *Store) Acquire(ctx context.Context) (*mongo.Client, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.client != nil {
		client := s.client
		s.mu.Unlock()
		return client, nil
	}

	att := s.pending
	if att == nil {
		att = &attempt{done: make(chan struct{})}
		s.pending = att
		go s.establish(att)
	}
	s.mu.Unlock()

	select {
	case <-att.done:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for mongo connection: %w", ctx.Err())
	}

	if att.err != nil {
		return nil, att.err
	}
	return att.client, nil
}

// establish runs one connection attempt to completion and publishes the
// outcome. It uses its own timeout context so an individual caller giving
// up does not abort the attempt other callers are waiting on.
func (s *Store) establish(att *attempt) {
	timeout := s.cfg.GetConnectTimeout()
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := s.connect(ctx)

	var discard *mongo.Client

	s.mu.Lock()
	switch {
	case err != nil:
		att.err = fmt.Errorf("%w: %w", ErrConnect, err)
	case s.closed:
		// Close won the race; don't cache a handle nobody will release.
		att.err = ErrClosed
		discard = client
	default:
		s.client = client
		att.client = client
	}
	// Clear the in-flight marker either way: on success new callers hit the
	// cached client, on failure the next call starts a fresh attempt.
	s.pending = nil
	s.mu.Unlock()

	close(att.done)

	if discard != nil {
		if dcErr := s.deps.disconnect(ctx, discard); dcErr != nil {
			s.log().Warn("disconnect discarded client", "error", dcErr)
		}
		return
	}

	if err != nil {
		s.log().Error("backing store connection failed", "error", err)
	} else {
		s.log().Info("backing store connected",
			"database", s.cfg.Database,
			"max_pool_size", s.cfg.MaxPoolSize,
		)
	}
}

// connect dials the server and verifies it with a ping. A client that
// fails the ping is disconnected so it does not leak monitor goroutines.
func (s *Store) connect(ctx context.Context) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(s.cfg.URI).
		SetMaxPoolSize(s.cfg.MaxPoolSize).
		SetServerSelectionTimeout(s.cfg.GetConnectTimeout())

	client, err := s.deps.connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, ErrNilClient
	}

	if err := s.deps.ping(ctx, client); err != nil {
		if dcErr := s.deps.disconnect(ctx, client); dcErr != nil {
			s.log().Warn("disconnect after failed ping", "error", dcErr)
		}
		return nil, err
	}

	return client, nil
}

// Database returns a handle to the configured database, acquiring the
// shared connection first.
func (s *Store) Database(ctx context.Context) (*mongo.Database, error) {
	client, err := s.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return client.Database(s.cfg.Database), nil
}

// Collection returns a handle to a named collection in the configured database.
func (s *Store) Collection(ctx context.Context, name string) (*mongo.Collection, error) {
	db, err := s.Database(ctx)
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}

// DatabaseName returns the configured database name.
func (s *Store) DatabaseName() string {
	return s.cfg.Database
}

// HealthCheck verifies the backing store is reachable.
//
// It acquires the shared connection (establishing it if this is the first
// access) and pings the server.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Store) HealthCheck(ctx context.Context) error {
	client, err := s.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("mongo health check: %w", err)
	}
	if err := s.deps.ping(ctx, client); err != nil {
		return fmt.Errorf("mongo health check: %w", err)
	}
	return nil
}

// Close releases the cached connection and marks the store closed.
// It should be called when the application shuts down. An in-flight
// attempt is allowed to finish; its result is discarded.
//
// Returns:
//   - error: If disconnecting fails
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	if err := s.deps.disconnect(ctx, client); err != nil {
		return fmt.Errorf("closing mongo connection: %w", err)
	}
	return nil
}

func (s *Store) log() *logging.Logger {
	if s.logger != nil {
		return s.logger
	}
	return logging.Default()
}
