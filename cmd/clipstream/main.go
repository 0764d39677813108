// Clipstream Core - Video Sharing Backend
//
// This is the main entry point for the Clipstream Core application.
// Clipstream is a video-sharing backend built around:
//   - Direct browser-to-CDN uploads (media never transits this server)
//   - A lazily established, shared backing-store connection
//   - Real-time publish notifications over WebSocket
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipstream/clipstream-core/internal/api"
	"github.com/clipstream/clipstream-core/internal/audit"
	"github.com/clipstream/clipstream-core/internal/auth"
	"github.com/clipstream/clipstream-core/internal/infrastructure/analytics"
	"github.com/clipstream/clipstream-core/internal/infrastructure/config"
	"github.com/clipstream/clipstream-core/internal/infrastructure/logging"
	store "github.com/clipstream/clipstream-core/internal/infrastructure/mongo"
	"github.com/clipstream/clipstream-core/internal/upload"
	"github.com/clipstream/clipstream-core/internal/video"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// indexTimeout bounds the startup index-creation pass.
const indexTimeout = 30 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Clipstream Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Create the backing store handle. No connection is made yet; the
	// first request that needs the database triggers it, and concurrent
	// callers share the same attempt.
	st, err := store.New(cfg.Mongo, log)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	defer func() {
		log.Info("closing backing store")
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if closeErr := st.Close(closeCtx); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()

	// Probe the store once at startup. Failure is logged, not fatal:
	// the store retries on the next request, so a database that comes
	// up after this service does not require a restart.
	if err := st.HealthCheck(ctx); err != nil {
		log.Warn("backing store not reachable yet, will retry on demand", "error", err)
	} else {
		log.Info("backing store connected", "database", st.DatabaseName())
	}

	// Repositories
	userRepo := auth.NewUserRepository(st)
	tokenRepo := auth.NewTokenRepository(st)
	videoRepo := video.NewRepository(st)
	auditRepo := audit.NewRepository(st)

	ensureIndexes(ctx, log, userRepo, tokenRepo, videoRepo, auditRepo)

	// Connect to InfluxDB view analytics (optional)
	var analyticsClient *analytics.Client
	if cfg.Analytics.Enabled {
		analyticsClient, err = analytics.Connect(cfg.Analytics)
		if err != nil {
			return fmt.Errorf("connecting to analytics: %w", err)
		}
		defer func() {
			log.Info("closing analytics connection")
			if closeErr := analyticsClient.Close(); closeErr != nil {
				log.Error("error closing analytics", "error", closeErr)
			}
		}()
		log.Info("analytics connected",
			"url", cfg.Analytics.URL,
			"org", cfg.Analytics.Org,
			"bucket", cfg.Analytics.Bucket,
		)

		analyticsClient.SetOnError(func(err error) {
			log.Error("analytics write error", "error", err)
		})
	} else {
		log.Info("analytics disabled")
	}

	// Upload signer for the CDN handshake
	signer, err := upload.NewSigner(cfg.Upload)
	if err != nil {
		return fmt.Errorf("creating upload signer: %w", err)
	}

	// API server
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Logger:    log,
		Store:     st,
		Users:     userRepo,
		Tokens:    tokenRepo,
		Videos:    videoRepo,
		AuditRepo: auditRepo,
		Analytics: analyticsClient,
		Signer:    signer,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. Analytics (if enabled)
	// 3. Backing store

	log.Info("Clipstream Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CLIPSTREAM_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CLIPSTREAM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// indexEnsurer is implemented by repositories that create their own
// indexes at startup.
type indexEnsurer interface {
	EnsureIndexes(ctx context.Context) error
}

// ensureIndexes creates collection indexes best-effort. A store that is
// down at startup just means indexes are created on a later boot; all
// operations work without them.
func ensureIndexes(ctx context.Context, log *logging.Logger, repos ...indexEnsurer) {
	idxCtx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	for _, repo := range repos {
		if err := repo.EnsureIndexes(idxCtx); err != nil {
			log.Warn("index creation skipped", "repo", fmt.Sprintf("%T", repo), "error", err)
		}
	}
}
