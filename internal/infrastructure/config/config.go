package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Clipstream Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Mongo     MongoConfig     `yaml:"mongo"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Upload    UploadConfig    `yaml:"upload"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// MongoConfig contains backing store connection settings.
type MongoConfig struct {
	// URI is the MongoDB connection string. Required.
	URI string `yaml:"uri"`

	// Database is the database name holding user and video collections.
	Database string `yaml:"database"`

	// MaxPoolSize bounds the driver connection pool. Default: 10.
	MaxPoolSize uint64 `yaml:"max_pool_size"`

	// ConnectTimeout bounds server selection during connection establishment (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket event-feed settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// UploadConfig contains settings for the media CDN signed-upload handshake.
type UploadConfig struct {
	// Endpoint is the CDN upload URL clients post media files to.
	Endpoint string `yaml:"endpoint"`

	// APIKey identifies this application to the CDN.
	APIKey string `yaml:"api_key"`

	// Secret signs upload parameters and verifies webhook callbacks.
	Secret string `yaml:"secret"`

	// SignatureTTL is how long a signed upload is valid (seconds). Default: 600.
	SignatureTTL int `yaml:"signature_ttl"`

	// Folder is the CDN folder prefix uploads are placed under.
	Folder string `yaml:"folder"`
}

// AnalyticsConfig contains InfluxDB view-analytics settings.
type AnalyticsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret          string `yaml:"secret"`
	AccessTokenTTL  int    `yaml:"access_token_ttl"`  // minutes
	RefreshTokenTTL int    `yaml:"refresh_token_ttl"` // minutes
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CLIPSTREAM_SECTION_KEY
// For example: CLIPSTREAM_MONGO_URI, CLIPSTREAM_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Mongo: MongoConfig{
			Database:       "clipstream",
			MaxPoolSize:    10,
			ConnectTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Upload: UploadConfig{
			SignatureTTL: 600,
			Folder:       "videos",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL:  15,
				RefreshTokenTTL: 10080,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CLIPSTREAM_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Mongo
	if v := os.Getenv("CLIPSTREAM_MONGO_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv("CLIPSTREAM_MONGO_DATABASE"); v != "" {
		cfg.Mongo.Database = v
	}

	// API
	if v := os.Getenv("CLIPSTREAM_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("CLIPSTREAM_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Upload CDN credentials (IMPORTANT: always override in production)
	if v := os.Getenv("CLIPSTREAM_UPLOAD_API_KEY"); v != "" {
		cfg.Upload.APIKey = v
	}
	if v := os.Getenv("CLIPSTREAM_UPLOAD_SECRET"); v != "" {
		cfg.Upload.Secret = v
	}

	// Analytics
	if v := os.Getenv("CLIPSTREAM_ANALYTICS_TOKEN"); v != "" {
		cfg.Analytics.Token = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("CLIPSTREAM_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Backing store validation — the process must never run half-configured.
	if c.Mongo.URI == "" {
		errs = append(errs, "mongo.uri is required (set CLIPSTREAM_MONGO_URI environment variable)")
	}
	if c.Mongo.Database == "" {
		errs = append(errs, "mongo.database is required")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Upload validation — the signed-URL handshake is meaningless without credentials.
	if c.Upload.Endpoint == "" {
		errs = append(errs, "upload.endpoint is required")
	}
	if c.Upload.APIKey == "" {
		errs = append(errs, "upload.api_key is required (set CLIPSTREAM_UPLOAD_API_KEY environment variable)")
	}
	if c.Upload.Secret == "" {
		errs = append(errs, "upload.secret is required (set CLIPSTREAM_UPLOAD_SECRET environment variable)")
	}

	// Security validation - JWT secret is REQUIRED.
	// Empty or weak secrets would allow attackers to forge session tokens.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set CLIPSTREAM_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetConnectTimeout returns the backing store connect timeout as a Duration.
func (c *MongoConfig) GetConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// GetSignatureTTL returns the upload signature lifetime as a Duration.
func (c *UploadConfig) GetSignatureTTL() time.Duration {
	return time.Duration(c.SignatureTTL) * time.Second
}
