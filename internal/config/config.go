package config

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	API     APIConfig
	Session SessionConfig
	Cache   CacheConfig
	Observe ObserveConfig
	Server  ServerConfig
}

// APIConfig describes the remote campus service.
type APIConfig struct {
	// URL is the origin of the remote service. The fixed "/api" prefix is
	// added by the gateway.
	URL     string        `env:"CAMPUS_API_URL, default=http://localhost:5000"`
	Timeout time.Duration `env:"CAMPUS_API_TIMEOUT, default=120s"`

	OutgoingHTTPMaxIdleConns    int `env:"CAMPUS_API_MAX_IDLE_CONNS, default=20"`
	OutgoingHTTPMaxConnsPerHost int `env:"CAMPUS_API_MAX_CONNS_PER_HOST, default=10"`
}

// SessionConfig specifies where the session is persisted.
type SessionConfig struct {
	// Type selects the storage backend: "file" (default), "memory" or "valkey".
	Type string `env:"SESSION_STORE, default=file"`

	// Key is the single namespaced key the session is stored under.
	Key string `env:"SESSION_KEY, default=smartcampus:session"`

	// Dir is the directory used by the file backend. Defaults to
	// $XDG_CONFIG_HOME/smartcampus (or the OS equivalent) when empty.
	Dir string `env:"SESSION_DIR"`

	// Valkey holds settings for the valkey backend.
	Valkey ValkeyConfig

	// Encryption holds settings for encrypting the session at rest.
	Encryption EncryptionConfig
}

// ValkeyConfig specifies the valkey connection.
type ValkeyConfig struct {
	// Address is the Valkey server address (host:port).
	Address string `env:"VALKEY_ADDRESS"`

	// TLS enables TLS connection to Valkey. Defaults to true so the secure option
	// is the default.
	TLS bool `env:"VALKEY_TLS, default=true"`

	Username string `env:"VALKEY_USERNAME"`
	Password string `env:"VALKEY_PASSWORD"`
}

// EncryptionConfig holds settings for session encryption.
type EncryptionConfig struct {
	Enabled bool `env:"SESSION_ENCRYPTION_ENABLED, default=false"`

	// KeysetFile is the path to a cleartext JSON Tink keyset.
	KeysetFile string `env:"SESSION_ENCRYPTION_KEYSET_FILE"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	TTL     time.Duration `env:"CACHE_TTL, default=5m"`
	MaxSize int           `env:"CACHE_MAX_SIZE, default=1000"`
}

type ObserveConfig struct {
	SDKLogLevel               string `env:"OBSERVE_OTEL_LOG_LEVEL, default=info"`
	Enabled                   bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled            bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                      string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName               string `env:"OBSERVE_SERVICE_NAME, default=campus-client"`
	TraceBatchTimeoutSeconds  int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HTTPTransportEnabled      bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
}

// ServerConfig is only used by the mock server.
type ServerConfig struct {
	Port                   int           `env:"SERVER_PORT, default=5000"`
	ShutdownTimeoutSeconds int           `env:"SERVER_SHUTDOWN_TIMEOUT_SECS, default=10"`
	SigningKey             string        `env:"SERVER_SIGNING_KEY, default=development-only-signing-key-change-me"`
	AccessTokenTTL         time.Duration `env:"SERVER_ACCESS_TOKEN_TTL, default=15m"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	err = cfg.API.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid API configuration: %w", err)
	}

	err = cfg.Session.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid session configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the API origin is usable.
func (c *APIConfig) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("CAMPUS_API_URL is not a valid URL: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("CAMPUS_API_URL must be an absolute URL: %s", c.URL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("CAMPUS_API_TIMEOUT must be positive")
	}
	return nil
}

// Validate checks that the session configuration is valid.
func (c *SessionConfig) Validate() error {
	switch c.Type {
	case "file", "memory":
	case "valkey":
		if c.Valkey.Address == "" {
			return fmt.Errorf("VALKEY_ADDRESS required when SESSION_STORE=valkey")
		}
	default:
		return fmt.Errorf("invalid SESSION_STORE %q: must be one of file, memory, valkey", c.Type)
	}

	if c.Key == "" {
		return fmt.Errorf("SESSION_KEY must not be empty")
	}

	if c.Encryption.Enabled && c.Encryption.KeysetFile == "" {
		return fmt.Errorf("SESSION_ENCRYPTION_KEYSET_FILE required when encryption enabled")
	}

	return nil
}
