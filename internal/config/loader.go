package config

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"wirelink/pkg/errors"
)

// Loader loads configuration from file
type Loader struct {
	path       string
	envEnabled bool
}

// NewLoader creates a config loader
func NewLoader(path string) *Loader {
	return &Loader{
		path:       path,
		envEnabled: true, // Enable env vars by default
	}
}

// WithEnvVars enables or disables environment variable loading
func (l *Loader) WithEnvVars(enabled bool) *Loader {
	l.envEnabled = enabled
	return l
}

// Load loads the configuration
func (l *Loader) Load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "failed to read config file").WithCause(err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "failed to parse config").WithCause(err)
	}

	applyDefaults(&cfg)

	// Override with environment variables if enabled
	if l.envEnabled {
		if err := LoadEnv(&cfg); err != nil {
			return nil, errors.NewError(errors.ErrorTypeInternal, "failed to load env vars").WithCause(err)
		}
	}

	if err := Validate(&cfg); err != nil {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, "invalid configuration").WithCause(err)
	}

	return &cfg, nil
}

// Validate checks the configuration for values the daemon cannot run with.
func Validate(cfg *Config) error {
	client := &cfg.Wirelink.Client

	if client.Endpoint == "" {
		return fmt.Errorf("client endpoint is required")
	}
	u, err := url.Parse(client.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid client endpoint: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("client endpoint scheme must be ws or wss, got %q", u.Scheme)
	}

	if client.MaxReconnectAttempts < -1 {
		return fmt.Errorf("maxReconnectAttempts must be >= -1")
	}
	if client.BaseReconnectDelayMs < 0 || client.HeartbeatIntervalMs < 0 || client.HandshakeTimeoutMs < 0 {
		return fmt.Errorf("client durations must be non-negative")
	}
	if client.Queue.MaxSize < 0 {
		return fmt.Errorf("queue maxSize must be >= 0")
	}
	switch client.Queue.OverflowPolicy {
	case "", "dropOldest", "reject":
	default:
		return fmt.Errorf("unknown queue overflow policy: %s", client.Queue.OverflowPolicy)
	}

	server := &cfg.Wirelink.Server
	if server.Port <= 0 || server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", server.Port)
	}

	if cfg.Wirelink.Telemetry.Tracing.Enabled && cfg.Wirelink.Telemetry.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}

	return nil
}
