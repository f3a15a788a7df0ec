package config

import (
	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultConfigYAML string

// LoadDefault loads the default embedded configuration
func LoadDefault() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in the values a partial config file leaves out.
func applyDefaults(cfg *Config) {
	client := &cfg.Wirelink.Client
	if client.MaxReconnectAttempts == 0 {
		client.MaxReconnectAttempts = 10
	}
	if client.BaseReconnectDelayMs == 0 {
		client.BaseReconnectDelayMs = 1000
	}
	if client.HeartbeatIntervalMs == 0 {
		client.HeartbeatIntervalMs = 30000
	}
	if client.HandshakeTimeoutMs == 0 {
		client.HandshakeTimeoutMs = 5000
	}
	if client.Queue.MaxSize == 0 {
		client.Queue.MaxSize = 1024
	}
	if client.Queue.OverflowPolicy == "" {
		client.Queue.OverflowPolicy = "dropOldest"
	}

	server := &cfg.Wirelink.Server
	if server.Port == 0 {
		server.Port = 9090
	}
	if server.ReadTimeout == 0 {
		server.ReadTimeout = 15
	}
	if server.WriteTimeout == 0 {
		server.WriteTimeout = 15
	}

	if cfg.Wirelink.Logging.Level == "" {
		cfg.Wirelink.Logging.Level = "info"
	}
	if cfg.Wirelink.Logging.Format == "" {
		cfg.Wirelink.Logging.Format = "text"
	}

	tel := &cfg.Wirelink.Telemetry
	if tel.ServiceName == "" {
		tel.ServiceName = "wirelink"
	}
	if tel.Tracing.SamplingRate == 0 {
		tel.Tracing.SamplingRate = 1.0
	}
	if tel.Metrics.Path == "" {
		tel.Metrics.Path = "/metrics"
	}
}
