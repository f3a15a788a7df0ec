package config

import (
	"net/http"
	"time"

	"wirelink/pkg/conn"
)

// Config holds wirelink configuration
type Config struct {
	Wirelink Wirelink `yaml:"wirelink"`
}

// Wirelink configuration
type Wirelink struct {
	Client    Client    `yaml:"client"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Client configures the managed connection. Durations are in milliseconds.
type Client struct {
	Endpoint     string   `yaml:"endpoint"`
	Subprotocols []string `yaml:"subprotocols"`

	// Extra headers sent with the handshake request.
	Headers map[string]string `yaml:"headers"`

	// MaxReconnectAttempts bounds consecutive reconnection attempts.
	// -1 disables automatic reconnection; 0 means the default.
	MaxReconnectAttempts int `yaml:"maxReconnectAttempts"`

	BaseReconnectDelayMs int `yaml:"baseReconnectDelayMs"`
	HeartbeatIntervalMs  int `yaml:"heartbeatIntervalMs"`
	HandshakeTimeoutMs   int `yaml:"handshakeTimeoutMs"`

	Queue Queue `yaml:"queue"`
}

// Queue configures the outbound message queue
type Queue struct {
	// MaxSize caps the queue; 0 means unbounded.
	MaxSize int `yaml:"maxSize"`

	// OverflowPolicy is "dropOldest" or "reject".
	OverflowPolicy string `yaml:"overflowPolicy"`
}

// Server configures the local HTTP surface (metrics and health endpoints)
type Server struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
}

// Logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Telemetry configuration
type Telemetry struct {
	ServiceName string  `yaml:"serviceName"`
	Tracing     Tracing `yaml:"tracing"`
	Metrics     Metrics `yaml:"metrics"`
}

// Tracing configuration
type Tracing struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// Metrics configuration
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ToConnConfig converts the client section to a conn.Config.
func (c *Client) ToConnConfig() conn.Config {
	var headers http.Header
	if len(c.Headers) > 0 {
		headers = make(http.Header, len(c.Headers))
		for k, v := range c.Headers {
			headers.Set(k, v)
		}
	}

	policy := conn.OverflowDropOldest
	if c.Queue.OverflowPolicy == "reject" {
		policy = conn.OverflowReject
	}

	attempts := c.MaxReconnectAttempts
	if attempts < 0 {
		attempts = 0 // reconnection disabled
	}

	return conn.Config{
		Endpoint:             c.Endpoint,
		Subprotocols:         c.Subprotocols,
		Headers:              headers,
		MaxReconnectAttempts: attempts,
		BaseReconnectDelay:   time.Duration(c.BaseReconnectDelayMs) * time.Millisecond,
		HeartbeatInterval:    time.Duration(c.HeartbeatIntervalMs) * time.Millisecond,
		HandshakeTimeout:     time.Duration(c.HandshakeTimeoutMs) * time.Millisecond,
		MaxQueueSize:         c.Queue.MaxSize,
		OverflowPolicy:       policy,
	}
}
