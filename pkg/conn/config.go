package conn

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"wirelink/pkg/errors"
)

// Defaults applied by DefaultConfig.
const (
	DefaultMaxReconnectAttempts = 10
	DefaultBaseReconnectDelay   = time.Second
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultHandshakeTimeout     = 5 * time.Second
	DefaultMaxQueueSize         = 1024
)

// Config holds the immutable configuration a manager is constructed with.
type Config struct {
	// Endpoint is the ws:// or wss:// address of the remote endpoint.
	Endpoint string

	// Subprotocols is the optional sub-protocol list offered during the
	// handshake.
	Subprotocols []string

	// Headers are extra HTTP headers sent with the handshake request.
	Headers http.Header

	// MaxReconnectAttempts bounds consecutive reconnection attempts after
	// an unexpected loss. 0 disables automatic reconnection.
	MaxReconnectAttempts int

	// BaseReconnectDelay seeds the exponential backoff.
	BaseReconnectDelay time.Duration

	// HeartbeatInterval is the period between liveness pings while
	// connected.
	HeartbeatInterval time.Duration

	// HandshakeTimeout bounds a single transport handshake. A timeout is
	// treated identically to a handshake failure.
	HandshakeTimeout time.Duration

	// MaxQueueSize caps the outbound queue. 0 means unbounded.
	MaxQueueSize int

	// OverflowPolicy decides what a full queue does with a new message.
	OverflowPolicy OverflowPolicy

	// Logger receives structured logs. Nil discards them.
	Logger *slog.Logger

	// Registerer, when set, receives the manager's Prometheus collectors.
	Registerer prometheus.Registerer
}

// DefaultConfig returns a config for endpoint with the standard defaults.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:             endpoint,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		BaseReconnectDelay:   DefaultBaseReconnectDelay,
		HeartbeatInterval:    DefaultHeartbeatInterval,
		HandshakeTimeout:     DefaultHandshakeTimeout,
		MaxQueueSize:         DefaultMaxQueueSize,
		OverflowPolicy:       OverflowDropOldest,
	}
}

func (c *Config) validate() error {
	if c.Endpoint == "" {
		return errors.NewError(errors.ErrorTypeBadRequest, "endpoint is required")
	}
	if c.MaxReconnectAttempts < 0 {
		return errors.NewError(errors.ErrorTypeBadRequest, "maxReconnectAttempts must be >= 0")
	}
	if c.BaseReconnectDelay < 0 || c.HeartbeatInterval < 0 || c.HandshakeTimeout < 0 {
		return errors.NewError(errors.ErrorTypeBadRequest, "durations must be non-negative")
	}
	if c.MaxQueueSize < 0 {
		return errors.NewError(errors.ErrorTypeBadRequest, "maxQueueSize must be >= 0")
	}
	return nil
}

// Option customizes a manager at construction time.
type Option func(*Manager)

// WithDialer replaces the default WebSocket dialer. Used by tests and by
// applications with custom transports.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithScheduler replaces the wall-clock timer scheduler.
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) { m.sched = s }
}

// SendOption customizes a single Send call.
type SendOption func(*sendOptions)

type sendOptions struct {
	priority      Priority
	correlationID string
}

// WithPriority sets the message priority. Low-priority messages are
// dropped instead of queued while disconnected.
func WithPriority(p Priority) SendOption {
	return func(o *sendOptions) { o.priority = p }
}

// WithCorrelationID links the outgoing envelope to a previous one.
func WithCorrelationID(id string) SendOption {
	return func(o *sendOptions) { o.correlationID = id }
}
