// Package transport dials and wraps the WebSocket connection to the remote
// endpoint. It exposes framed reads and writes; envelope semantics live in
// the manager above it.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"wirelink/pkg/errors"
)

// StatusNormalClosure is the close code signaling a deliberate, expected
// shutdown. Every other code is treated as an unexpected loss.
const StatusNormalClosure = websocket.CloseNormalClosure

// CloseError reports that the remote endpoint closed the connection with a
// status code and optional reason.
type CloseError struct {
	Code   int
	Reason string
}

// Error implements the error interface.
func (e *CloseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("connection closed: code %d: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("connection closed: code %d", e.Code)
}

// Clean reports whether the closure used the expected shutdown code.
func (e *CloseError) Clean() bool {
	return e.Code == StatusNormalClosure
}

// Config holds transport configuration
type Config struct {
	HandshakeTimeout time.Duration
	ConnectTimeout   time.Duration
	WriteTimeout     time.Duration
	ReadBufferSize   int
	WriteBufferSize  int
	MaxMessageSize   int64
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout: 5 * time.Second,
		ConnectTimeout:   5 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		MaxMessageSize:   1024 * 1024, // 1MB
	}
}

// Dialer establishes WebSocket connections to the remote endpoint
type Dialer struct {
	config *Config
	logger *slog.Logger
}

// NewDialer creates a new transport dialer
func NewDialer(config *Config, logger *slog.Logger) *Dialer {
	if config == nil {
		config = DefaultConfig()
	}
	return &Dialer{
		config: config,
		logger: logger,
	}
}

// Dial performs the transport handshake. The caller bounds the handshake
// with ctx; a deadline hit is reported as a timeout error.
func (d *Dialer) Dial(ctx context.Context, endpoint string, subprotocols []string, headers http.Header) (*Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, "invalid endpoint").WithCause(err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, errors.NewError(errors.ErrorTypeBadRequest, "endpoint scheme must be ws or wss").
			WithDetail("scheme", u.Scheme)
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: d.config.HandshakeTimeout,
		ReadBufferSize:   d.config.ReadBufferSize,
		WriteBufferSize:  d.config.WriteBufferSize,
		Subprotocols:     subprotocols,
		NetDialContext: (&net.Dialer{
			Timeout: d.config.ConnectTimeout,
		}).DialContext,
	}

	d.logger.Debug("dialing endpoint", "url", u.String())

	wsConn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewError(errors.ErrorTypeTimeout, "handshake timed out").WithCause(err)
		}
		dialErr := errors.NewError(errors.ErrorTypeUnavailable, "handshake failed").WithCause(err)
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			dialErr.WithDetail("status", resp.StatusCode)
		}
		d.logger.Debug("handshake failed", "url", u.String(), "error", err)
		return nil, dialErr
	}

	wsConn.SetReadLimit(d.config.MaxMessageSize)

	return &Conn{
		conn:         wsConn,
		writeTimeout: d.config.WriteTimeout,
		logger:       d.logger,
	}, nil
}

// Conn is an established WebSocket connection carrying framed messages.
type Conn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       *slog.Logger

	mu sync.Mutex
}

// ReadMessage blocks until the next data frame arrives. Remote closure is
// returned as *CloseError; any other failure means the connection is lost.
func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				return nil, &CloseError{Code: ce.Code, Reason: ce.Text}
			}
			return nil, errors.NewError(errors.ErrorTypeUnavailable, "connection lost").WithCause(err)
		}

		switch msgType {
		case websocket.TextMessage, websocket.BinaryMessage:
			return data, nil
		default:
			// Control frames are handled by gorilla's handlers.
			continue
		}
	}
}

// WriteMessage writes one framed message.
func (c *Conn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return errors.NewError(errors.ErrorTypeInternal, "failed to set write deadline").WithCause(err)
		}
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.NewError(errors.ErrorTypeUnavailable, "failed to write message").WithCause(err)
	}
	return nil
}

// Close sends a close frame with the given status and tears the
// connection down.
func (c *Conn) Close(code int, reason string) error {
	if code == 0 {
		code = StatusNormalClosure
	}

	c.mu.Lock()
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		c.logger.Debug("failed to write close frame", "error", err)
	}
	c.mu.Unlock()

	if err := c.conn.Close(); err != nil {
		return errors.NewError(errors.ErrorTypeInternal, "failed to close connection").WithCause(err)
	}
	return nil
}

// RemoteAddr returns the remote address
func (c *Conn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
