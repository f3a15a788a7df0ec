package conn

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"wirelink/internal/transport"
)

// Transport is the single connection handle owned by the manager. No other
// component touches it directly.
type Transport interface {
	// ReadMessage blocks until the next framed message arrives.
	ReadMessage() ([]byte, error)

	// WriteMessage writes one framed message.
	WriteMessage(data []byte) error

	// Close shuts the connection down with a status code and reason.
	Close(code int, reason string) error
}

// Dialer performs the transport handshake.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, subprotocols []string, headers http.Header) (Transport, error)
}

// CloseError is the error a Transport read returns when the remote closed
// the connection with a status code.
type CloseError = transport.CloseError

// StatusNormalClosure is the one close code treated as a clean, expected
// shutdown; it suppresses automatic reconnection.
const StatusNormalClosure = transport.StatusNormalClosure

// isCleanClose reports whether err represents a closure with the expected
// shutdown code. Transport-level errors and every other close code count
// as unexpected.
func isCleanClose(err error) (code int, reason string, clean bool) {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Reason, ce.Clean()
	}
	return 0, "", false
}

// websocketDialer adapts the gorilla-based transport dialer to the Dialer
// interface.
type websocketDialer struct {
	dialer *transport.Dialer
}

func newWebsocketDialer(cfg Config, logger *slog.Logger) Dialer {
	tc := transport.DefaultConfig()
	tc.HandshakeTimeout = cfg.HandshakeTimeout
	tc.ConnectTimeout = cfg.HandshakeTimeout
	return &websocketDialer{
		dialer: transport.NewDialer(tc, logger),
	}
}

func (d *websocketDialer) Dial(ctx context.Context, endpoint string, subprotocols []string, headers http.Header) (Transport, error) {
	c, err := d.dialer.Dial(ctx, endpoint, subprotocols, headers)
	if err != nil {
		return nil, err
	}
	return c, nil
}
