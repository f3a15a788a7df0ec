package health

import (
	"context"
	"fmt"
	"time"

	"wirelink/pkg/conn"
)

// ConnectionCheck reports unhealthy when the managed connection has
// settled into a terminal state. Transient states (connecting,
// reconnecting) count as healthy so restarts during backoff are not
// flapped by orchestrators.
func ConnectionCheck(m *conn.Manager) Check {
	return func(ctx context.Context) error {
		switch state := m.State(); state {
		case conn.StateConnected, conn.StateConnecting, conn.StateReconnecting, conn.StateDisconnecting:
			return nil
		default:
			return fmt.Errorf("connection is %s", state)
		}
	}
}

// ActivityCheck reports unhealthy when no traffic (including heartbeats)
// has moved for longer than maxIdle. Zero activity before the first
// connect is not an error.
func ActivityCheck(m *conn.Manager, maxIdle time.Duration) Check {
	return func(ctx context.Context) error {
		snap := m.Metrics()
		if snap.LastActivity.IsZero() {
			return nil
		}
		if idle := time.Since(snap.LastActivity); idle > maxIdle {
			return fmt.Errorf("no traffic for %s", idle.Round(time.Second))
		}
		return nil
	}
}

// QueueCheck reports degraded pressure as unhealthy once the outbound
// queue holds at least threshold messages.
func QueueCheck(m *conn.Manager, threshold int) Check {
	return func(ctx context.Context) error {
		if depth := m.Metrics().QueueDepth; threshold > 0 && depth >= threshold {
			return fmt.Errorf("outbound queue depth %d exceeds %d", depth, threshold)
		}
		return nil
	}
}

// CustomCheck allows creating custom health checks
func CustomCheck(name string, checkFunc func() error) Check {
	return func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() {
			done <- checkFunc()
		}()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return fmt.Errorf("check timeout: %w", ctx.Err())
		}
	}
}
