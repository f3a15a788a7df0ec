package conn

import "time"

// maxReconnectDelay caps the exponential backoff between reconnection
// attempts.
const maxReconnectDelay = 30 * time.Second

// backoffDelay computes the delay before reconnection attempt number
// attempt (1-based): base * 2^(attempt-1), capped at maxReconnectDelay.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	shift := uint(attempt - 1)
	// Past 62 doublings the shift itself overflows int64.
	if shift > 62 {
		return maxReconnectDelay
	}

	delay := base << shift
	if delay > maxReconnectDelay || delay < base {
		return maxReconnectDelay
	}
	return delay
}
