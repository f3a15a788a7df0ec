package conn

import (
	"context"

	"wirelink/pkg/envelope"
	"wirelink/pkg/errors"
)

// Request sends an envelope and waits for the first inbound envelope whose
// correlation id matches the request's id. The wait is bounded by ctx; the
// request itself follows normal Send semantics (queued if not connected),
// so callers should set a deadline.
func (m *Manager) Request(ctx context.Context, msgType string, payload any) (envelope.Envelope, error) {
	env, err := envelope.New(msgType, payload)
	if err != nil {
		return envelope.Envelope{}, err
	}

	replies := make(chan envelope.Envelope, 1)
	unsub := m.SubscribeAll(func(in envelope.Envelope) {
		if in.CorrelationID == env.ID {
			select {
			case replies <- in:
			default:
			}
		}
	})
	defer unsub()

	m.sendEnvelope(env, PriorityNormal)

	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		return envelope.Envelope{}, errors.NewError(errors.ErrorTypeTimeout, "request timed out").
			WithCause(ctx.Err()).
			WithDetail("id", env.ID).
			WithDetail("type", msgType)
	}
}
