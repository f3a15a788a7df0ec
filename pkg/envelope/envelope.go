// Package envelope defines the wire-level unit exchanged over the
// connection: a typed JSON record with a unique id, an arbitrary payload
// and an optional correlation id linking a response to its request.
package envelope

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"wirelink/pkg/errors"
)

// Reserved envelope types consumed by the transport layer. They are never
// forwarded to application subscribers.
const (
	TypePing = "ping"
	TypePong = "pong"
)

// Envelope is the structured record sent and received on the wire.
type Envelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlationId,omitempty"`
}

// New builds an envelope with a fresh id and the current timestamp. The
// payload is marshaled immediately so encoding failures surface at send
// time rather than on the write loop.
func New(msgType string, payload any) (Envelope, error) {
	env := Envelope{
		ID:        uuid.NewString(),
		Type:      msgType,
		Timestamp: time.Now().UTC(),
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, errors.NewError(errors.ErrorTypeBadRequest, "failed to encode payload").
				WithCause(err).
				WithDetail("type", msgType)
		}
		env.Payload = data
	}

	return env, nil
}

// NewCorrelated builds an envelope that answers or references another
// envelope via its correlation id.
func NewCorrelated(msgType string, payload any, correlationID string) (Envelope, error) {
	env, err := New(msgType, payload)
	if err != nil {
		return Envelope{}, err
	}
	env.CorrelationID = correlationID
	return env, nil
}

// IsReserved reports whether the envelope type is transport-internal.
func (e Envelope) IsReserved() bool {
	return e.Type == TypePing || e.Type == TypePong
}

// Encode serializes the envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "failed to encode envelope").WithCause(err)
	}
	return data, nil
}

// DecodePayload unmarshals the payload into target.
func (e Envelope) DecodePayload(target any) error {
	if len(e.Payload) == 0 {
		return errors.NewError(errors.ErrorTypeDecode, "envelope has no payload").
			WithDetail("id", e.ID).
			WithDetail("type", e.Type)
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.NewError(errors.ErrorTypeDecode, "failed to decode payload").
			WithCause(err).
			WithDetail("id", e.ID).
			WithDetail("type", e.Type)
	}
	return nil
}

// Decode parses raw transport data into an envelope. A frame that is not
// valid JSON, or that carries no type, is a decode error; the caller
// surfaces it without touching connection state.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, errors.NewError(errors.ErrorTypeDecode, "malformed envelope").WithCause(err)
	}
	if env.Type == "" {
		return Envelope{}, errors.NewError(errors.ErrorTypeDecode, "envelope missing type")
	}
	return env, nil
}
