package conn

import (
	"sync"
	"time"

	"wirelink/pkg/envelope"
)

// Signal names the observer events a manager emits. Per-type message
// signals use the form "message:<type>"; see MessageSignal.
type Signal string

const (
	SignalConnected       Signal = "connected"
	SignalDisconnected    Signal = "disconnected"
	SignalReconnecting    Signal = "reconnecting"
	SignalReconnectFailed Signal = "reconnectFailed"
	SignalStateChange     Signal = "stateChange"
	SignalMessage         Signal = "message"
	SignalMessageSent     Signal = "messageSent"
	SignalMessageError    Signal = "messageError"
	SignalError           Signal = "error"
)

// MessageSignal returns the per-type inbound message signal.
func MessageSignal(msgType string) Signal {
	return Signal("message:" + msgType)
}

// Event carries the context of an emitted signal. Only the fields relevant
// to the signal are populated.
type Event struct {
	Signal   Signal
	State    State
	Previous State

	// Envelope is set on message, messageSent and per-type signals.
	Envelope *envelope.Envelope

	// Raw is the undecodable frame on messageError.
	Raw []byte

	// Err is set on error, messageError and reconnectFailed.
	Err error

	// Attempt and Delay describe a scheduled reconnection.
	Attempt int
	Delay   time.Duration

	// Code and Reason describe a closure.
	Code   int
	Reason string

	// ConnectionID identifies the transport session on connected events.
	ConnectionID string
}

type subscription struct {
	id uint64
	fn func(Event)
}

// signalRegistry is a per-manager callback registry keyed by signal name.
// Handlers for a signal run synchronously in registration order.
type signalRegistry struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[Signal][]subscription
}

func newSignalRegistry() *signalRegistry {
	return &signalRegistry{
		handlers: make(map[Signal][]subscription),
	}
}

// on registers fn for sig and returns an unsubscribe function.
func (r *signalRegistry) on(sig Signal, fn func(Event)) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.handlers[sig] = append(r.handlers[sig], subscription{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.handlers[sig]
		for i, s := range subs {
			if s.id == id {
				r.handlers[sig] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// emit invokes every handler registered for ev.Signal. The handler list is
// snapshotted under the lock; handlers run outside it so they may
// subscribe, unsubscribe or send.
func (r *signalRegistry) emit(ev Event) {
	r.mu.Lock()
	subs := r.handlers[ev.Signal]
	snapshot := make([]subscription, len(subs))
	copy(snapshot, subs)
	r.mu.Unlock()

	for _, s := range snapshot {
		s.fn(ev)
	}
}
