// Package conn implements a resilient, bidirectional, message-oriented
// connection manager. It owns a single WebSocket transport and drives it
// through an explicit state machine: automatic reconnection with
// exponential backoff, envelope-level heartbeats with pong-timeout
// detection, an outbound queue replayed on reconnect, and a signal
// registry for observers.
package conn

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"wirelink/pkg/envelope"
	"wirelink/pkg/errors"
)

// Manager orchestrates the connection lifecycle and exposes the public
// contract: Connect, Send, Disconnect, Subscribe.
type Manager struct {
	cfg    Config
	logger *slog.Logger
	dialer Dialer
	sched  Scheduler

	events  *signalRegistry
	metrics *recorder

	mu              sync.Mutex
	state           State
	transport       Transport
	connID          string
	gen             uint64
	failures        int
	cancelReconnect func()
	hb              *heartbeat
	queue           *outboundQueue
}

// New creates a manager for the endpoint described by cfg. The manager
// starts disconnected; nothing happens until Connect.
func New(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	m := &Manager{
		cfg:    cfg,
		logger: logger,
		sched:  wallClock{},
		events: newSignalRegistry(),
		state:  StateDisconnected,
		queue:  newOutboundQueue(cfg.MaxQueueSize, cfg.OverflowPolicy),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = newWebsocketDialer(cfg, logger)
	}
	m.metrics = newRecorder(cfg.Registerer, func() time.Time { return m.sched.Now() })

	return m, nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnectionID returns the identity of the current transport session, or
// "" when not connected. It is regenerated on every successful handshake
// and exists purely for log correlation.
func (m *Manager) ConnectionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connID
}

// Metrics returns a snapshot of the manager's counters and gauges.
func (m *Manager) Metrics() Snapshot {
	m.mu.Lock()
	state := m.state
	depth := m.queue.len()
	dropped := m.queue.droppedCount()
	m.mu.Unlock()
	return m.metrics.snapshot(state, depth, dropped)
}

// On registers fn for a signal and returns an unsubscribe function.
// Handlers run synchronously, in registration order.
func (m *Manager) On(sig Signal, fn func(Event)) func() {
	return m.events.on(sig, fn)
}

// Subscribe registers fn for inbound envelopes of the given type.
// Reserved types (ping, pong) are never dispatched.
func (m *Manager) Subscribe(msgType string, fn func(envelope.Envelope)) func() {
	return m.events.on(MessageSignal(msgType), func(ev Event) {
		if ev.Envelope != nil {
			fn(*ev.Envelope)
		}
	})
}

// SubscribeAll registers fn for every inbound application envelope.
func (m *Manager) SubscribeAll(fn func(envelope.Envelope)) func() {
	return m.events.on(SignalMessage, func(ev Event) {
		if ev.Envelope != nil {
			fn(*ev.Envelope)
		}
	})
}

// Connect establishes the connection. It is a no-op while already
// connected or a handshake is in flight, so concurrent callers never open
// a second transport. A pending reconnection timer is superseded. The
// returned error reports only the initiating handshake's failure; recovery
// continues in the background via the reconnection scheduler.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected, StateConnecting:
		m.mu.Unlock()
		return nil
	}
	if m.cancelReconnect != nil {
		m.cancelReconnect()
		m.cancelReconnect = nil
	}
	// A manual connect starts a fresh reconnect budget.
	m.failures = 0
	from := m.transitionLocked(StateConnecting)
	m.mu.Unlock()

	m.emitStateChange(from, StateConnecting)
	return m.dial(ctx)
}

// Disconnect deliberately tears the connection down with the given close
// code (0 means normal closure). It cancels any pending reconnection and
// heartbeat timers before closing the transport, and disables automatic
// reconnection for this closure.
func (m *Manager) Disconnect(code int, reason string) error {
	if code == 0 {
		code = StatusNormalClosure
	}

	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	if m.cancelReconnect != nil {
		m.cancelReconnect()
		m.cancelReconnect = nil
	}
	if m.hb != nil {
		m.hb.stop()
		m.hb = nil
	}
	from := m.transitionLocked(StateDisconnecting)
	tr := m.transport
	m.transport = nil
	m.connID = ""
	m.failures = 0
	m.gen++ // events from the old transport are now stale
	m.metrics.markDisconnected()
	m.mu.Unlock()

	m.emitStateChange(from, StateDisconnecting)

	var closeErr error
	if tr != nil {
		closeErr = tr.Close(code, reason)
	}

	m.mu.Lock()
	from = m.transitionLocked(StateDisconnected)
	m.mu.Unlock()

	m.emitStateChange(from, StateDisconnected)
	m.events.emit(Event{Signal: SignalDisconnected, State: StateDisconnected, Code: code, Reason: reason})
	m.logger.Info("disconnected", "code", code, "reason", reason)

	return closeErr
}

// Send constructs an envelope and transmits it if connected, or queues it
// for replay on the next connection. Low-priority messages are silently
// dropped while not connected. The generated message id is returned in all
// cases; delivery is fire-and-forget. The only error is a payload that
// cannot be encoded.
func (m *Manager) Send(msgType string, payload any, opts ...SendOption) (string, error) {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	env, err := envelope.New(msgType, payload)
	if err != nil {
		return "", err
	}
	if o.correlationID != "" {
		env.CorrelationID = o.correlationID
	}

	m.sendEnvelope(env, o.priority)
	return env.ID, nil
}

// sendEnvelope routes an application envelope to the transport or the
// outbound queue.
func (m *Manager) sendEnvelope(env envelope.Envelope, priority Priority) {
	m.mu.Lock()
	if m.state == StateConnected && m.transport != nil && m.queue.len() == 0 {
		tr := m.transport
		m.mu.Unlock()

		if err := m.write(tr, env); err != nil {
			// The transport is going down; the read loop will notice and
			// route recovery. Keep the message unless it is best-effort.
			m.logger.Warn("send failed, requeueing", "id", env.ID, "type", env.Type, "error", err)
			m.events.emit(Event{Signal: SignalError, Err: err})
			if priority != PriorityLow {
				m.enqueue(env, priority)
			} else {
				m.metrics.markDropped()
			}
			return
		}

		m.metrics.markSent()
		m.events.emit(Event{Signal: SignalMessageSent, Envelope: &env})
		return
	}

	connected := m.state == StateConnected && m.transport != nil
	m.mu.Unlock()

	if priority == PriorityLow && !connected {
		m.logger.Debug("dropping low priority message while not connected", "id", env.ID, "type", env.Type)
		m.metrics.markDropped()
		return
	}

	m.enqueue(env, priority)
	if connected {
		// A backlog exists; preserve FIFO order by draining instead of
		// writing directly.
		m.drainQueue()
	}
}

func (m *Manager) enqueue(env envelope.Envelope, priority Priority) {
	m.mu.Lock()
	evicted, ok := m.queue.enqueue(queueEntry{env: env, priority: priority})
	depth := m.queue.len()
	m.mu.Unlock()

	m.metrics.setQueueDepth(depth)
	if !ok {
		m.metrics.markDropped()
		m.logger.Warn("outbound queue full, rejecting message", "id", env.ID, "type", env.Type)
		return
	}
	if evicted != nil {
		m.metrics.markDropped()
		m.logger.Warn("outbound queue full, dropped oldest message",
			"dropped_id", evicted.env.ID, "dropped_type", evicted.env.Type)
	}
	m.logger.Debug("queued message", "id", env.ID, "type", env.Type, "priority", priority, "depth", depth)
}

// dial performs one handshake attempt from StateConnecting and finishes
// the transition either way.
func (m *Manager) dial(ctx context.Context) error {
	dialCtx := ctx
	if m.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
		defer cancel()
	}

	tr, err := m.dialer.Dial(dialCtx, m.cfg.Endpoint, m.cfg.Subprotocols, m.cfg.Headers)
	if err != nil {
		m.handleDialFailure(err)
		return err
	}

	m.mu.Lock()
	if m.state != StateConnecting {
		// Disconnected while the handshake was in flight.
		m.mu.Unlock()
		_ = tr.Close(StatusNormalClosure, "superseded")
		return nil
	}
	m.transport = tr
	m.gen++
	gen := m.gen
	m.connID = uuid.NewString()
	m.failures = 0
	connID := m.connID
	hb := newHeartbeat(m.cfg.HeartbeatInterval, m.sched,
		func() { m.sendPing(gen) },
		func() { m.heartbeatExpired(gen) },
	)
	m.hb = hb
	m.metrics.markConnected()
	from := m.transitionLocked(StateConnected)
	m.mu.Unlock()

	m.logger.Info("connected", "connection_id", connID, "endpoint", m.cfg.Endpoint)
	m.emitStateChange(from, StateConnected)
	m.events.emit(Event{Signal: SignalConnected, State: StateConnected, ConnectionID: connID})

	hb.start()
	m.drainQueue()
	go m.readLoop(tr, gen)

	return nil
}

func (m *Manager) handleDialFailure(err error) {
	m.mu.Lock()
	if m.state != StateConnecting {
		m.mu.Unlock()
		return
	}
	from := m.transitionLocked(StateError)
	m.mu.Unlock()

	m.logger.Warn("handshake failed", "endpoint", m.cfg.Endpoint, "error", err)
	m.emitStateChange(from, StateError)
	m.events.emit(Event{Signal: SignalError, State: StateError, Err: err})

	m.scheduleReconnect()
}

// scheduleReconnect arms the backoff timer for the next attempt, or
// settles terminally when the budget is exhausted. Scheduling while a
// timer is already pending is a no-op.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.cancelReconnect != nil || m.state == StateDisconnecting {
		m.mu.Unlock()
		return
	}

	m.failures++
	attempt := m.failures

	if m.cfg.MaxReconnectAttempts == 0 || attempt > m.cfg.MaxReconnectAttempts {
		from := m.transitionLocked(StateDisconnected)
		m.mu.Unlock()

		m.emitStateChange(from, StateDisconnected)
		err := errors.NewError(errors.ErrorTypeUnavailable, "reconnect attempts exhausted").
			WithDetail("attempts", m.cfg.MaxReconnectAttempts)
		m.events.emit(Event{Signal: SignalReconnectFailed, State: StateDisconnected, Attempt: attempt - 1, Err: err})
		m.logger.Error("giving up on reconnection", "attempts", m.cfg.MaxReconnectAttempts)
		return
	}

	delay := backoffDelay(m.cfg.BaseReconnectDelay, attempt)
	from := m.transitionLocked(StateReconnecting)
	m.cancelReconnect = m.sched.ScheduleOnce(delay, m.reconnectNow)
	m.mu.Unlock()

	m.metrics.markReconnection()
	m.emitStateChange(from, StateReconnecting)
	m.events.emit(Event{Signal: SignalReconnecting, State: StateReconnecting, Attempt: attempt, Delay: delay})
	m.logger.Info("reconnecting", "attempt", attempt, "max", m.cfg.MaxReconnectAttempts, "delay", delay)
}

// reconnectNow runs when the backoff timer fires.
func (m *Manager) reconnectNow() {
	m.mu.Lock()
	m.cancelReconnect = nil
	if m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	from := m.transitionLocked(StateConnecting)
	m.mu.Unlock()

	m.emitStateChange(from, StateConnecting)
	_ = m.dial(context.Background())
}

// readLoop pumps the transport until it fails or is superseded.
func (m *Manager) readLoop(tr Transport, gen uint64) {
	for {
		data, err := tr.ReadMessage()
		if err != nil {
			m.handleTransportClose(gen, err)
			return
		}
		m.handleInbound(gen, data)
	}
}

// handleInbound decodes one frame and dispatches it. Decoding failure is
// non-fatal and never changes connection state.
func (m *Manager) handleInbound(gen uint64, data []byte) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	hb := m.hb
	m.mu.Unlock()

	m.metrics.markActivity()

	env, err := envelope.Decode(data)
	if err != nil {
		m.logger.Warn("malformed inbound message", "error", err, "size", len(data))
		m.events.emit(Event{Signal: SignalMessageError, Err: err, Raw: data})
		return
	}

	switch env.Type {
	case envelope.TypePong:
		if hb != nil {
			hb.pongReceived()
		}
		return
	case envelope.TypePing:
		// Answer the remote's liveness probe; neither side of the pair is
		// surfaced to subscribers.
		if pong, err := envelope.NewCorrelated(envelope.TypePong, nil, env.ID); err == nil {
			m.transmitReserved(pong)
		}
		return
	}

	m.metrics.markReceived()
	m.events.emit(Event{Signal: SignalMessage, Envelope: &env})
	m.events.emit(Event{Signal: MessageSignal(env.Type), Envelope: &env})
}

// handleTransportClose routes a transport failure reported by the read
// loop. Closures from superseded transports are ignored.
func (m *Manager) handleTransportClose(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	if m.hb != nil {
		m.hb.stop()
		m.hb = nil
	}
	m.transport = nil
	m.connID = ""
	m.metrics.markDisconnected()

	code, reason, clean := isCleanClose(err)
	if clean {
		from := m.transitionLocked(StateDisconnected)
		m.mu.Unlock()

		m.logger.Info("connection closed by remote", "code", code, "reason", reason)
		m.emitStateChange(from, StateDisconnected)
		m.events.emit(Event{Signal: SignalDisconnected, State: StateDisconnected, Code: code, Reason: reason})
		return
	}
	m.mu.Unlock()

	m.logger.Warn("connection lost", "code", code, "reason", reason, "error", err)
	m.events.emit(Event{Signal: SignalDisconnected, Code: code, Reason: reason, Err: err})
	m.events.emit(Event{Signal: SignalError, Err: err})

	m.scheduleReconnect()
}

// sendPing transmits a heartbeat probe for the given transport session.
func (m *Manager) sendPing(gen uint64) {
	m.mu.Lock()
	stale := gen != m.gen || m.state != StateConnected
	m.mu.Unlock()
	if stale {
		return
	}

	ping, err := envelope.New(envelope.TypePing, nil)
	if err != nil {
		return
	}
	m.transmitReserved(ping)
}

// heartbeatExpired force-closes a connection whose pings go unanswered and
// routes it through the unexpected-closure path.
func (m *Manager) heartbeatExpired(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	tr := m.transport
	m.mu.Unlock()

	m.logger.Warn("heartbeat timed out, forcing close", "interval", m.cfg.HeartbeatInterval)
	if tr != nil {
		_ = tr.Close(StatusNormalClosure, "heartbeat timeout")
	}

	err := errors.NewError(errors.ErrorTypeTimeout, "no pong within heartbeat interval")
	m.handleTransportClose(gen, err)
}

// transmitReserved writes a transport-internal envelope (ping/pong). It
// does not touch the messagesSent counter.
func (m *Manager) transmitReserved(env envelope.Envelope) {
	m.mu.Lock()
	tr := m.transport
	connected := m.state == StateConnected
	m.mu.Unlock()
	if !connected || tr == nil {
		return
	}
	if err := m.write(tr, env); err != nil {
		m.logger.Debug("failed to write control envelope", "type", env.Type, "error", err)
	}
}

// write encodes and writes one envelope on tr.
func (m *Manager) write(tr Transport, env envelope.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	if err := tr.WriteMessage(data); err != nil {
		return err
	}
	m.metrics.markActivity()
	return nil
}

// drainQueue flushes the outbound queue in FIFO order. A failed write
// stops the drain and leaves the remainder queued for the next successful
// connection.
func (m *Manager) drainQueue() {
	for {
		m.mu.Lock()
		if m.state != StateConnected || m.transport == nil {
			m.mu.Unlock()
			return
		}
		entry, ok := m.queue.popFront()
		tr := m.transport
		depth := m.queue.len()
		m.mu.Unlock()

		if !ok {
			m.metrics.setQueueDepth(0)
			return
		}

		if err := m.write(tr, entry.env); err != nil {
			m.mu.Lock()
			m.queue.pushFront(entry)
			depth = m.queue.len()
			m.mu.Unlock()

			m.metrics.setQueueDepth(depth)
			m.logger.Warn("queue drain interrupted", "remaining", depth, "error", err)
			m.events.emit(Event{Signal: SignalError, Err: err})
			return
		}

		m.metrics.setQueueDepth(depth)
		m.metrics.markSent()
		m.events.emit(Event{Signal: SignalMessageSent, Envelope: &entry.env})
	}
}

// transitionLocked changes state under the manager lock and returns the
// previous state. Callers emit the stateChange event after unlocking.
func (m *Manager) transitionLocked(to State) State {
	from := m.state
	m.state = to
	m.metrics.setState(to)
	return from
}

func (m *Manager) emitStateChange(from, to State) {
	if from == to {
		return
	}
	m.logger.Debug("state change", "from", from, "to", to)
	m.events.emit(Event{Signal: SignalStateChange, Previous: from, State: to})
}
