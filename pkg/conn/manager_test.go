package conn

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"wirelink/pkg/envelope"
)

func testConfig() Config {
	return Config{
		Endpoint:             "ws://example.test/stream",
		MaxReconnectAttempts: 3,
		BaseReconnectDelay:   time.Second,
	}
}

func newTestManager(t *testing.T, cfg Config, d *fakeDialer) (*Manager, *fakeScheduler) {
	t.Helper()
	s := newFakeScheduler()
	m, err := New(cfg, WithDialer(d), WithScheduler(s))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m, s
}

// eventLog records emitted events for later inspection.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func captureEvents(m *Manager, sigs ...Signal) *eventLog {
	l := &eventLog{}
	for _, sig := range sigs {
		m.On(sig, l.record)
	}
	return l
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) count(sig Signal) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Signal == sig {
			n++
		}
	}
	return n
}

func (l *eventLog) last(sig Signal) (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Signal == sig {
			return l.events[i], true
		}
	}
	return Event{}, false
}

func (l *eventLog) waitFor(t *testing.T, sig Signal) Event {
	t.Helper()
	if !waitFor(2*time.Second, func() bool { return l.count(sig) > 0 }) {
		t.Fatalf("timed out waiting for signal %q", sig)
	}
	ev, _ := l.last(sig)
	return ev
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing endpoint", Config{}},
		{"negative attempts", Config{Endpoint: "ws://x", MaxReconnectAttempts: -1}},
		{"negative delay", Config{Endpoint: "ws://x", BaseReconnectDelay: -time.Second}},
		{"negative heartbeat", Config{Endpoint: "ws://x", HeartbeatInterval: -time.Second}},
		{"negative queue", Config{Endpoint: "ws://x", MaxQueueSize: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConnectSuccess(t *testing.T) {
	tr := newFakeTransport()
	d := newFakeDialer(dialOK(tr))
	m, _ := newTestManager(t, testConfig(), d)
	log := captureEvents(m, SignalConnected, SignalStateChange)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if got := m.State(); got != StateConnected {
		t.Errorf("State() = %v, want connected", got)
	}
	if m.ConnectionID() == "" {
		t.Error("expected a connection identity after handshake")
	}
	ev := log.waitFor(t, SignalConnected)
	if ev.ConnectionID != m.ConnectionID() {
		t.Errorf("connected event id = %q, want %q", ev.ConnectionID, m.ConnectionID())
	}
	if d.dialCount() != 1 {
		t.Errorf("dialCount() = %d, want 1", d.dialCount())
	}
}

func TestConnectIdempotentWhileConnected(t *testing.T) {
	tr := newFakeTransport()
	d := newFakeDialer(dialOK(tr))
	m, _ := newTestManager(t, testConfig(), d)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}

	if d.dialCount() != 1 {
		t.Errorf("dialCount() = %d, want 1", d.dialCount())
	}
}

func TestConnectSingleHandshakeWhileConnecting(t *testing.T) {
	tr := newFakeTransport()
	d := newFakeDialer(dialOK(tr))
	d.gate = make(chan struct{})
	m, _ := newTestManager(t, testConfig(), d)

	done := make(chan error, 1)
	go func() { done <- m.Connect(context.Background()) }()

	if !waitFor(2*time.Second, func() bool { return d.dialCount() == 1 }) {
		t.Fatal("first Connect never dialed")
	}

	// Re-entrant call while the handshake is in flight must not open a
	// second transport.
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("re-entrant Connect() error = %v", err)
	}

	close(d.gate)
	if err := <-done; err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if d.dialCount() != 1 {
		t.Errorf("dialCount() = %d, want 1", d.dialCount())
	}
	if got := m.State(); got != StateConnected {
		t.Errorf("State() = %v, want connected", got)
	}
}

func TestSendWhileConnected(t *testing.T) {
	tr := newFakeTransport()
	d := newFakeDialer(dialOK(tr))
	m, _ := newTestManager(t, testConfig(), d)
	log := captureEvents(m, SignalMessageSent)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	id, err := m.Send("chat", map[string]string{"text": "hi"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if id == "" {
		t.Fatal("expected a message id")
	}

	sent := tr.sentEnvelopes()
	if len(sent) != 1 {
		t.Fatalf("expected 1 transmitted envelope, got %d", len(sent))
	}
	if sent[0].ID != id || sent[0].Type != "chat" {
		t.Errorf("transmitted envelope = %+v, want id %q type chat", sent[0], id)
	}
	if log.count(SignalMessageSent) != 1 {
		t.Errorf("messageSent count = %d, want 1", log.count(SignalMessageSent))
	}
	if got := m.Metrics().MessagesSent; got != 1 {
		t.Errorf("MessagesSent = %d, want 1", got)
	}
}

func TestSendWhileDisconnectedQueuesAndReplaysInOrder(t *testing.T) {
	tr := newFakeTransport()
	d := newFakeDialer(dialOK(tr))
	m, _ := newTestManager(t, testConfig(), d)

	firstID, err := m.Send("chat", map[string]string{"text": "hi"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	secondID, err := m.Send("chat", map[string]string{"text": "there"}, WithPriority(PriorityHigh))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := m.Metrics().QueueDepth; got != 2 {
		t.Fatalf("QueueDepth = %d, want 2", got)
	}

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// A message issued after the reconnect completes must trail the queue.
	thirdID, err := m.Send("chat", map[string]string{"text": "late"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	sent := tr.sentEnvelopes()
	if len(sent) != 3 {
		t.Fatalf("expected 3 transmitted envelopes, got %d", len(sent))
	}
	wantOrder := []string{firstID, secondID, thirdID}
	for i, want := range wantOrder {
		if sent[i].ID != want {
			t.Errorf("transmit order[%d] = %q, want %q", i, sent[i].ID, want)
		}
	}
	if got := m.Metrics().QueueDepth; got != 0 {
		t.Errorf("QueueDepth after drain = %d, want 0", got)
	}
}

func TestLowPriorityDroppedWhileDisconnected(t *testing.T) {
	tr := newFakeTransport()
	d := newFakeDialer(dialOK(tr))
	m, _ := newTestManager(t, testConfig(), d)

	id, err := m.Send("telemetry", map[string]int{"v": 1}, WithPriority(PriorityLow))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if id == "" {
		t.Error("fire-and-forget contract: id is returned even for drops")
	}
	if got := m.Metrics().QueueDepth; got != 0 {
		t.Errorf("QueueDepth = %d, want 0 (low priority never queued)", got)
	}

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got := len(tr.sentEnvelopes()); got != 0 {
		t.Errorf("dropped message was transmitted: %d envelopes", got)
	}
}

func TestQueueOverflowWhileDisconnected(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueSize = 2
	tr := newFakeTransport()
	d := newFakeDialer(dialOK(tr))
	m, _ := newTestManager(t, cfg, d)

	first, _ := m.Send("chat", map[string]int{"n": 1})
	second, _ := m.Send("chat", map[string]int{"n": 2})
	third, _ := m.Send("chat", map[string]int{"n": 3})
	_ = first

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	sent := tr.sentEnvelopes()
	if len(sent) != 2 {
		t.Fatalf("expected 2 transmitted envelopes, got %d", len(sent))
	}
	if sent[0].ID != second || sent[1].ID != third {
		t.Errorf("drop-oldest order = %q,%q; want %q,%q", sent[0].ID, sent[1].ID, second, third)
	}
	if got := m.Metrics().Dropped; got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
}

func TestInboundDispatch(t *testing.T) {
	tr := newFakeTransport()
	d := newFakeDialer(dialOK(tr))
	m, _ := newTestManager(t, testConfig(), d)

	var mu sync.Mutex
	var order []string
	m.Subscribe("chat", func(env envelope.Envelope) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	})
	m.Subscribe("chat", func(env envelope.Envelope) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	})
	m.SubscribeAll(func(env envelope.Envelope) {
		mu.Lock()
		order = append(order, "all:"+env.Type)
		mu.Unlock()
	})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	env, _ := envelope.New("chat", map[string]string{"text": "hi"})
	tr.deliverEnvelope(env)

	if !waitFor(2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}) {
		t.Fatal("timed out waiting for dispatch")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"all:chat", "first", "second"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("dispatch order = %v, want %v", order, want)
		}
	}
	if got := m.Metrics().MessagesReceived; got != 1 {
		t.Errorf("MessagesReceived = %d, want 1", got)
	}
}

func TestUnsubscribeStopsDispatch(t *testing.T) {
	tr := newFakeTransport()
	d := newFakeDialer(dialOK(tr))
	m, _ := newTestManager(t, testConfig(), d)

	var calls int
	var mu sync.Mutex
	unsub := m.Subscribe("chat", func(envelope.Envelope) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	log := captureEvents(m, SignalMessage)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	env, _ := envelope.New("chat", nil)
	tr.deliverEnvelope(env)
	log.waitFor(t, SignalMessage)

	unsub()

	env2, _ := envelope.New("chat", nil)
	tr.deliverEnvelope(env2)
	if !waitFor(2*time.Second, func() bool { return log.count(SignalMessage) == 2 }) {
		t.Fatal("second message never dispatched")
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("subscriber calls = %d, want 1 after unsubscribe", calls)
	}
}

func TestMalformedInboundIsNonFatal(t *testing.T) {
	tr := newFakeTransport()
	d := newFakeDialer(dialOK(tr))
	m, _ := newTestManager(t, testConfig(), d)

	var subscriberCalls int
	var mu sync.Mutex
	m.SubscribeAll(func(envelope.Envelope) {
		mu.Lock()
		subscriberCalls++
		mu.Unlock()
	})
	log := captureEvents(m, SignalMessageError)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	tr.deliver([]byte("{this is not an envelope"))
	ev := log.waitFor(t, SignalMessageError)

	if ev.Err == nil {
		t.Error("messageError event should carry the decode error")
	}
	if string(ev.Raw) != "{this is not an envelope" {
		t.Errorf("messageError raw = %q", ev.Raw)
	}
	if log.count(SignalMessageError) != 1 {
		t.Errorf("messageError count = %d, want 1", log.count(SignalMessageError))
	}
	if got := m.State(); got != StateConnected {
		t.Errorf("State() = %v, want connected (decode failure must not change state)", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if subscriberCalls != 0 {
		t.Errorf("subscriber calls = %d, want 0", subscriberCalls)
	}
}

func TestReservedTypesNotSurfaced(t *testing.T) {
	tr := newFakeTransport()
	d := newFakeDialer(dialOK(tr))
	m, _ := newTestManager(t, testConfig(), d)

	var surfaced int
	var mu sync.Mutex
	m.SubscribeAll(func(envelope.Envelope) {
		mu.Lock()
		surfaced++
		mu.Unlock()
	})
	m.Subscribe(envelope.TypePing, func(envelope.Envelope) {
		mu.Lock()
		surfaced++
		mu.Unlock()
	})
	log := captureEvents(m, SignalMessage)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ping, _ := envelope.New(envelope.TypePing, nil)
	tr.deliverEnvelope(ping)
	pong, _ := envelope.New(envelope.TypePong, nil)
	tr.deliverEnvelope(pong)

	// The ping must be answered with a correlated pong.
	if !waitFor(2*time.Second, func() bool { return len(tr.sentEnvelopes()) == 1 }) {
		t.Fatal("inbound ping was never answered")
	}
	reply := tr.sentEnvelopes()[0]
	if reply.Type != envelope.TypePong || reply.CorrelationID != ping.ID {
		t.Errorf("ping reply = %+v, want pong correlated to %q", reply, ping.ID)
	}

	// Deliver a marker to prove the reserved frames were fully processed.
	marker, _ := envelope.New("marker", nil)
	tr.deliverEnvelope(marker)
	log.waitFor(t, SignalMessage)

	mu.Lock()
	defer mu.Unlock()
	if surfaced != 1 { // only the marker through SubscribeAll
		t.Errorf("reserved types reached subscribers: surfaced = %d, want 1", surfaced)
	}
	if got := m.Metrics().MessagesReceived; got != 1 {
		t.Errorf("MessagesReceived = %d, want 1 (reserved types excluded)", got)
	}
}

func TestUnexpectedCloseSchedulesReconnect(t *testing.T) {
	tr1 := newFakeTransport()
	tr2 := newFakeTransport()
	d := newFakeDialer(dialOK(tr1), dialOK(tr2))
	m, sched := newTestManager(t, testConfig(), d)
	log := captureEvents(m, SignalReconnecting, SignalDisconnected)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	firstID := m.ConnectionID()

	tr1.breakWith(fmt.Errorf("connection reset by peer"))
	ev := log.waitFor(t, SignalReconnecting)

	if ev.Attempt != 1 {
		t.Errorf("reconnecting attempt = %d, want 1", ev.Attempt)
	}
	if ev.Delay != time.Second {
		t.Errorf("reconnecting delay = %v, want 1s", ev.Delay)
	}
	if got := m.State(); got != StateReconnecting {
		t.Errorf("State() = %v, want reconnecting", got)
	}
	if got := m.Metrics().Reconnections; got != 1 {
		t.Errorf("Reconnections = %d, want 1", got)
	}

	if delay, ok := sched.fire(); !ok || delay != time.Second {
		t.Fatalf("fire() = %v, %v; want 1s timer", delay, ok)
	}

	if got := m.State(); got != StateConnected {
		t.Fatalf("State() after retry = %v, want connected", got)
	}
	if m.ConnectionID() == firstID {
		t.Error("expected a fresh connection identity after reconnect")
	}
}

func TestCleanCloseDoesNotReconnect(t *testing.T) {
	tr := newFakeTransport()
	d := newFakeDialer(dialOK(tr))
	m, sched := newTestManager(t, testConfig(), d)
	log := captureEvents(m, SignalDisconnected, SignalReconnecting)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	tr.breakWith(&CloseError{Code: StatusNormalClosure, Reason: "server shutdown"})
	ev := log.waitFor(t, SignalDisconnected)

	if ev.Code != StatusNormalClosure || ev.Reason != "server shutdown" {
		t.Errorf("disconnected event = %+v", ev)
	}
	if got := m.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", got)
	}
	if log.count(SignalReconnecting) != 0 {
		t.Error("clean closure must not schedule a reconnection")
	}
	if timers := sched.pending(); len(timers) != 0 {
		t.Errorf("pending timers = %d, want 0", len(timers))
	}
}

func TestReconnectBudgetExhausted(t *testing.T) {
	// Config {base 1s, max 3}: handshake keeps failing; expect delays of
	// 1s, 2s, 4s, then a terminal reconnectFailed with no 4th attempt.
	d := newFakeDialer(
		dialFail(fmt.Errorf("refused")),
		dialFail(fmt.Errorf("refused")),
		dialFail(fmt.Errorf("refused")),
		dialFail(fmt.Errorf("refused")),
	)
	m, sched := newTestManager(t, testConfig(), d)
	log := captureEvents(m, SignalReconnecting, SignalReconnectFailed)

	if err := m.Connect(context.Background()); err == nil {
		t.Fatal("Connect() should surface the initiating handshake failure")
	}

	wantDelays := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, want := range wantDelays {
		ev, ok := log.last(SignalReconnecting)
		if !ok {
			t.Fatalf("attempt %d never scheduled", i+1)
		}
		if ev.Attempt != i+1 || ev.Delay != want {
			t.Fatalf("attempt %d: event = {attempt %d, delay %v}, want {%d, %v}",
				i+1, ev.Attempt, ev.Delay, i+1, want)
		}
		delay, ok := sched.fire()
		if !ok || delay != want {
			t.Fatalf("fire() = %v, %v; want %v timer", delay, ok, want)
		}
	}

	if log.count(SignalReconnectFailed) != 1 {
		t.Fatalf("reconnectFailed count = %d, want 1", log.count(SignalReconnectFailed))
	}
	if log.count(SignalReconnecting) != 3 {
		t.Errorf("reconnecting count = %d, want 3", log.count(SignalReconnecting))
	}
	if _, ok := sched.fire(); ok {
		t.Error("no 4th attempt may be scheduled")
	}
	if got := m.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", got)
	}
	if got := m.Metrics().Reconnections; got != 3 {
		t.Errorf("Reconnections = %d, want 3", got)
	}
	if got := d.dialCount(); got != 4 {
		t.Errorf("dialCount() = %d, want 4 (initial + 3 retries)", got)
	}
}

func TestReconnectDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.MaxReconnectAttempts = 0
	d := newFakeDialer(dialFail(fmt.Errorf("refused")))
	m, sched := newTestManager(t, cfg, d)
	log := captureEvents(m, SignalReconnectFailed)

	if err := m.Connect(context.Background()); err == nil {
		t.Fatal("expected handshake error")
	}

	log.waitFor(t, SignalReconnectFailed)
	if got := m.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", got)
	}
	if timers := sched.pending(); len(timers) != 0 {
		t.Errorf("pending timers = %d, want 0", len(timers))
	}
}

func TestDisconnectIsManualAndFinal(t *testing.T) {
	tr := newFakeTransport()
	d := newFakeDialer(dialOK(tr))
	m, sched := newTestManager(t, testConfig(), d)
	log := captureEvents(m, SignalDisconnected, SignalReconnecting, SignalStateChange)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := m.Disconnect(0, "client going away"); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	if got := m.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", got)
	}
	if !tr.isClosed() {
		t.Error("transport not closed")
	}
	if tr.closeCode != StatusNormalClosure {
		t.Errorf("close code = %d, want %d", tr.closeCode, StatusNormalClosure)
	}

	// The read loop will observe the closed transport; that must not
	// trigger a reconnection.
	time.Sleep(20 * time.Millisecond)
	if log.count(SignalReconnecting) != 0 {
		t.Error("manual disconnect must disable automatic reconnection")
	}
	if timers := sched.pending(); len(timers) != 0 {
		t.Errorf("pending timers = %d, want 0", len(timers))
	}
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	tr := newFakeTransport()
	d := newFakeDialer(dialOK(tr))
	m, sched := newTestManager(t, testConfig(), d)
	log := captureEvents(m, SignalReconnecting)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	tr.breakWith(fmt.Errorf("connection reset"))
	log.waitFor(t, SignalReconnecting)

	if err := m.Disconnect(0, ""); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	if _, ok := sched.fire(); ok {
		t.Error("reconnection timer survived a manual disconnect")
	}
	if got := m.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", got)
	}
}

func TestSendFailureKeepsMessageQueued(t *testing.T) {
	tr := newFakeTransport()
	d := newFakeDialer(dialOK(tr))
	m, _ := newTestManager(t, testConfig(), d)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	tr.failWrites(fmt.Errorf("broken pipe"))

	id, err := m.Send("chat", map[string]string{"text": "hi"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if id == "" {
		t.Fatal("expected a message id")
	}
	if got := m.Metrics().QueueDepth; got != 1 {
		t.Errorf("QueueDepth = %d, want 1 (message kept for replay)", got)
	}
	if got := m.Metrics().MessagesSent; got != 0 {
		t.Errorf("MessagesSent = %d, want 0", got)
	}
}

func TestDrainStopsOnWriteFailure(t *testing.T) {
	tr := newFakeTransport()
	d := newFakeDialer(dialOK(tr))
	m, _ := newTestManager(t, testConfig(), d)

	for i := 0; i < 3; i++ {
		if _, err := m.Send("chat", map[string]int{"n": i}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	tr.failWrites(fmt.Errorf("broken pipe"))

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Nothing went out; the full backlog survives for the next connection.
	if got := len(tr.sentEnvelopes()); got != 0 {
		t.Errorf("transmitted = %d, want 0", got)
	}
	if got := m.Metrics().QueueDepth; got != 3 {
		t.Errorf("QueueDepth = %d, want 3", got)
	}
}

func TestMetricsConnectionDuration(t *testing.T) {
	tr := newFakeTransport()
	d := newFakeDialer(dialOK(tr))
	m, sched := newTestManager(t, testConfig(), d)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	sched.advance(10 * time.Second)
	if got := m.Metrics().ConnectionDuration; got != 10*time.Second {
		t.Errorf("ConnectionDuration = %v, want 10s", got)
	}

	if err := m.Disconnect(0, ""); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	sched.advance(5 * time.Second)
	if got := m.Metrics().ConnectionDuration; got != 10*time.Second {
		t.Errorf("ConnectionDuration after disconnect = %v, want frozen 10s", got)
	}
}

func TestRequestResponse(t *testing.T) {
	tr := newFakeTransport()
	d := newFakeDialer(dialOK(tr))
	m, _ := newTestManager(t, testConfig(), d)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	go func() {
		if !waitFor(2*time.Second, func() bool { return len(tr.sentEnvelopes()) == 1 }) {
			return
		}
		req := tr.sentEnvelopes()[0]
		reply, err := envelope.NewCorrelated("query.result", map[string]string{"answer": "42"}, req.ID)
		if err != nil {
			return
		}
		tr.deliverEnvelope(reply)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := m.Request(ctx, "query", map[string]string{"q": "meaning"})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if reply.Type != "query.result" {
		t.Errorf("reply type = %q, want query.result", reply.Type)
	}

	var payload map[string]string
	if err := reply.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if payload["answer"] != "42" {
		t.Errorf("answer = %q, want 42", payload["answer"])
	}
}

func TestRequestTimeout(t *testing.T) {
	tr := newFakeTransport()
	d := newFakeDialer(dialOK(tr))
	m, _ := newTestManager(t, testConfig(), d)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := m.Request(ctx, "query", nil); err == nil {
		t.Fatal("expected timeout while disconnected")
	}
}
