package conn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"wirelink/pkg/envelope"
)

// fakeScheduler captures timers instead of arming them, so tests drive
// heartbeat and backoff timing deterministically.
type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	delay     time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{now: time.Unix(1700000000, 0)}
}

func (s *fakeScheduler) ScheduleOnce(d time.Duration, fn func()) func() {
	s.mu.Lock()
	t := &fakeTimer{delay: d, fn: fn}
	s.timers = append(s.timers, t)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		t.cancelled = true
		s.mu.Unlock()
	}
}

func (s *fakeScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *fakeScheduler) advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
}

// pending returns the timers that are still armed.
func (s *fakeScheduler) pending() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.cancelled && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs the oldest pending timer and returns its delay.
func (s *fakeScheduler) fire() (time.Duration, bool) {
	s.mu.Lock()
	var target *fakeTimer
	for _, t := range s.timers {
		if !t.cancelled && !t.fired {
			target = t
			break
		}
	}
	if target == nil {
		s.mu.Unlock()
		return 0, false
	}
	target.fired = true
	s.mu.Unlock()

	s.advance(target.delay)
	target.fn()
	return target.delay, true
}

type readResult struct {
	data []byte
	err  error
}

// fakeTransport is a scriptable in-memory transport.
type fakeTransport struct {
	reads chan readResult
	quit  chan struct{}

	mu         sync.Mutex
	writes     [][]byte
	closed     bool
	closeCode  int
	closeRsn   string
	writeErr   error
	quitClosed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		reads: make(chan readResult, 16),
		quit:  make(chan struct{}),
	}
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case r := <-t.reads:
		return r.data, r.err
	case <-t.quit:
		return nil, fmt.Errorf("use of closed connection")
	}
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	if t.closed {
		return fmt.Errorf("write on closed connection")
	}
	t.writes = append(t.writes, data)
	return nil
}

func (t *fakeTransport) Close(code int, reason string) error {
	t.mu.Lock()
	t.closed = true
	t.closeCode = code
	t.closeRsn = reason
	if !t.quitClosed {
		t.quitClosed = true
		close(t.quit)
	}
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) failWrites(err error) {
	t.mu.Lock()
	t.writeErr = err
	t.mu.Unlock()
}

// deliver pushes an inbound frame to the read loop.
func (t *fakeTransport) deliver(data []byte) {
	t.reads <- readResult{data: data}
}

// deliverEnvelope pushes an inbound envelope to the read loop.
func (t *fakeTransport) deliverEnvelope(env envelope.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		panic(err)
	}
	t.deliver(data)
}

// breakWith makes the next read return err.
func (t *fakeTransport) breakWith(err error) {
	t.reads <- readResult{err: err}
}

// sentEnvelopes decodes every frame written so far.
func (t *fakeTransport) sentEnvelopes() []envelope.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]envelope.Envelope, 0, len(t.writes))
	for _, data := range t.writes {
		env, err := envelope.Decode(data)
		if err != nil {
			panic(err)
		}
		out = append(out, env)
	}
	return out
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// fakeDialer replays a scripted sequence of dial outcomes. When the script
// runs out it keeps failing.
type fakeDialer struct {
	mu      sync.Mutex
	script  []dialOutcome
	dials   int
	gate    chan struct{} // when set, Dial blocks until the gate closes
	lastErr error
}

type dialOutcome struct {
	transport *fakeTransport
	err       error
}

func newFakeDialer(outcomes ...dialOutcome) *fakeDialer {
	return &fakeDialer{script: outcomes}
}

func dialOK(t *fakeTransport) dialOutcome { return dialOutcome{transport: t} }

func dialFail(err error) dialOutcome { return dialOutcome{err: err} }

func (d *fakeDialer) Dial(ctx context.Context, endpoint string, subprotocols []string, headers http.Header) (Transport, error) {
	d.mu.Lock()
	gate := d.gate
	idx := d.dials
	d.dials++
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if idx >= len(d.script) {
		d.lastErr = fmt.Errorf("no scripted outcome for dial %d", idx)
		return nil, d.lastErr
	}
	out := d.script[idx]
	if out.err != nil {
		return nil, out.err
	}
	return out.transport, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
