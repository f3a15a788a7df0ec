package conn

import (
	"sync"
	"time"
)

// heartbeat probes connection liveness while connected. Every interval it
// asks the manager to send a ping envelope; if the previous ping was never
// answered by a pong before the next tick, the connection is declared dead
// and onDead force-closes the transport.
type heartbeat struct {
	interval time.Duration
	sched    Scheduler
	ping     func()
	onDead   func()

	mu       sync.Mutex
	awaiting bool
	stopped  bool
	cancel   func()
}

func newHeartbeat(interval time.Duration, sched Scheduler, ping, onDead func()) *heartbeat {
	return &heartbeat{
		interval: interval,
		sched:    sched,
		ping:     ping,
		onDead:   onDead,
	}
}

func (h *heartbeat) start() {
	if h.interval <= 0 {
		return
	}
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.cancel = h.sched.ScheduleOnce(h.interval, h.tick)
	h.mu.Unlock()
}

func (h *heartbeat) tick() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	if h.awaiting {
		// The ping sent one interval ago was never answered.
		h.stopped = true
		h.mu.Unlock()
		h.onDead()
		return
	}
	h.awaiting = true
	h.cancel = h.sched.ScheduleOnce(h.interval, h.tick)
	h.mu.Unlock()

	h.ping()
}

// pongReceived records that the outstanding ping was answered.
func (h *heartbeat) pongReceived() {
	h.mu.Lock()
	h.awaiting = false
	h.mu.Unlock()
}

// stop cancels the pending tick. Safe to call more than once.
func (h *heartbeat) stop() {
	h.mu.Lock()
	h.stopped = true
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	h.mu.Unlock()
}
