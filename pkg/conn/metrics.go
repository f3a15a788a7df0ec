package conn

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is a point-in-time view of the manager's metrics. Counters are
// monotonically non-decreasing for the life of the manager.
type Snapshot struct {
	MessagesSent     uint64
	MessagesReceived uint64
	Reconnections    uint64
	Dropped          uint64

	// LastActivity is the instant of the most recent inbound or outbound
	// traffic, including heartbeats.
	LastActivity time.Time

	// ConnectionDuration is the time since the most recent transition to
	// connected, or the length of the last session when disconnected.
	ConnectionDuration time.Duration

	QueueDepth int
	State      State
}

// recorder owns the mutable metric state and mirrors it into Prometheus
// collectors when a registerer is supplied.
type recorder struct {
	mu               sync.Mutex
	messagesSent     uint64
	messagesReceived uint64
	reconnections    uint64
	lastActivity     time.Time
	connectedAt      time.Time
	lastSession      time.Duration

	now func() time.Time

	promSent          prometheus.Counter
	promReceived      prometheus.Counter
	promReconnections prometheus.Counter
	promDropped       prometheus.Counter
	promQueueDepth    prometheus.Gauge
	promState         prometheus.Gauge
}

func newRecorder(reg prometheus.Registerer, now func() time.Time) *recorder {
	r := &recorder{
		now: now,
		promSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wirelink_messages_sent_total",
			Help: "Application envelopes transmitted to the remote endpoint.",
		}),
		promReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wirelink_messages_received_total",
			Help: "Application envelopes received from the remote endpoint.",
		}),
		promReconnections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wirelink_reconnections_total",
			Help: "Reconnection attempts scheduled after unexpected loss.",
		}),
		promDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wirelink_messages_dropped_total",
			Help: "Messages dropped by priority or queue overflow.",
		}),
		promQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wirelink_queue_depth",
			Help: "Messages currently held in the outbound queue.",
		}),
		promState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wirelink_connection_state",
			Help: "Current connection state as its numeric value.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			r.promSent,
			r.promReceived,
			r.promReconnections,
			r.promDropped,
			r.promQueueDepth,
			r.promState,
		)
	}

	return r
}

func (r *recorder) markActivity() {
	r.mu.Lock()
	r.lastActivity = r.now()
	r.mu.Unlock()
}

func (r *recorder) markSent() {
	r.mu.Lock()
	r.messagesSent++
	r.lastActivity = r.now()
	r.mu.Unlock()
	r.promSent.Inc()
}

func (r *recorder) markReceived() {
	r.mu.Lock()
	r.messagesReceived++
	r.lastActivity = r.now()
	r.mu.Unlock()
	r.promReceived.Inc()
}

func (r *recorder) markReconnection() {
	r.mu.Lock()
	r.reconnections++
	r.mu.Unlock()
	r.promReconnections.Inc()
}

func (r *recorder) markDropped() {
	r.promDropped.Inc()
}

func (r *recorder) markConnected() {
	r.mu.Lock()
	r.connectedAt = r.now()
	r.lastSession = 0
	r.mu.Unlock()
}

func (r *recorder) markDisconnected() {
	r.mu.Lock()
	if !r.connectedAt.IsZero() {
		r.lastSession = r.now().Sub(r.connectedAt)
		r.connectedAt = time.Time{}
	}
	r.mu.Unlock()
}

func (r *recorder) setState(s State) {
	r.promState.Set(float64(s))
}

func (r *recorder) setQueueDepth(depth int) {
	r.promQueueDepth.Set(float64(depth))
}

func (r *recorder) snapshot(state State, queueDepth int, dropped uint64) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	duration := r.lastSession
	if !r.connectedAt.IsZero() {
		duration = r.now().Sub(r.connectedAt)
	}

	return Snapshot{
		MessagesSent:       r.messagesSent,
		MessagesReceived:   r.messagesReceived,
		Reconnections:      r.reconnections,
		Dropped:            dropped,
		LastActivity:       r.lastActivity,
		ConnectionDuration: duration,
		QueueDepth:         queueDepth,
		State:              state,
	}
}
