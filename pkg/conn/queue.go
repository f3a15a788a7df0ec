package conn

import "wirelink/pkg/envelope"

// Priority controls what happens to a message that cannot be sent
// immediately. High and normal messages are queued until the next
// successful connection; low messages are best-effort and dropped.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
	PriorityLow
)

// String returns the string representation of a Priority.
func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// OverflowPolicy decides what a full outbound queue does with a new entry.
type OverflowPolicy int

const (
	// OverflowDropOldest evicts the oldest queued entry to make room.
	OverflowDropOldest OverflowPolicy = iota

	// OverflowReject refuses the new entry and keeps the queue unchanged.
	OverflowReject
)

// String returns the string representation of an OverflowPolicy.
func (p OverflowPolicy) String() string {
	switch p {
	case OverflowDropOldest:
		return "drop_oldest"
	case OverflowReject:
		return "reject"
	default:
		return "unknown"
	}
}

type queueEntry struct {
	env      envelope.Envelope
	priority Priority
}

// outboundQueue holds messages awaiting transmission in strict FIFO order.
// It is not safe for concurrent use; the manager's mutex guards it.
type outboundQueue struct {
	entries []queueEntry
	maxSize int // 0 = unbounded
	policy  OverflowPolicy
	dropped uint64
}

func newOutboundQueue(maxSize int, policy OverflowPolicy) *outboundQueue {
	return &outboundQueue{
		maxSize: maxSize,
		policy:  policy,
	}
}

// enqueue appends an entry. When the queue is full it either evicts the
// oldest entry (returned so the caller can report it) or rejects the new
// one, depending on the policy. ok is false only on rejection.
func (q *outboundQueue) enqueue(e queueEntry) (evicted *queueEntry, ok bool) {
	if q.maxSize > 0 && len(q.entries) >= q.maxSize {
		if q.policy == OverflowReject {
			q.dropped++
			return nil, false
		}
		old := q.entries[0]
		q.entries = q.entries[1:]
		q.dropped++
		evicted = &old
	}
	q.entries = append(q.entries, e)
	return evicted, true
}

// popFront removes and returns the oldest entry.
func (q *outboundQueue) popFront() (queueEntry, bool) {
	if len(q.entries) == 0 {
		return queueEntry{}, false
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e, true
}

// pushFront puts an entry back at the head after a failed transmission so
// the drain resumes from it on the next connection.
func (q *outboundQueue) pushFront(e queueEntry) {
	q.entries = append([]queueEntry{e}, q.entries...)
}

func (q *outboundQueue) len() int {
	return len(q.entries)
}

func (q *outboundQueue) droppedCount() uint64 {
	return q.dropped
}
