package conn

import "time"

// Scheduler abstracts timer scheduling so tests can drive heartbeat and
// reconnect timing with a fake clock.
type Scheduler interface {
	// ScheduleOnce runs fn once after d. The returned function cancels the
	// timer; cancelling after the timer fired is a no-op.
	ScheduleOnce(d time.Duration, fn func()) (cancel func())

	// Now returns the current time.
	Now() time.Time
}

type wallClock struct{}

func (wallClock) ScheduleOnce(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

func (wallClock) Now() time.Time {
	return time.Now()
}
