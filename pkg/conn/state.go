package conn

// State represents the current state of the managed connection. Exactly one
// value holds at any instant; transitions happen only inside the manager.
type State int

const (
	// StateDisconnected means no connection exists and none is being attempted.
	StateDisconnected State = iota

	// StateConnecting means a transport handshake is in flight.
	StateConnecting

	// StateConnected means the connection is established and usable.
	StateConnected

	// StateDisconnecting means a manual disconnect is in progress.
	StateDisconnecting

	// StateReconnecting means a reconnection timer is pending after an
	// unexpected loss.
	StateReconnecting

	// StateError means the last handshake attempt failed.
	StateError
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
