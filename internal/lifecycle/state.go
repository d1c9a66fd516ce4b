package lifecycle

// State is a lifecycle phase. Transitions only move forward.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	RemoteInitialized
	ScopeResolving
	Watching
	ShuttingDown
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case RemoteInitialized:
		return "remote-initialized"
	case ScopeResolving:
		return "scope-resolving"
	case Watching:
		return "watching"
	case ShuttingDown:
		return "shutting-down"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
