package realtime

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingAuth
	StateBuffering
	StateOnline
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingAuth:
		return "awaiting_auth"
	case StateBuffering:
		return "buffering"
	case StateOnline:
		return "online"
	default:
		return "unknown"
	}
}
