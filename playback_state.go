package avctl

// SessionState is the lifecycle state of a [Session].
type SessionState uint8

const (
	Idle SessionState = iota
	Initialized
	Preparing
	Prepared
	Started
	Paused
	Stopped
	Released
)

// Returns a string representation of the session state ("Idle",
// "Initialized", ..., "Released", or "Unknown").
func (s SessionState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Initialized:
		return "Initialized"
	case Preparing:
		return "Preparing"
	case Prepared:
		return "Prepared"
	case Started:
		return "Started"
	case Paused:
		return "Paused"
	case Stopped:
		return "Stopped"
	case Released:
		return "Released"
	default:
		return "Unknown"
	}
}

// engine-side clock state, only used by ReisenEngine
type clockState uint8

const (
	clockStopped clockState = iota
	clockPlaying
	clockPaused
)

func (s clockState) String() string {
	switch s {
	case clockStopped:
		return "Stopped"
	case clockPlaying:
		return "Playing"
	case clockPaused:
		return "Paused"
	default:
		return "Unknown"
	}
}
