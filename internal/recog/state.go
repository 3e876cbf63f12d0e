package recog

// State is the lifecycle state of a [Recognizer].
type State int

const (
	// StateIdle means the recognizer has not started, or start failed
	// before the pipeline came up.
	StateIdle State = iota

	// StateStarting means permissions are granted and the recognition
	// stream is being opened.
	StateStarting

	// StateListening means transcripts are flowing and being forwarded.
	StateListening

	// StateRestarting means the stream is being torn down and recreated.
	// Results arriving in this state are dropped, not queued; only the
	// fresh stream's results matter after a restart.
	StateRestarting

	// StateStopped is terminal; a stopped recognizer cannot be reused.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateRestarting:
		return "restarting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
