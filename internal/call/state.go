package call

// State is the lifecycle state of the call desk.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	// StateClosing is entered only when the agent has read out the complaint
	// number; the call ends when the grace timer fires.
	StateClosing State = "closing"
)

// The only failure texts a caller ever sees.
const (
	MsgInitFailed         = "INITIALIZATION FAILED. PLEASE CHECK MIC PERMISSIONS."
	MsgSignalInterruption = "SIGNAL INTERRUPTION"
)

// End reasons recorded in the call journal.
const (
	EndUser       = "user"
	EndPeerError  = "peer_error"
	EndPeerClose  = "peer_close"
	EndAutoEnd    = "auto_end"
	EndInitFailed = "init_failed"
	EndShutdown   = "shutdown"
)
