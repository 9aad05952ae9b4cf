package session

import "time"

// Reasons recorded on a Change.
const (
	ReasonStart             = "start"
	ReasonReset             = "reset"
	ReasonNext              = "next"
	ReasonCountdownElapsed  = "countdown_elapsed"
	ReasonTransitionElapsed = "transition_elapsed"
	ReasonFilterTimeout     = "filter_timeout"
	ReasonMaxPixels         = "max_pixels"
	ReasonEndScreenTimeout  = "end_screen_timeout"
)

// Change describes one phase transition made by Advance.
type Change struct {
	From      Phase
	To        Phase
	Reason    string
	SessionID string
	At        time.Time
	// SessionStarted is when the session's countdown began.
	SessionStarted time.Time
	// Pixels is the filter counter at the moment the phase was left.
	Pixels int64
}

// Cancelled reports whether a reset cut an unfinished session short.
func (c Change) Cancelled() bool {
	return c.Reason == ReasonReset && c.From != Idle && c.From != EndScreen
}

// Event carries a phase change and the resulting snapshot to observers.
type Event struct {
	Change
	State *State // snapshot (safe to retain)
}
