package session

import "errors"

// Session errors.
var (
	// ErrStaleToken is returned when a confirm or cancel arrives for a
	// token with no matching pending action: already resolved, or never
	// existed. Callers must answer it with a user-visible "no longer
	// valid" message, never a crash.
	ErrStaleToken = errors.New("stale token")

	// ErrTerminalState is returned for transitions attempted on a
	// dispatched or cancelled flow.
	ErrTerminalState = errors.New("flow already ended")

	// ErrInvalidTransition is returned for an event that is not legal in
	// the current state.
	ErrInvalidTransition = errors.New("invalid transition")
)
