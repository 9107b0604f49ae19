package routing

import "errors"

// Routing errors. Classification and resolution errors are terminal for
// the flow that hit them: the sender gets a message and no pending action
// is created.
var (
	// ErrUnauthorized is returned when the sender lacks the role required
	// for the attempted trigger, or is muted.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnknownHandle is returned when a -@handle target has no recorded
	// identity.
	ErrUnknownHandle = errors.New("unknown handle")

	// ErrNoRecipients is returned when the resolved recipient set is empty.
	ErrNoRecipients = errors.New("no recipients")

	// ErrInvalidTrigger is returned for malformed trigger syntax.
	ErrInvalidTrigger = errors.New("invalid trigger")

	// ErrDirectoryUnavailable is returned when a collaborator store cannot
	// be reached.
	ErrDirectoryUnavailable = errors.New("directory unavailable")
)
