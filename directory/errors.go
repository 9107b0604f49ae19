package directory

import "errors"

// Common directory errors.
var (
	// ErrUnknownRole is returned when a role name is outside the closed set.
	ErrUnknownRole = errors.New("unknown role")
)
