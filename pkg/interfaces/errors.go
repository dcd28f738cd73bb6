package interfaces

import "errors"

// Errors shared across component boundaries.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session id already in use")
	ErrStoreClosed     = errors.New("session store is closed")
)
