package types

import "errors"

// Validation error types surfaced to the command's originator before any
// store read happens.
var (
	ErrUsernameRequired        = errors.New("username is required")
	ErrUsernameTooShort        = errors.New("username must be at least 2 characters")
	ErrUsernameTooLong         = errors.New("username must be less than 30 characters")
	ErrUsernameInvalidChars    = errors.New("username contains invalid characters")
	ErrSessionNameRequired     = errors.New("session name is required")
	ErrSessionNameTooShort     = errors.New("session name must be at least 3 characters")
	ErrSessionNameTooLong      = errors.New("session name must be less than 50 characters")
	ErrStoryTooLong            = errors.New("story must be less than 500 characters")
	ErrInvalidVote             = errors.New("invalid vote value")
	ErrInvalidSessionIDFormat  = errors.New("invalid session id format")
)
