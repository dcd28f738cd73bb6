package session

import "errors"

// Command rejection types. Rejections never mutate the store and are
// surfaced to the command's originator only.
var (
	ErrNameTaken            = errors.New("username already taken by a connected participant")
	ErrParticipantNotFound  = errors.New("participant not in session")
	ErrNotHost              = errors.New("only the host may perform this action")
	ErrVotesAlreadyRevealed = errors.New("votes are revealed; voting is closed for this round")
)
