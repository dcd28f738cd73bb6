package types

import (
	"regexp"
	"strings"
)

// Compiled once at package initialization.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9\s\-_]+$`)

// voteDeck is the fixed set of castable values. The last two are the
// deliberately non-numeric "unsure" and "break" cards.
var voteDeck = []string{"0", "1", "2", "3", "5", "8", "13", "21", "34", "55", "89", "?", "☕"}

// ValidateUsername checks a display name before any session lookup.
// Names are compared after trimming, so validation trims too.
func ValidateUsername(username string) error {
	trimmed := strings.TrimSpace(username)

	if trimmed == "" {
		return ErrUsernameRequired
	}
	if len(trimmed) < 2 {
		return ErrUsernameTooShort
	}
	if len(trimmed) > 30 {
		return ErrUsernameTooLong
	}
	if !usernameRegex.MatchString(trimmed) {
		return ErrUsernameInvalidChars
	}
	return nil
}

// ValidateSessionName checks an operator-supplied session label.
func ValidateSessionName(name string) error {
	trimmed := strings.TrimSpace(name)

	if trimmed == "" {
		return ErrSessionNameRequired
	}
	if len(trimmed) < 3 {
		return ErrSessionNameTooShort
	}
	if len(trimmed) > 50 {
		return ErrSessionNameTooLong
	}
	return nil
}

// ValidateStory checks a story description. Empty is allowed and means
// "no story set".
func ValidateStory(story string) error {
	if len(story) > 500 {
		return ErrStoryTooLong
	}
	return nil
}

// ValidateVote checks a vote against the fixed deck.
func ValidateVote(vote string) error {
	for _, v := range voteDeck {
		if vote == v {
			return nil
		}
	}
	return ErrInvalidVote
}
