package presence

import "errors"

var (
	ErrSweeperAlreadyRunning = errors.New("sweeper is already running")
	ErrSweeperNotRunning     = errors.New("sweeper is not running")
)
