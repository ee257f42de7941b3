package game

import "errors"

// Callers match these with errors.Is; the engine wraps them with context.
var (
	ErrPrecondition    = errors.New("precondition violated")
	ErrGameNotStarted  = errors.New("game has not started yet")
	ErrNoActivePoll    = errors.New("no poll is currently running")
	ErrGameNotFinished = errors.New("game is not finished yet")
	ErrInvalidVote     = errors.New("invalid vote")
)
