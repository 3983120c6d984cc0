package round

import "errors"

var (
	// ErrNotAuthorized is returned when the caller is the wrong actor
	// for a transition (not the host, or not the setter).
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInsufficientPlayers is returned when a game is started with
	// fewer than two members in the room.
	ErrInsufficientPlayers = errors.New("insufficient players")

	// ErrEmptyWord is returned when the setter confirms a blank word.
	ErrEmptyWord = errors.New("empty word")

	// ErrRoundInProgress is returned when a game is started while the
	// room already has an open round.
	ErrRoundInProgress = errors.New("round already in progress")

	// ErrRoundClosed is returned when a transition targets a round
	// that has already ended. Late timer expiries hit this and are
	// ignored by the caller.
	ErrRoundClosed = errors.New("round already closed")

	// ErrNoRound is returned when a transition requires an open round
	// and the room has none.
	ErrNoRound = errors.New("no open round")
)
