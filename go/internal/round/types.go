package round

import (
	"time"

	"github.com/google/uuid"

	"github.com/kalimahplay/kalimah/go/internal/models"
)

// State is the lifecycle phase of a room's current round.
type State string

const (
	// StateIdle means the room has no open round.
	StateIdle State = "idle"
	// StateAwaitingWord means a round exists but the setter has not
	// yet confirmed the secret word.
	StateAwaitingWord State = "awaiting_word"
	// StateActive means the word is set, the countdown is running and
	// guesses are accepted.
	StateActive State = "active"
	// StateEnded is terminal; the current-round pointer is cleared.
	StateEnded State = "ended"
)

// CreateRoundRequest carries the fields for a new round row. Word is
// empty until the setter confirms it.
type CreateRoundRequest struct {
	ID        uuid.UUID `json:"id"`
	RoomID    uuid.UUID `json:"room_id"`
	SetterID  uuid.UUID `json:"setter_id"`
	Word      string    `json:"word"`
	StartTime time.Time `json:"start_time"`
}

// CloseRoundRequest carries the end stamp for an open round.
type CloseRoundRequest struct {
	WinnerID *uuid.UUID `json:"winner_id"`
	EndTime  time.Time  `json:"end_time"`
}

// Result is the outcome of a successful transition: the round after
// the transition plus the system announcement to post to the room.
type Result struct {
	Round        models.Round
	Announcement string
}
