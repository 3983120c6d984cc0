package models

import (
	"time"

	"github.com/google/uuid"
)

// Round represents one play of the guessing game within a room.
// Word is empty while the setter has not yet confirmed it. EndTime is
// nil while the round is open; at most one round per room is open at
// any time. WinnerID is nil when nobody guessed the word.
type Round struct {
	ID        uuid.UUID  `json:"id"`
	RoomID    uuid.UUID  `json:"room_id"`
	SetterID  uuid.UUID  `json:"setter_id"`
	Word      string     `json:"word"`
	WinnerID  *uuid.UUID `json:"winner_id,omitempty"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// Open reports whether the round is still in play.
func (r Round) Open() bool {
	return r.EndTime == nil
}

// WordSet reports whether the setter has confirmed the secret word.
func (r Round) WordSet() bool {
	return r.Word != ""
}
