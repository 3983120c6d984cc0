package models

import (
	"time"

	"github.com/google/uuid"
)

// Room represents a game room grouping members, messages and rounds.
// Immutable after creation except for the IsActive flag.
type Room struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	OwnerID   uuid.UUID `json:"owner_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
