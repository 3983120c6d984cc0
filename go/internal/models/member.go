package models

import (
	"time"

	"github.com/google/uuid"
)

// Member represents a user's membership in a room. A member is uniquely
// identified by (RoomID, UserID); the surrogate ID correlates delete
// events from the bus with the roster entry they remove.
type Member struct {
	ID        uuid.UUID `json:"id"`
	RoomID    uuid.UUID `json:"room_id"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
}
