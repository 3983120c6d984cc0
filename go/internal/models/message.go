package models

import (
	"time"

	"github.com/google/uuid"
)

// SystemUserID is the reserved sender id for synthetic announcements.
const SystemUserID = "system"

// SystemUsername is the display name shown for system announcements.
const SystemUsername = "النظام"

// Message represents a chat message in a room. Messages are immutable
// and append-only per room. UserID is a string rather than a UUID
// because system announcements use the reserved sender id "system".
type Message struct {
	ID       uuid.UUID `json:"id"`
	RoomID   uuid.UUID `json:"room_id"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username,omitempty"`
	Body     string    `json:"message"`
	SentAt   time.Time `json:"sent_at"`
}

// IsSystem reports whether the message is a synthetic announcement.
func (m Message) IsSystem() bool {
	return m.UserID == SystemUserID
}
