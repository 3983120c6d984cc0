package room

import (
	"github.com/google/uuid"
)

// CreateRoomRequest carries the fields for a new room.
type CreateRoomRequest struct {
	ID      uuid.UUID `json:"id"`
	Code    string    `json:"code"`
	OwnerID uuid.UUID `json:"owner_id"`
}

// JoinRoomRequest identifies the user joining a room along with the
// profile fields denormalized onto the member row.
type JoinRoomRequest struct {
	RoomID    uuid.UUID `json:"room_id"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
}
