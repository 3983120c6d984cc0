// Package eventbus is the room event channel: a thin NATS client that
// publishes and subscribes membership and message notifications keyed
// by room id. Delivery is at-least-once and unordered relative to the
// store writes that produced it; subscribers treat every delivery as a
// hint to reconcile, not as the sole source of truth.
package eventbus

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/kalimahplay/kalimah/go/internal/models"
)

// MemberEventKind tags a membership notification.
type MemberEventKind string

const (
	MemberJoined MemberEventKind = "joined"
	MemberLeft   MemberEventKind = "left"
)

// MemberEvent is the payload delivered for a roster change.
type MemberEvent struct {
	Kind   MemberEventKind `json:"kind"`
	Member models.Member   `json:"member"`
}

// MessageEvent is the payload delivered for an appended chat message.
type MessageEvent struct {
	Message models.Message `json:"message"`
}

func messagesSubject(roomID uuid.UUID) string {
	return fmt.Sprintf("room.%s.messages", roomID)
}

func membersSubject(roomID uuid.UUID) string {
	return fmt.Sprintf("room.%s.members", roomID)
}
