// Package gateway fans room events out to browser clients over
// WebSocket and exposes the room snapshot and command surface over
// HTTP. It owns no game state: every command routes to a room
// synchronizer session and every outbound frame is a bus event or a
// snapshot.
package gateway

import (
	"encoding/json"
	"time"
)

// EventType tags an outbound WebSocket frame.
type EventType string

const (
	EventTypeMessage      EventType = "Message"
	EventTypeMemberJoined EventType = "MemberJoined"
	EventTypeMemberLeft   EventType = "MemberLeft"
	// EventTypeDegraded advises clients that the bus connection
	// dropped and deliveries may lag until it recovers.
	EventTypeDegraded  EventType = "ConnectionDegraded"
	EventTypeRecovered EventType = "ConnectionRecovered"
)

// RoomEvent is the envelope for all frames pushed to clients.
type RoomEvent struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}
