package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kalimahplay/kalimah/go/internal/eventbus"
)

// Bridge relays bus events into the connection manager. One pair of
// bus subscriptions exists per room with at least one client; the
// subscriptions are released when the room empties.
type Bridge struct {
	bus *eventbus.Bus
	cm  *ConnectionManager

	mu   sync.Mutex
	subs map[uuid.UUID][]eventbus.Unsubscribe
}

// NewBridge creates a bridge and registers the bus status relay:
// degraded/recovered transitions are pushed to every connected room as
// advisory events.
func NewBridge(bus *eventbus.Bus, cm *ConnectionManager) *Bridge {
	b := &Bridge{
		bus:  bus,
		cm:   cm,
		subs: make(map[uuid.UUID][]eventbus.Unsubscribe),
	}
	cm.OnRoomEmpty(b.releaseRoom)
	bus.OnStatus(b.onStatus)
	return b
}

// EnsureRoom opens the bus subscriptions for a room if it has none
// yet. Safe to call on every client connect.
func (b *Bridge) EnsureRoom(roomID uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[roomID]; ok {
		return nil
	}

	unsubMsgs, err := b.bus.SubscribeMessages(roomID, func(ev eventbus.MessageEvent) {
		b.forward(roomID, EventTypeMessage, ev.Message)
	})
	if err != nil {
		return err
	}

	unsubMembers, err := b.bus.SubscribeMembers(roomID, func(ev eventbus.MemberEvent) {
		kind := EventTypeMemberJoined
		if ev.Kind == eventbus.MemberLeft {
			kind = EventTypeMemberLeft
		}
		b.forward(roomID, kind, ev.Member)
	})
	if err != nil {
		unsubMsgs()
		return err
	}

	b.subs[roomID] = []eventbus.Unsubscribe{unsubMsgs, unsubMembers}
	log.Info().Str("room_id", roomID.String()).Msg("bridge attached to room")
	return nil
}

func (b *Bridge) releaseRoom(roomID uuid.UUID) {
	b.mu.Lock()
	subs, ok := b.subs[roomID]
	delete(b.subs, roomID)
	b.mu.Unlock()

	if !ok {
		return
	}
	for _, unsub := range subs {
		unsub()
	}
	log.Info().Str("room_id", roomID.String()).Msg("bridge released room")
}

func (b *Bridge) forward(roomID uuid.UUID, kind EventType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to marshal bridge payload")
		return
	}
	b.cm.BroadcastToRoom(roomID, &RoomEvent{
		ID:        uuid.New().String(),
		RoomID:    roomID.String(),
		Type:      kind,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func (b *Bridge) onStatus(status eventbus.Status) {
	kind := EventTypeRecovered
	if status == eventbus.StatusDegraded {
		kind = EventTypeDegraded
	}
	for _, roomID := range b.cm.ActiveRooms() {
		b.cm.BroadcastToRoom(roomID, &RoomEvent{
			ID:        uuid.New().String(),
			RoomID:    roomID.String(),
			Type:      kind,
			Timestamp: time.Now(),
		})
	}
}
