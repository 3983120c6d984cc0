package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/kalimahplay/kalimah/go/internal/roomsync"
	"github.com/kalimahplay/kalimah/go/internal/round"
)

type sessionKey struct {
	roomID uuid.UUID
	userID uuid.UUID
}

type session struct {
	sync *roomsync.Synchronizer
	sub  *roomsync.Subscription
}

// SessionManager owns one synchronizer per (room, user) pair connected
// through this server, created lazily on first use and detached when
// the server shuts down.
type SessionManager struct {
	store  roomsync.Store
	bus    roomsync.Bus
	ledger round.Ledger
	clock  clockwork.Clock
	cfg    roomsync.Config

	mu       sync.Mutex
	sessions map[sessionKey]*session
}

// NewSessionManager creates a session manager.
func NewSessionManager(store roomsync.Store, bus roomsync.Bus, ledger round.Ledger, clock clockwork.Clock, cfg roomsync.Config) *SessionManager {
	return &SessionManager{
		store:    store,
		bus:      bus,
		ledger:   ledger,
		clock:    clock,
		cfg:      cfg,
		sessions: make(map[sessionKey]*session),
	}
}

// Get returns the synchronizer for a (room, user) pair, loading and
// attaching a fresh one if none exists.
func (sm *SessionManager) Get(ctx context.Context, roomID, userID uuid.UUID, username string) (*roomsync.Synchronizer, error) {
	key := sessionKey{roomID: roomID, userID: userID}

	sm.mu.Lock()
	if existing, ok := sm.sessions[key]; ok {
		sm.mu.Unlock()
		return existing.sync, nil
	}
	sm.mu.Unlock()

	s := roomsync.New(roomID, userID, username, sm.store, sm.bus, sm.ledger, sm.clock, sm.cfg)
	if _, err := s.Load(ctx); err != nil {
		return nil, err
	}
	sub, err := s.Attach(context.Background())
	if err != nil {
		return nil, err
	}

	sm.mu.Lock()
	if existing, ok := sm.sessions[key]; ok {
		// Lost the race; keep the first session.
		sm.mu.Unlock()
		sub.Close()
		return existing.sync, nil
	}
	sm.sessions[key] = &session{sync: s, sub: sub}
	sm.mu.Unlock()

	log.Info().
		Str("room_id", roomID.String()).
		Str("user_id", userID.String()).
		Msg("room session attached")
	return s, nil
}

// ReleaseRoom detaches every session for a room; wired to the
// connection manager's room-empty signal so sessions do not outlive
// the clients they serve.
func (sm *SessionManager) ReleaseRoom(roomID uuid.UUID) {
	sm.mu.Lock()
	var released []*session
	for key, s := range sm.sessions {
		if key.roomID == roomID {
			delete(sm.sessions, key)
			released = append(released, s)
		}
	}
	sm.mu.Unlock()

	for _, s := range released {
		s.sub.Close()
	}
	if len(released) > 0 {
		log.Info().
			Str("room_id", roomID.String()).
			Int("sessions", len(released)).
			Msg("room sessions released")
	}
}

// CloseAll detaches every session; used on shutdown.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[sessionKey]*session)
	sm.mu.Unlock()

	for _, s := range sessions {
		s.sub.Close()
	}
}
