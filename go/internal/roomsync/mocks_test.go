package roomsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/kalimahplay/kalimah/go/internal/eventbus"
	"github.com/kalimahplay/kalimah/go/internal/hints"
	"github.com/kalimahplay/kalimah/go/internal/models"
	"github.com/kalimahplay/kalimah/go/internal/room"
	"github.com/kalimahplay/kalimah/go/internal/round"
)

var errNotFound = errors.New("not found")

// memStore is an in-memory Store with the same conditional-write
// semantics as the Postgres repository: one open round per room, the
// first close wins, hint inserts land only below the quota.
type memStore struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	rooms    map[uuid.UUID]models.Room
	members  []models.Member
	messages []models.Message
	rounds   map[uuid.UUID]*models.Round
	hintUses map[uuid.UUID]map[uuid.UUID]int // round id -> user id -> uses

	// stampSkew offsets the store-assigned message timestamps,
	// simulating a client clock that disagrees with the store.
	stampSkew time.Duration
}

func newMemStore(clock clockwork.Clock) *memStore {
	return &memStore{
		clock:    clock,
		rooms:    make(map[uuid.UUID]models.Room),
		rounds:   make(map[uuid.UUID]*models.Round),
		hintUses: make(map[uuid.UUID]map[uuid.UUID]int),
	}
}

func (s *memStore) CreateRoom(ctx context.Context, req room.CreateRoomRequest) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := models.Room{ID: req.ID, Code: req.Code, OwnerID: req.OwnerID, IsActive: true, CreatedAt: s.clock.Now()}
	s.rooms[r.ID] = r
	return &r, nil
}

func (s *memStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, errNotFound
	}
	return &r, nil
}

func (s *memStore) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if r.Code == code {
			return &r, nil
		}
	}
	return nil, errNotFound
}

func (s *memStore) GetMembers(ctx context.Context, roomID uuid.UUID) ([]models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Member
	for _, m := range s.members {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) InsertMember(ctx context.Context, m models.Member) (*models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.members {
		if existing.RoomID == m.RoomID && existing.UserID == m.UserID {
			return &existing, nil
		}
	}
	s.members = append(s.members, m)
	return &m, nil
}

func (s *memStore) DeleteMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.members {
		if m.ID == id {
			s.members = append(s.members[:i], s.members[i+1:]...)
			return &m, nil
		}
	}
	return nil, errNotFound
}

func (s *memStore) GetMessages(ctx context.Context, roomID uuid.UUID) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) InsertMessage(ctx context.Context, m models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.messages {
		if existing.ID == m.ID {
			return &existing, nil
		}
	}
	m.SentAt = s.clock.Now().Add(s.stampSkew) // store-assigned ordering key
	s.messages = append(s.messages, m)
	return &m, nil
}

func (s *memStore) GetOpenRound(ctx context.Context, roomID uuid.UUID) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rounds {
		if r.RoomID == roomID && r.EndTime == nil {
			out := *r
			return &out, nil
		}
	}
	return nil, round.ErrNoRound
}

func (s *memStore) CreateRound(ctx context.Context, req round.CreateRoundRequest) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rounds {
		if r.RoomID == req.RoomID && r.EndTime == nil {
			return nil, round.ErrRoundInProgress
		}
	}
	r := &models.Round{
		ID:        req.ID,
		RoomID:    req.RoomID,
		SetterID:  req.SetterID,
		Word:      req.Word,
		StartTime: req.StartTime,
	}
	s.rounds[r.ID] = r
	out := *r
	return &out, nil
}

func (s *memStore) SetWord(ctx context.Context, roundID uuid.UUID, word string, startTime time.Time) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok || r.EndTime != nil || r.Word != "" {
		return nil, round.ErrRoundClosed
	}
	r.Word = word
	r.StartTime = startTime
	out := *r
	return &out, nil
}

func (s *memStore) CloseRound(ctx context.Context, roundID uuid.UUID, req round.CloseRoundRequest) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok || r.EndTime != nil {
		return nil, round.ErrRoundClosed
	}
	r.WinnerID = req.WinnerID
	end := req.EndTime
	r.EndTime = &end
	out := *r
	return &out, nil
}

func (s *memStore) CountHintUses(ctx context.Context, userID, roundID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hintUses[roundID][userID], nil
}

func (s *memStore) InsertHintUse(ctx context.Context, use models.HintUse, max, cost int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hintUses[use.RoundID][use.UserID] >= max {
		return hints.ErrQuotaExceeded
	}
	if s.hintUses[use.RoundID] == nil {
		s.hintUses[use.RoundID] = make(map[uuid.UUID]int)
	}
	s.hintUses[use.RoundID][use.UserID]++
	return nil
}

// memBus delivers published events synchronously to every subscriber,
// including the publisher's own session, which is exactly the echo the
// dedup stores must absorb.
type memBus struct {
	mu      sync.Mutex
	nextID  int
	msgSubs map[uuid.UUID]map[int]func(eventbus.MessageEvent)
	memSubs map[uuid.UUID]map[int]func(eventbus.MemberEvent)
}

func newMemBus() *memBus {
	return &memBus{
		msgSubs: make(map[uuid.UUID]map[int]func(eventbus.MessageEvent)),
		memSubs: make(map[uuid.UUID]map[int]func(eventbus.MemberEvent)),
	}
}

func (b *memBus) SubscribeMessages(roomID uuid.UUID, fn func(eventbus.MessageEvent)) (eventbus.Unsubscribe, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.msgSubs[roomID] == nil {
		b.msgSubs[roomID] = make(map[int]func(eventbus.MessageEvent))
	}
	id := b.nextID
	b.nextID++
	b.msgSubs[roomID][id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.msgSubs[roomID], id)
	}, nil
}

func (b *memBus) SubscribeMembers(roomID uuid.UUID, fn func(eventbus.MemberEvent)) (eventbus.Unsubscribe, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.memSubs[roomID] == nil {
		b.memSubs[roomID] = make(map[int]func(eventbus.MemberEvent))
	}
	id := b.nextID
	b.nextID++
	b.memSubs[roomID][id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.memSubs[roomID], id)
	}, nil
}

func (b *memBus) PublishMessage(msg models.Message) error {
	for _, fn := range b.messageSubscribers(msg.RoomID) {
		fn(eventbus.MessageEvent{Message: msg})
	}
	return nil
}

func (b *memBus) PublishMemberJoined(m models.Member) error {
	return b.publishMember(eventbus.MemberEvent{Kind: eventbus.MemberJoined, Member: m})
}

func (b *memBus) PublishMemberLeft(m models.Member) error {
	return b.publishMember(eventbus.MemberEvent{Kind: eventbus.MemberLeft, Member: m})
}

func (b *memBus) publishMember(ev eventbus.MemberEvent) error {
	b.mu.Lock()
	subs := make([]func(eventbus.MemberEvent), 0, len(b.memSubs[ev.Member.RoomID]))
	for _, fn := range b.memSubs[ev.Member.RoomID] {
		subs = append(subs, fn)
	}
	b.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
	return nil
}

func (b *memBus) messageSubscribers(roomID uuid.UUID) []func(eventbus.MessageEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := make([]func(eventbus.MessageEvent), 0, len(b.msgSubs[roomID]))
	for _, fn := range b.msgSubs[roomID] {
		subs = append(subs, fn)
	}
	return subs
}
