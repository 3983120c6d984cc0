// Package roomsync reconciles locally-initiated room actions with
// asynchronously delivered bus events and exposes a single consistent
// view of one room session. One Synchronizer serves one connected
// (room, user) pair; any number of instances for different users may
// run against the same backing store.
package roomsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/kalimahplay/kalimah/go/internal/eventbus"
	"github.com/kalimahplay/kalimah/go/internal/hints"
	"github.com/kalimahplay/kalimah/go/internal/models"
	"github.com/kalimahplay/kalimah/go/internal/room"
	"github.com/kalimahplay/kalimah/go/internal/roomstate"
	"github.com/kalimahplay/kalimah/go/internal/round"
)

// Store is the slice of the backing store the synchronizer composes
// for its apps; *postgres.Repository satisfies it.
type Store interface {
	room.RoomRepository
	round.RoundRepository
	hints.HintRepository
}

// Bus is the subscription surface of the event bus client.
type Bus interface {
	room.Publisher
	SubscribeMessages(roomID uuid.UUID, fn func(eventbus.MessageEvent)) (eventbus.Unsubscribe, error)
	SubscribeMembers(roomID uuid.UUID, fn func(eventbus.MemberEvent)) (eventbus.Unsubscribe, error)
}

// Config holds the game constants for a room session.
type Config struct {
	RoundDuration time.Duration
	WinBonus      int
	HintsPerRound int
	HintCost      int
}

// DefaultConfig returns the shipped game constants.
func DefaultConfig() Config {
	return Config{
		RoundDuration: 60 * time.Second,
		WinBonus:      50,
		HintsPerRound: 3,
		HintCost:      10,
	}
}

// Synchronizer orchestrates the dedup store, round state machine,
// round timer and hint tracker for one room session. Every observable
// side effect is a roster change, an appended message, or a round
// transition.
type Synchronizer struct {
	roomID   uuid.UUID
	userID   uuid.UUID
	username string

	store  Store
	rooms  *room.App
	rounds *round.App
	quota  *hints.App
	timer  *round.Timer
	bus    Bus
	clock  clockwork.Clock

	roster   *roomstate.Roster
	messages *roomstate.MessageLog

	mu      sync.Mutex
	roomRow *models.Room
	current *models.Round // open round pointer, nil when idle
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a synchronizer for one (room, user) session.
func New(roomID, userID uuid.UUID, username string, store Store, bus Bus, ledger round.Ledger, clock clockwork.Clock, cfg Config) *Synchronizer {
	roster := roomstate.NewRoster()

	s := &Synchronizer{
		roomID:   roomID,
		userID:   userID,
		username: username,
		store:    store,
		bus:      bus,
		clock:    clock,
		roster:   roster,
		messages: roomstate.NewMessageLog(),
	}
	s.rooms = room.NewApp(store, bus, clock)
	s.rounds = round.NewApp(store, store, roster, ledger, clock, round.Config{WinBonus: cfg.WinBonus})
	s.quota = hints.NewApp(store, clock, hints.Config{MaxPerRound: cfg.HintsPerRound, PointCost: cfg.HintCost})
	s.timer = round.NewTimer(clock, cfg.RoundDuration)
	return s
}

// Load seeds the session from the backing store: current members, the
// transcript, and the open round if any. The round timer is recomputed
// from the stored start time, so a reload lands on the same countdown
// every other observer derives.
func (s *Synchronizer) Load(ctx context.Context) (*Snapshot, error) {
	roomRow, err := s.rooms.GetRoom(ctx, s.roomID)
	if err != nil {
		return nil, err
	}

	members, err := s.rooms.GetMembers(ctx, s.roomID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		s.roster.Upsert(m)
	}

	messages, err := s.rooms.GetMessages(ctx, s.roomID)
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		s.messages.Append(m)
	}

	current, err := s.openRound(ctx)
	if err != nil {
		return nil, err
	}
	if current != nil {
		if err := s.quota.Seed(ctx, s.userID, current.ID); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.roomRow = roomRow
	s.current = current
	s.mu.Unlock()

	s.rescheduleExpiry()

	log.Info().
		Str("room_id", s.roomID.String()).
		Str("user_id", s.userID.String()).
		Int("members", len(members)).
		Int("messages", len(messages)).
		Bool("round_open", current != nil).
		Msg("room session loaded")

	return s.Snapshot(), nil
}

// Attach opens the bus subscriptions and wires them into the dedup
// store. Deliveries for other rooms are ignored and duplicates are
// merged idempotently. The returned Subscription detaches both
// subscriptions and cancels pending timers; releasing it more than
// once is safe.
func (s *Synchronizer) Attach(ctx context.Context) (*Subscription, error) {
	sessCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.ctx = sessCtx
	s.cancel = cancel
	s.mu.Unlock()

	unsubMsgs, err := s.bus.SubscribeMessages(s.roomID, s.onMessageEvent)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to attach message subscription: %w", err)
	}

	unsubMembers, err := s.bus.SubscribeMembers(s.roomID, s.onMemberEvent)
	if err != nil {
		unsubMsgs()
		cancel()
		return nil, fmt.Errorf("failed to attach member subscription: %w", err)
	}

	// Arm the expiry under the session context now that one exists.
	s.rescheduleExpiry()

	return newSubscription(func() {
		unsubMsgs()
		unsubMembers()
		cancel()
	}), nil
}

// onMessageEvent reconciles a bus-delivered message: appends unless
// the optimistic local write already holds it.
func (s *Synchronizer) onMessageEvent(ev eventbus.MessageEvent) {
	if ev.Message.RoomID != s.roomID {
		return
	}
	if s.messages.Append(ev.Message) {
		log.Debug().
			Str("message_id", ev.Message.ID.String()).
			Msg("remote message merged")
	}
}

// onMemberEvent reconciles a bus-delivered roster change.
func (s *Synchronizer) onMemberEvent(ev eventbus.MemberEvent) {
	if ev.Member.RoomID != s.roomID {
		return
	}
	switch ev.Kind {
	case eventbus.MemberJoined:
		s.roster.Upsert(ev.Member)
	case eventbus.MemberLeft:
		s.roster.Remove(ev.Member.ID)
	}
}

// SendMessage appends a chat message optimistically, writes it through
// to the store, and runs guess evaluation while a round is active. The
// eventual bus echo of the same id is deduped and produces no visible
// change.
func (s *Synchronizer) SendMessage(ctx context.Context, text string) error {
	msg := models.Message{
		ID:       uuid.New(),
		RoomID:   s.roomID,
		UserID:   s.userID.String(),
		Username: s.username,
		Body:     text,
		SentAt:   s.clock.Now(),
	}
	s.messages.Append(msg)

	stored, err := s.rooms.AppendMessage(ctx, msg)
	if err != nil {
		return err
	}
	// Adopt the store-assigned timestamp so this client renders the
	// same order every other observer derives.
	s.messages.Append(*stored)

	current, err := s.refreshRound(ctx)
	if err != nil {
		// The message itself persisted; a degraded store only costs
		// this guess evaluation.
		log.Warn().Err(err).
			Str("room_id", s.roomID.String()).
			Msg("failed to refresh round for guess evaluation")
		return nil
	}

	if current != nil && s.rounds.Matches(*current, s.userID, text) {
		winner := s.userID
		if err := s.endRound(ctx, current.ID, &winner); err != nil && !errors.Is(err, round.ErrRoundClosed) {
			return err
		}
	}
	return nil
}

// StartGame opens a new round with this user as the initiating host.
func (s *Synchronizer) StartGame(ctx context.Context) (*models.Round, error) {
	result, err := s.rounds.StartGame(ctx, s.roomID, s.userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = &result.Round
	s.mu.Unlock()

	if err := s.postSystem(ctx, result.Announcement); err != nil {
		return nil, err
	}
	return &result.Round, nil
}

// ConfirmWord stores the secret word (setter only) and starts the
// authoritative countdown.
func (s *Synchronizer) ConfirmWord(ctx context.Context, word string) (*models.Round, error) {
	result, err := s.rounds.ConfirmWord(ctx, s.roomID, s.userID, word)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = &result.Round
	s.mu.Unlock()

	s.rescheduleExpiry()

	if err := s.postSystem(ctx, result.Announcement); err != nil {
		return nil, err
	}
	return &result.Round, nil
}

// EndRound force-ends the current round with no winner (host action).
func (s *Synchronizer) EndRound(ctx context.Context) error {
	current, err := s.refreshRound(ctx)
	if err != nil {
		return err
	}
	if current == nil {
		return round.ErrNoRound
	}
	return s.endRound(ctx, current.ID, nil)
}

// UseHint consumes one assisted-hint slot for the current round.
func (s *Synchronizer) UseHint(ctx context.Context) (*hints.Grant, error) {
	current, err := s.refreshRound(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil || !current.WordSet() {
		return nil, round.ErrNoRound
	}
	return s.quota.UseHint(ctx, s.userID, current.ID)
}

// refreshRound re-reads the open round when the local pointer cannot
// decide. The bus carries message and member events only, so a session
// attached before the setter confirmed the word learns the round went
// active by asking the store.
func (s *Synchronizer) refreshRound(ctx context.Context) (*models.Round, error) {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current != nil && current.WordSet() {
		return current, nil
	}

	fresh, err := s.openRound(ctx)
	if err != nil {
		return nil, err
	}
	if fresh != nil {
		if err := s.quota.Seed(ctx, s.userID, fresh.ID); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.current = fresh
	s.mu.Unlock()

	s.rescheduleExpiry()
	return fresh, nil
}

// endRound drives Active -> Ended: close at the store, cancel the
// timer, clear the current-round pointer, and post the announcement.
func (s *Synchronizer) endRound(ctx context.Context, roundID uuid.UUID, winnerID *uuid.UUID) error {
	result, err := s.rounds.EndRound(ctx, roundID, winnerID)
	if err != nil {
		return err
	}

	s.timer.Cancel(roundID)

	s.mu.Lock()
	if s.current != nil && s.current.ID == roundID {
		s.current = nil
	}
	s.mu.Unlock()

	return s.postSystem(ctx, result.Announcement)
}

// expire handles the timer firing. A round that was already ended by a
// correct guess or a host action ignores the late signal.
func (s *Synchronizer) expire(roundID uuid.UUID) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.endRound(ctx, roundID, nil); err != nil {
		if errors.Is(err, round.ErrRoundClosed) {
			return
		}
		log.Error().Err(err).
			Str("round_id", roundID.String()).
			Msg("failed to end round on expiry")
	}
}

// rescheduleExpiry arms the timer for the current round if it is
// active. Scheduling is idempotent per (round, start_time).
func (s *Synchronizer) rescheduleExpiry() {
	s.mu.Lock()
	current := s.current
	ctx := s.ctx
	s.mu.Unlock()

	if current == nil || !current.WordSet() {
		return
	}
	if ctx == nil {
		return // not attached yet; Attach re-arms
	}
	s.timer.Schedule(ctx, *current, s.expire)
}

// postSystem appends a synthetic announcement through the same path as
// chat, so all observers see one coherent timeline.
func (s *Synchronizer) postSystem(ctx context.Context, text string) error {
	msg := models.Message{
		ID:       uuid.New(),
		RoomID:   s.roomID,
		UserID:   models.SystemUserID,
		Username: models.SystemUsername,
		Body:     text,
		SentAt:   s.clock.Now(),
	}
	s.messages.Append(msg)

	stored, err := s.rooms.AppendMessage(ctx, msg)
	if err != nil {
		return err
	}
	s.messages.Append(*stored)
	return nil
}

// openRound fetches the current round, mapping "no round" to nil.
func (s *Synchronizer) openRound(ctx context.Context) (*models.Round, error) {
	current, err := s.store.GetOpenRound(ctx, s.roomID)
	if errors.Is(err, round.ErrNoRound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return current, nil
}
