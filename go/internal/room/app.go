// Package room handles room lifecycle and the durable member/message
// collections. Every write goes to the backing store first; the bus
// notification follows, so observers always reconcile against rows
// that exist.
package room

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/kalimahplay/kalimah/go/internal/models"
)

// codeAlphabet excludes easily confused characters (0/O, 1/I).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 6

// RoomRepository defines what the room app needs from the backing
// store. InsertMember is idempotent on (room_id, user_id): inserting
// an existing member returns the existing row unchanged. InsertMessage
// returns the row with the store-assigned sent_at, which is the
// authoritative ordering key.
type RoomRepository interface {
	CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*models.Room, error)

	GetMembers(ctx context.Context, roomID uuid.UUID) ([]models.Member, error)
	InsertMember(ctx context.Context, m models.Member) (*models.Member, error)
	DeleteMember(ctx context.Context, id uuid.UUID) (*models.Member, error)

	GetMessages(ctx context.Context, roomID uuid.UUID) ([]models.Message, error)
	InsertMessage(ctx context.Context, m models.Message) (*models.Message, error)
}

// Publisher announces store writes on the event bus; implemented by
// eventbus.Bus.
type Publisher interface {
	PublishMessage(msg models.Message) error
	PublishMemberJoined(m models.Member) error
	PublishMemberLeft(m models.Member) error
}

// App handles room business logic.
type App struct {
	repo  RoomRepository
	pub   Publisher
	clock clockwork.Clock
}

// NewApp creates a room App.
func NewApp(repo RoomRepository, pub Publisher, clock clockwork.Clock) *App {
	return &App{
		repo:  repo,
		pub:   pub,
		clock: clock,
	}
}

// CreateRoom creates a room with a fresh join code, owned by ownerID.
func (a *App) CreateRoom(ctx context.Context, ownerID uuid.UUID) (*models.Room, error) {
	created, err := a.repo.CreateRoom(ctx, CreateRoomRequest{
		ID:      uuid.New(),
		Code:    generateCode(),
		OwnerID: ownerID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	log.Info().
		Str("room_id", created.ID.String()).
		Str("code", created.Code).
		Msg("room created")
	return created, nil
}

// GetRoom retrieves a room by id.
func (a *App) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	r, err := a.repo.GetRoom(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return r, nil
}

// GetRoomByCode resolves a join code to a room.
func (a *App) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	r, err := a.repo.GetRoomByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, fmt.Errorf("failed to get room by code: %w", err)
	}
	return r, nil
}

// JoinRoom adds a user to a room and announces the join. Joining a
// room the user is already in returns the existing membership and
// publishes nothing new worth reconciling beyond the duplicate event,
// which every dedup store ignores.
func (a *App) JoinRoom(ctx context.Context, req JoinRoomRequest) (*models.Member, error) {
	member, err := a.repo.InsertMember(ctx, models.Member{
		ID:        uuid.New(),
		RoomID:    req.RoomID,
		UserID:    req.UserID,
		Username:  req.Username,
		AvatarURL: req.AvatarURL,
		JoinedAt:  a.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert member: %w", err)
	}

	if err := a.pub.PublishMemberJoined(*member); err != nil {
		log.Error().Err(err).
			Str("room_id", req.RoomID.String()).
			Str("user_id", req.UserID.String()).
			Msg("failed to publish member join")
	}
	return member, nil
}

// LeaveRoom removes a membership row by surrogate id and announces the
// departure.
func (a *App) LeaveRoom(ctx context.Context, memberID uuid.UUID) error {
	member, err := a.repo.DeleteMember(ctx, memberID)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}

	if err := a.pub.PublishMemberLeft(*member); err != nil {
		log.Error().Err(err).
			Str("member_id", memberID.String()).
			Msg("failed to publish member leave")
	}
	return nil
}

// GetMembers returns a room's members in join order.
func (a *App) GetMembers(ctx context.Context, roomID uuid.UUID) ([]models.Member, error) {
	members, err := a.repo.GetMembers(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	return members, nil
}

// GetMessages returns a room's transcript in sent order.
func (a *App) GetMessages(ctx context.Context, roomID uuid.UUID) ([]models.Message, error) {
	messages, err := a.repo.GetMessages(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return messages, nil
}

// AppendMessage persists a chat message and announces it. The returned
// message carries the store-assigned sent_at.
func (a *App) AppendMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	stored, err := a.repo.InsertMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if err := a.pub.PublishMessage(*stored); err != nil {
		log.Error().Err(err).
			Str("message_id", stored.ID.String()).
			Msg("failed to publish message")
	}
	return stored, nil
}

func generateCode() string {
	var b strings.Builder
	for i := 0; i < codeLength; i++ {
		b.WriteByte(codeAlphabet[rand.IntN(len(codeAlphabet))])
	}
	return b.String()
}
