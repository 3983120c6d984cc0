package round

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/kalimahplay/kalimah/go/internal/models"
)

// RoundRepository defines what the round app needs from the backing
// store. CloseRound must be atomic on the store side: only one caller
// may close an open round, every other attempt gets ErrRoundClosed.
type RoundRepository interface {
	GetOpenRound(ctx context.Context, roomID uuid.UUID) (*models.Round, error)
	CreateRound(ctx context.Context, req CreateRoundRequest) (*models.Round, error)
	SetWord(ctx context.Context, roundID uuid.UUID, word string, startTime time.Time) (*models.Round, error)
	CloseRound(ctx context.Context, roundID uuid.UUID, req CloseRoundRequest) (*models.Round, error)
}

// RoomGetter resolves a room for host checks.
type RoomGetter interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
}

// Roster is the read side of the dedup store the app consults for
// eligibility checks and display names.
type Roster interface {
	Members() []models.Member
	Get(userID uuid.UUID) (models.Member, bool)
	Len() int
}

// Ledger credits points; implemented by the points app.
type Ledger interface {
	Credit(ctx context.Context, userID uuid.UUID, amount int, txType models.TransactionType, description string) (int, error)
}

// Config holds the round game constants.
type Config struct {
	WinBonus int
}

// App owns the lifecycle of a room's current round:
// Idle -> AwaitingWord -> Active -> Ended. Precondition failures are
// typed errors; no transition is partially applied, the round row and
// the announcement are produced together or not at all.
type App struct {
	repo    RoundRepository
	rooms   RoomGetter
	roster  Roster
	ledger  Ledger
	clock   clockwork.Clock
	matcher GuessMatcher
	cfg     Config
}

// NewApp creates a round App for one room session.
func NewApp(repo RoundRepository, rooms RoomGetter, roster Roster, ledger Ledger, clock clockwork.Clock, cfg Config) *App {
	return &App{
		repo:    repo,
		rooms:   rooms,
		roster:  roster,
		ledger:  ledger,
		clock:   clock,
		matcher: ExactMatch,
		cfg:     cfg,
	}
}

// SetMatcher replaces the guess matching policy.
func (a *App) SetMatcher(m GuessMatcher) {
	a.matcher = m
}

// StateOf derives the lifecycle state from the current-round pointer.
func StateOf(r *models.Round) State {
	switch {
	case r == nil:
		return StateIdle
	case !r.Open():
		return StateEnded
	case !r.WordSet():
		return StateAwaitingWord
	default:
		return StateActive
	}
}

// StartGame opens a new round: Idle -> AwaitingWord. The caller must
// be the room owner and the roster must hold at least two members. The
// setter is chosen uniformly at random from the members excluding the
// initiating host.
func (a *App) StartGame(ctx context.Context, roomID, hostID uuid.UUID) (*Result, error) {
	room, err := a.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	if room.OwnerID != hostID {
		return nil, ErrNotAuthorized
	}

	members := a.roster.Members()
	if len(members) < 2 {
		return nil, ErrInsufficientPlayers
	}

	if _, err := a.repo.GetOpenRound(ctx, roomID); err == nil {
		return nil, ErrRoundInProgress
	} else if !errors.Is(err, ErrNoRound) {
		return nil, fmt.Errorf("failed to check open round: %w", err)
	}

	setter := pickSetter(members, hostID)

	created, err := a.repo.CreateRound(ctx, CreateRoundRequest{
		ID:        uuid.New(),
		RoomID:    roomID,
		SetterID:  setter.UserID,
		Word:      "", // confirmed later by the setter
		StartTime: a.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create round: %w", err)
	}

	log.Info().
		Str("room_id", roomID.String()).
		Str("round_id", created.ID.String()).
		Str("setter_id", setter.UserID.String()).
		Msg("round started, awaiting word")

	return &Result{
		Round:        *created,
		Announcement: fmt.Sprintf("بدأت جولة جديدة! %s سيختار الكلمة السرية", displayName(setter)),
	}, nil
}

// ConfirmWord stores the secret word: AwaitingWord -> Active. Only the
// round's setter may confirm, and the word must be non-empty after
// trimming. The start time is restamped so every observer derives the
// countdown from the moment guessing actually opened.
func (a *App) ConfirmWord(ctx context.Context, roomID, setterID uuid.UUID, word string) (*Result, error) {
	current, err := a.repo.GetOpenRound(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get open round: %w", err)
	}
	if current.SetterID != setterID {
		return nil, ErrNotAuthorized
	}
	if current.WordSet() {
		return nil, ErrRoundInProgress
	}
	word = strings.TrimSpace(word)
	if word == "" {
		return nil, ErrEmptyWord
	}

	updated, err := a.repo.SetWord(ctx, current.ID, word, a.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to set word: %w", err)
	}

	log.Info().
		Str("room_id", roomID.String()).
		Str("round_id", updated.ID.String()).
		Msg("secret word confirmed, round active")

	return &Result{
		Round:        *updated,
		Announcement: "تم تعيين الكلمة السرية! ابدأوا بطرح الأسئلة",
	}, nil
}

// Matches runs guess evaluation for one chat message against an active
// round. Messages authored by the setter never match.
func (a *App) Matches(r models.Round, userID uuid.UUID, text string) bool {
	if StateOf(&r) != StateActive {
		return false
	}
	if userID == r.SetterID {
		return false
	}
	return a.matcher(r.Word, text)
}

// EndRound closes a round: Active -> Ended. A nil winner means nobody
// guessed. Closing is atomic at the store; a round that is already
// closed yields ErrRoundClosed and nothing else happens, which makes
// late timer expiries and racing winners safe to ignore.
func (a *App) EndRound(ctx context.Context, roundID uuid.UUID, winnerID *uuid.UUID) (*Result, error) {
	closed, err := a.repo.CloseRound(ctx, roundID, CloseRoundRequest{
		WinnerID: winnerID,
		EndTime:  a.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to close round: %w", err)
	}

	var announcement string
	if winnerID != nil {
		name := "اللاعب الفائز"
		if m, ok := a.roster.Get(*winnerID); ok {
			name = displayName(m)
		}
		if _, err := a.ledger.Credit(ctx, *winnerID, a.cfg.WinBonus, models.TransactionWin, "round win"); err != nil {
			// The round is already closed; the credit is the ledger's
			// to retry, not a reason to report a failed transition.
			log.Error().Err(err).
				Str("round_id", roundID.String()).
				Str("winner_id", winnerID.String()).
				Msg("failed to credit win bonus")
		}
		announcement = fmt.Sprintf("انتهت الجولة! الفائز: %s. الكلمة كانت: %s", name, closed.Word)
	} else {
		announcement = fmt.Sprintf("انتهت الجولة! لم يتمكن أحد من تخمين الكلمة: %s", closed.Word)
	}

	log.Info().
		Str("round_id", roundID.String()).
		Bool("has_winner", winnerID != nil).
		Msg("round ended")

	return &Result{Round: *closed, Announcement: announcement}, nil
}

// pickSetter selects the round's setter uniformly at random from the
// members excluding the initiating host.
func pickSetter(members []models.Member, hostID uuid.UUID) models.Member {
	eligible := make([]models.Member, 0, len(members))
	for _, m := range members {
		if m.UserID != hostID {
			eligible = append(eligible, m)
		}
	}
	return eligible[rand.IntN(len(eligible))]
}

func displayName(m models.Member) string {
	if m.Username != "" {
		return m.Username
	}
	return m.UserID.String()
}
