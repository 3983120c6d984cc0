// Package hints enforces the per-(player, round) assisted-hint quota
// and mediates the point cost of each use.
package hints

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/kalimahplay/kalimah/go/internal/models"
)

// HintRepository defines what the quota tracker needs from the backing
// store. InsertHintUse must be atomic: the record, the point debit and
// its ledger entry land together only while the (user, round) count is
// below max, otherwise ErrQuotaExceeded and nothing is written.
type HintRepository interface {
	CountHintUses(ctx context.Context, userID, roundID uuid.UUID) (int, error)
	InsertHintUse(ctx context.Context, use models.HintUse, max, cost int) error
}

// Config holds the quota constants.
type Config struct {
	MaxPerRound int
	PointCost   int
}

// Grant is the outcome of a successful hint use.
type Grant struct {
	Hint      string
	Remaining int
}

// hintPool is the set of canned hint strings a successful use returns
// one of, uniformly at random.
var hintPool = []string{
	"قد تكون الكلمة مرتبطة بالطعام!",
	"جرب السؤال عن ما إذا كان الشيء موجود في المنزل",
	"هل يمكن أن تكون شيئًا تستخدمه يوميًا؟",
	"فكر في الأشياء التي تراها في الطبيعة",
}

type quotaKey struct {
	userID  uuid.UUID
	roundID uuid.UUID
}

// App tracks hint usage for one room session. The store's conditional
// insert is the cross-client guard; the local reservation is the
// compare-and-set that keeps two concurrent calls from this client
// from both claiming the last slot. A failed store write releases the
// reservation, so an unconfirmed use is never counted.
type App struct {
	repo  HintRepository
	clock clockwork.Clock
	cfg   Config

	mu       sync.Mutex
	consumed map[quotaKey]int // confirmed + in-flight reservations
}

// NewApp creates a hint quota tracker.
func NewApp(repo HintRepository, clock clockwork.Clock, cfg Config) *App {
	return &App{
		repo:     repo,
		clock:    clock,
		cfg:      cfg,
		consumed: make(map[quotaKey]int),
	}
}

// Seed primes the local counter from the store, used on (re)load so a
// reconnecting client cannot restart its quota.
func (a *App) Seed(ctx context.Context, userID, roundID uuid.UUID) error {
	used, err := a.repo.CountHintUses(ctx, userID, roundID)
	if err != nil {
		return fmt.Errorf("failed to count hint uses: %w", err)
	}

	a.mu.Lock()
	a.consumed[quotaKey{userID, roundID}] = used
	a.mu.Unlock()
	return nil
}

// Remaining returns the uses left for a (user, round) pair as locally
// known.
func (a *App) Remaining(userID, roundID uuid.UUID) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	left := a.cfg.MaxPerRound - a.consumed[quotaKey{userID, roundID}]
	if left < 0 {
		return 0
	}
	return left
}

// UseHint consumes one quota slot: reserve locally, write through to
// the store, and return a hint on success. Exceeding the quota returns
// ErrQuotaExceeded with no record written and no points moved.
func (a *App) UseHint(ctx context.Context, userID, roundID uuid.UUID) (*Grant, error) {
	key := quotaKey{userID, roundID}

	a.mu.Lock()
	if a.consumed[key] >= a.cfg.MaxPerRound {
		a.mu.Unlock()
		return nil, ErrQuotaExceeded
	}
	a.consumed[key]++
	a.mu.Unlock()

	use := models.HintUse{
		ID:      uuid.New(),
		RoundID: roundID,
		UserID:  userID,
		UsedAt:  a.clock.Now(),
	}

	if err := a.repo.InsertHintUse(ctx, use, a.cfg.MaxPerRound, a.cfg.PointCost); err != nil {
		// Not consumed until the store confirms it.
		a.mu.Lock()
		a.consumed[key]--
		a.mu.Unlock()
		if errors.Is(err, ErrQuotaExceeded) {
			return nil, ErrQuotaExceeded
		}
		return nil, fmt.Errorf("failed to record hint use: %w", err)
	}

	remaining := a.Remaining(userID, roundID)
	log.Info().
		Str("user_id", userID.String()).
		Str("round_id", roundID.String()).
		Int("remaining", remaining).
		Msg("hint granted")

	return &Grant{
		Hint:      hintPool[rand.IntN(len(hintPool))],
		Remaining: remaining,
	}, nil
}
