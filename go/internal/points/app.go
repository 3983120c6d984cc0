// Package points is the point ledger: balance adjustments are atomic
// server-side increments, never a read-modify-write of a possibly
// stale balance, and every adjustment leaves a transaction row.
package points

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kalimahplay/kalimah/go/internal/models"
)

// LedgerRepository defines what the points app needs from the backing
// store. Adjust applies the delta atomically on the store side and
// records the ledger entry in the same transaction, returning the new
// balance.
type LedgerRepository interface {
	Adjust(ctx context.Context, userID uuid.UUID, delta int, txType models.TransactionType, description string) (int, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (int, error)
}

// App applies point credits and debits.
type App struct {
	repo LedgerRepository
}

// NewApp creates a points App.
func NewApp(repo LedgerRepository) *App {
	return &App{repo: repo}
}

// Credit adjusts a user's balance by amount (negative for a debit) and
// returns the new balance.
func (a *App) Credit(ctx context.Context, userID uuid.UUID, amount int, txType models.TransactionType, description string) (int, error) {
	balance, err := a.repo.Adjust(ctx, userID, amount, txType, description)
	if err != nil {
		return 0, fmt.Errorf("failed to adjust points: %w", err)
	}

	log.Info().
		Str("user_id", userID.String()).
		Int("amount", amount).
		Str("type", string(txType)).
		Int("balance", balance).
		Msg("points adjusted")

	return balance, nil
}

// Balance returns a user's current balance.
func (a *App) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	balance, err := a.repo.GetBalance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}
