package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/kalimahplay/kalimah/go/internal/models"
)

// Adjust applies a balance delta as a server-side increment and
// records the ledger entry in the same transaction, returning the new
// balance. The balance is never computed client-side from a prior
// read.
func (r *Repository) Adjust(ctx context.Context, userID uuid.UUID, delta int, txType models.TransactionType, description string) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, wrap("begin tx", err)
	}
	defer tx.Rollback(ctx)

	const adjustQ = `
		UPDATE users SET total_points = total_points + $2
		WHERE id = $1
		RETURNING total_points`
	var balance int
	if err := tx.QueryRow(ctx, adjustQ, userID, delta).Scan(&balance); err != nil {
		return 0, wrap("adjust points", err)
	}

	const ledgerQ = `
		INSERT INTO points_transactions (id, user_id, amount, tx_type, description, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`
	if _, err := tx.Exec(ctx, ledgerQ, uuid.New(), userID, delta, txType, description); err != nil {
		return 0, wrap("record transaction", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, wrap("commit adjustment", err)
	}
	return balance, nil
}

// GetBalance returns a user's current point balance.
func (r *Repository) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	const q = `SELECT total_points FROM users WHERE id = $1`

	var balance int
	if err := r.pool.QueryRow(ctx, q, userID).Scan(&balance); err != nil {
		return 0, wrap("get balance", err)
	}
	return balance, nil
}
