package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/kalimahplay/kalimah/go/internal/hints"
	"github.com/kalimahplay/kalimah/go/internal/models"
)

// CountHintUses returns the confirmed hint uses for a (user, round)
// pair.
func (r *Repository) CountHintUses(ctx context.Context, userID, roundID uuid.UUID) (int, error) {
	const q = `
		SELECT count(*) FROM round_hints
		WHERE user_id = $1 AND round_id = $2`

	var n int
	if err := r.pool.QueryRow(ctx, q, userID, roundID).Scan(&n); err != nil {
		return 0, wrap("count hint uses", err)
	}
	return n, nil
}

// InsertHintUse records one hint use and debits its point cost in a
// single transaction. An advisory lock on the (round, user) pair
// serializes concurrent attempts so the conditional insert cannot let
// two callers both claim the last quota slot. Over quota, nothing is
// written and hints.ErrQuotaExceeded is returned.
func (r *Repository) InsertHintUse(ctx context.Context, use models.HintUse, max, cost int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return wrap("begin tx", err)
	}
	defer tx.Rollback(ctx)

	const lockQ = `SELECT pg_advisory_xact_lock(hashtextextended($1 || $2, 0))`
	if _, err := tx.Exec(ctx, lockQ, use.RoundID.String(), use.UserID.String()); err != nil {
		return wrap("take hint lock", err)
	}

	const insertQ = `
		INSERT INTO round_hints (id, round_id, user_id, used_at)
		SELECT $1, $2, $3, $4
		WHERE (SELECT count(*) FROM round_hints WHERE round_id = $2 AND user_id = $3) < $5`
	tag, err := tx.Exec(ctx, insertQ, use.ID, use.RoundID, use.UserID, use.UsedAt, max)
	if err != nil {
		return wrap("insert hint use", err)
	}
	if tag.RowsAffected() == 0 {
		return hints.ErrQuotaExceeded
	}

	const debitQ = `
		UPDATE users SET total_points = total_points - $2 WHERE id = $1`
	if _, err := tx.Exec(ctx, debitQ, use.UserID, cost); err != nil {
		return wrap("debit hint cost", err)
	}

	const ledgerQ = `
		INSERT INTO points_transactions (id, user_id, amount, tx_type, description, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`
	if _, err := tx.Exec(ctx, ledgerQ, uuid.New(), use.UserID, -cost, models.TransactionAIUse, "ai hint"); err != nil {
		return wrap("record hint transaction", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return wrap("commit hint use", err)
	}
	return nil
}
