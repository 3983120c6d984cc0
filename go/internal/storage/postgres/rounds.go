package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kalimahplay/kalimah/go/internal/models"
	"github.com/kalimahplay/kalimah/go/internal/round"
)

const roundColumns = "id, room_id, setter_id, word, winner_id, start_time, end_time"

// GetOpenRound returns the room's current round, i.e. the single round
// with no end stamp. Returns round.ErrNoRound when the room is idle.
func (r *Repository) GetOpenRound(ctx context.Context, roomID uuid.UUID) (*models.Round, error) {
	const q = `
		SELECT ` + roundColumns + `
		FROM rounds
		WHERE room_id = $1 AND end_time IS NULL`

	m, err := scanRound(r.pool.QueryRow(ctx, q, roomID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, round.ErrNoRound
	}
	if err != nil {
		return nil, wrap("get open round", err)
	}
	return m, nil
}

// CreateRound inserts a round row. The partial unique index on
// (room_id) WHERE end_time IS NULL enforces at most one open round per
// room; a conflicting insert surfaces as round.ErrRoundInProgress.
func (r *Repository) CreateRound(ctx context.Context, req round.CreateRoundRequest) (*models.Round, error) {
	const q = `
		INSERT INTO rounds (id, room_id, setter_id, word, start_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
		RETURNING ` + roundColumns

	m, err := scanRound(r.pool.QueryRow(ctx, q, req.ID, req.RoomID, req.SetterID, req.Word, req.StartTime))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, round.ErrRoundInProgress
	}
	if err != nil {
		return nil, wrap("create round", err)
	}
	return m, nil
}

// SetWord confirms the secret word and restamps start_time on a round
// that is still awaiting its word.
func (r *Repository) SetWord(ctx context.Context, roundID uuid.UUID, word string, startTime time.Time) (*models.Round, error) {
	const q = `
		UPDATE rounds
		SET word = $2, start_time = $3
		WHERE id = $1 AND end_time IS NULL AND word = ''
		RETURNING ` + roundColumns

	m, err := scanRound(r.pool.QueryRow(ctx, q, roundID, word, startTime))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, round.ErrRoundClosed
	}
	if err != nil {
		return nil, wrap("set word", err)
	}
	return m, nil
}

// CloseRound stamps end_time and winner on an open round. The WHERE
// end_time IS NULL guard makes the close atomic: exactly one of any
// number of racing callers wins, the rest get round.ErrRoundClosed.
func (r *Repository) CloseRound(ctx context.Context, roundID uuid.UUID, req round.CloseRoundRequest) (*models.Round, error) {
	const q = `
		UPDATE rounds
		SET end_time = $2, winner_id = $3
		WHERE id = $1 AND end_time IS NULL
		RETURNING ` + roundColumns

	m, err := scanRound(r.pool.QueryRow(ctx, q, roundID, req.EndTime, req.WinnerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, round.ErrRoundClosed
	}
	if err != nil {
		return nil, wrap("close round", err)
	}
	return m, nil
}

func scanRound(row pgx.Row) (*models.Round, error) {
	var m models.Round
	if err := row.Scan(&m.ID, &m.RoomID, &m.SetterID, &m.Word, &m.WinnerID, &m.StartTime, &m.EndTime); err != nil {
		return nil, err
	}
	return &m, nil
}
