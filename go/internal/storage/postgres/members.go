package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kalimahplay/kalimah/go/internal/models"
)

// GetMembers returns a room's members in join order.
func (r *Repository) GetMembers(ctx context.Context, roomID uuid.UUID) ([]models.Member, error) {
	const q = `
		SELECT id, room_id, user_id, username, avatar_url, joined_at
		FROM room_members
		WHERE room_id = $1
		ORDER BY joined_at, id`

	rows, err := r.pool.Query(ctx, q, roomID)
	if err != nil {
		return nil, wrap("get members", err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Username, &m.AvatarURL, &m.JoinedAt); err != nil {
			return nil, wrap("scan member", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// InsertMember adds a membership row. The (room_id, user_id) pair is
// unique; inserting an existing member returns the existing row
// unchanged.
func (r *Repository) InsertMember(ctx context.Context, m models.Member) (*models.Member, error) {
	const q = `
		INSERT INTO room_members (id, room_id, user_id, username, avatar_url, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (room_id, user_id) DO NOTHING
		RETURNING id, room_id, user_id, username, avatar_url, joined_at`

	var out models.Member
	err := r.pool.QueryRow(ctx, q, m.ID, m.RoomID, m.UserID, m.Username, m.AvatarURL, m.JoinedAt).
		Scan(&out.ID, &out.RoomID, &out.UserID, &out.Username, &out.AvatarURL, &out.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict: the membership already exists.
		return r.getMemberByUser(ctx, m.RoomID, m.UserID)
	}
	if err != nil {
		return nil, wrap("insert member", err)
	}
	return &out, nil
}

// DeleteMember removes a membership row by surrogate id and returns
// the removed row.
func (r *Repository) DeleteMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	const q = `
		DELETE FROM room_members WHERE id = $1
		RETURNING id, room_id, user_id, username, avatar_url, joined_at`

	var m models.Member
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&m.ID, &m.RoomID, &m.UserID, &m.Username, &m.AvatarURL, &m.JoinedAt)
	if err != nil {
		return nil, wrap("delete member", err)
	}
	return &m, nil
}

func (r *Repository) getMemberByUser(ctx context.Context, roomID, userID uuid.UUID) (*models.Member, error) {
	const q = `
		SELECT id, room_id, user_id, username, avatar_url, joined_at
		FROM room_members
		WHERE room_id = $1 AND user_id = $2`

	var m models.Member
	err := r.pool.QueryRow(ctx, q, roomID, userID).
		Scan(&m.ID, &m.RoomID, &m.UserID, &m.Username, &m.AvatarURL, &m.JoinedAt)
	if err != nil {
		return nil, wrap("get member", err)
	}
	return &m, nil
}
