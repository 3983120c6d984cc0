package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/kalimahplay/kalimah/go/internal/models"
	"github.com/kalimahplay/kalimah/go/internal/room"
)

// CreateRoom inserts a room row.
func (r *Repository) CreateRoom(ctx context.Context, req room.CreateRoomRequest) (*models.Room, error) {
	const q = `
		INSERT INTO rooms (id, code, owner_id, is_active, created_at)
		VALUES ($1, $2, $3, true, now())
		RETURNING id, code, owner_id, is_active, created_at`

	var m models.Room
	err := r.pool.QueryRow(ctx, q, req.ID, req.Code, req.OwnerID).
		Scan(&m.ID, &m.Code, &m.OwnerID, &m.IsActive, &m.CreatedAt)
	if err != nil {
		return nil, wrap("create room", err)
	}
	return &m, nil
}

// GetRoom fetches a room by id.
func (r *Repository) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	const q = `
		SELECT id, code, owner_id, is_active, created_at
		FROM rooms WHERE id = $1`

	var m models.Room
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&m.ID, &m.Code, &m.OwnerID, &m.IsActive, &m.CreatedAt)
	if err != nil {
		return nil, wrap("get room", err)
	}
	return &m, nil
}

// GetRoomByCode fetches an active room by join code.
func (r *Repository) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	const q = `
		SELECT id, code, owner_id, is_active, created_at
		FROM rooms WHERE code = $1 AND is_active`

	var m models.Room
	err := r.pool.QueryRow(ctx, q, code).
		Scan(&m.ID, &m.Code, &m.OwnerID, &m.IsActive, &m.CreatedAt)
	if err != nil {
		return nil, wrap("get room by code", err)
	}
	return &m, nil
}
