package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/kalimahplay/kalimah/go/internal/models"
)

// GetMessages returns a room's transcript ordered by the
// store-assigned sent_at, ties broken by id.
func (r *Repository) GetMessages(ctx context.Context, roomID uuid.UUID) ([]models.Message, error) {
	const q = `
		SELECT id, room_id, user_id, username, message, sent_at
		FROM room_messages
		WHERE room_id = $1
		ORDER BY sent_at, id`

	rows, err := r.pool.Query(ctx, q, roomID)
	if err != nil {
		return nil, wrap("get messages", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Username, &m.Body, &m.SentAt); err != nil {
			return nil, wrap("scan message", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// InsertMessage appends a message. The store stamps sent_at; the
// returned row carries the authoritative ordering key. Re-inserting an
// existing id returns the stored row unchanged.
func (r *Repository) InsertMessage(ctx context.Context, m models.Message) (*models.Message, error) {
	const q = `
		INSERT INTO room_messages (id, room_id, user_id, username, message, sent_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET id = room_messages.id
		RETURNING id, room_id, user_id, username, message, sent_at`

	var out models.Message
	err := r.pool.QueryRow(ctx, q, m.ID, m.RoomID, m.UserID, m.Username, m.Body).
		Scan(&out.ID, &out.RoomID, &out.UserID, &out.Username, &out.Body, &out.SentAt)
	if err != nil {
		return nil, wrap("insert message", err)
	}
	return &out, nil
}
