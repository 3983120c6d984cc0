package models

import (
	"time"

	"github.com/google/uuid"
)

// HintUse is an append-only record of one assisted-hint use, counted
// per (UserID, RoundID) to enforce the quota.
type HintUse struct {
	ID      uuid.UUID `json:"id"`
	RoundID uuid.UUID `json:"round_id"`
	UserID  uuid.UUID `json:"user_id"`
	UsedAt  time.Time `json:"used_at"`
}
