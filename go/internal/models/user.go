package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a player account.
type User struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	TotalPoints int       `json:"total_points"`
	CreatedAt   time.Time `json:"created_at"`
}

// TransactionType classifies a points ledger entry.
type TransactionType string

const (
	TransactionWin    TransactionType = "win"
	TransactionAIUse  TransactionType = "ai_use"
	TransactionBoost  TransactionType = "boost_purchase"
	TransactionRedeem TransactionType = "redeem"
	TransactionGift   TransactionType = "gift"
)

// PointsTransaction is one append-only entry in the points ledger.
type PointsTransaction struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	Amount      int             `json:"amount"`
	Type        TransactionType `json:"type"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
