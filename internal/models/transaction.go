package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one committed ledger entry. Rows are immutable: they are
// created inside the same storage transaction that moves the money, never
// updated or deleted.
type Transaction struct {
	ID             string          `json:"id"`
	SenderID       string          `json:"sender_id"`
	ReceiverID     string          `json:"receiver_id"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
