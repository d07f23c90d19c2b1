package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEntry is an immutable wallet movement. Amount is positive for
// credits and negative for debits; IdempotencyKey is unique so a replayed
// operation can only ever land once.
type LedgerEntry struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID         uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	Amount         decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	BalanceAfter   decimal.Decimal `gorm:"column:balance_after;type:numeric(14,2);not null"`
	Description    string          `gorm:"column:description;type:text;not null"`
	IdempotencyKey string          `gorm:"column:idempotency_key;type:text;not null;uniqueIndex:uq_ledger_entries_idempotency_key"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}
