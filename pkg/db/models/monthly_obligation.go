package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/danielcastano/rentora-backend/pkg/enums"
)

// MonthlyObligation is one month of rent owed under an active booking. The
// unique (booking_id, due_date) pair is what keeps racing confirmations from
// minting duplicate months.
type MonthlyObligation struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	BookingID        uuid.UUID              `gorm:"column:booking_id;type:uuid;not null;uniqueIndex:uq_obligations_booking_due,priority:1"`
	Amount           decimal.Decimal        `gorm:"column:amount;type:numeric(12,2);not null"`
	DueDate          time.Time              `gorm:"column:due_date;not null;uniqueIndex:uq_obligations_booking_due,priority:2"`
	Status           enums.ObligationStatus `gorm:"column:status;type:obligation_status_enum;not null"`
	PaidAt           *time.Time             `gorm:"column:paid_at"`
	PaymentReference *string                `gorm:"column:payment_reference;type:text"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
