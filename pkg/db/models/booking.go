package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/danielcastano/rentora-backend/pkg/enums"
)

// Booking is a tenant's rental agreement for a property. StartDate/EndDate
// are date-only values normalized to UTC midnight; EndDate nil means
// open-ended.
type Booking struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	PropertyID        uuid.UUID           `gorm:"column:property_id;type:uuid;not null;index:idx_bookings_property_status,priority:1"`
	TenantID          uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null;index"`
	Status            enums.BookingStatus `gorm:"column:status;type:booking_status_enum;not null;index:idx_bookings_property_status,priority:2"`
	MonthlyRent       decimal.Decimal     `gorm:"column:monthly_rent;type:numeric(12,2);not null"`
	SecurityDeposit   decimal.Decimal     `gorm:"column:security_deposit;type:numeric(12,2);not null"`
	StartDate         time.Time           `gorm:"column:start_date;not null"`
	EndDate           *time.Time          `gorm:"column:end_date"`
	ApprovedAt        *time.Time          `gorm:"column:approved_at"`
	RejectionReason   *string             `gorm:"column:rejection_reason;type:text"`
	CancelReason      *string             `gorm:"column:cancel_reason;type:text"`
	TerminationReason *string             `gorm:"column:termination_reason;type:text"`
	EndedAt           *time.Time          `gorm:"column:ended_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
