package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/danielcastano/rentora-backend/pkg/enums"
)

// Property is the listing a booking attaches to. Only the fields the booking
// lifecycle reads/writes live here; catalog management is a separate service.
type Property struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID     uuid.UUID            `gorm:"column:owner_id;type:uuid;not null;index"`
	Title       string               `gorm:"column:title;type:text;not null"`
	Address     string               `gorm:"column:address;type:text;not null"`
	Status      enums.PropertyStatus `gorm:"column:status;type:property_status_enum;not null"`
	MonthlyRent decimal.Decimal      `gorm:"column:monthly_rent;type:numeric(12,2);not null"`
	Deposit     decimal.Decimal      `gorm:"column:deposit;type:numeric(12,2);not null"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
