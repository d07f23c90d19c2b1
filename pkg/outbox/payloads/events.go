package payloads

import (
	"time"

	"github.com/google/uuid"
)

// BookingApprovedEvent is emitted when the owner activates a booking.
type BookingApprovedEvent struct {
	BookingID   uuid.UUID `json:"booking_id"`
	PropertyID  uuid.UUID `json:"property_id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	MonthlyRent string    `json:"monthly_rent"`
	ApprovedAt  time.Time `json:"approved_at"`
}

// BookingRejectedEvent is emitted when the owner declines a pending booking.
type BookingRejectedEvent struct {
	BookingID  uuid.UUID `json:"booking_id"`
	PropertyID uuid.UUID `json:"property_id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	Reason     string    `json:"reason,omitempty"`
}

// BookingCancelledEvent is emitted when a booking is cancelled by any party.
type BookingCancelledEvent struct {
	BookingID   uuid.UUID `json:"booking_id"`
	PropertyID  uuid.UUID `json:"property_id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Reason      string    `json:"reason,omitempty"`
	Refunded    bool      `json:"refunded"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// BookingTerminatedEvent is emitted when an active booking ends early.
type BookingTerminatedEvent struct {
	BookingID    uuid.UUID `json:"booking_id"`
	PropertyID   uuid.UUID `json:"property_id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Reason       string    `json:"reason,omitempty"`
	TerminatedAt time.Time `json:"terminated_at"`
}

// RentDueEvent signals a freshly scheduled monthly obligation.
type RentDueEvent struct {
	ObligationID uuid.UUID `json:"obligation_id"`
	BookingID    uuid.UUID `json:"booking_id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Amount       string    `json:"amount"`
	DueDate      time.Time `json:"due_date"`
}

// RentPaidEvent confirms a monthly obligation was settled.
type RentPaidEvent struct {
	ObligationID     uuid.UUID `json:"obligation_id"`
	BookingID        uuid.UUID `json:"booking_id"`
	TenantID         uuid.UUID `json:"tenant_id"`
	Amount           string    `json:"amount"`
	PaymentReference string    `json:"payment_reference"`
	PaidAt           time.Time `json:"paid_at"`
}
