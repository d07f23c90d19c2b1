package enums

import "fmt"

// BookingStatus describes the booking lifecycle states. Transitions only move
// forward: PENDING_APPROVAL -> ACTIVE|REJECTED|CANCELLED, ACTIVE ->
// CANCELLED|TERMINATED. Terminal states are kept for audit.
type BookingStatus string

const (
	BookingStatusPendingApproval BookingStatus = "PENDING_APPROVAL"
	BookingStatusActive          BookingStatus = "ACTIVE"
	BookingStatusRejected        BookingStatus = "REJECTED"
	BookingStatusCancelled       BookingStatus = "CANCELLED"
	BookingStatusTerminated      BookingStatus = "TERMINATED"
)

var validBookingStatuses = []BookingStatus{
	BookingStatusPendingApproval,
	BookingStatusActive,
	BookingStatusRejected,
	BookingStatusCancelled,
	BookingStatusTerminated,
}

// IsValid reports whether the value matches the canonical booking status enum.
func (b BookingStatus) IsValid() bool {
	for _, candidate := range validBookingStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (b BookingStatus) IsTerminal() bool {
	switch b {
	case BookingStatusRejected, BookingStatusCancelled, BookingStatusTerminated:
		return true
	}
	return false
}

// ParseBookingStatus converts the raw string to BookingStatus.
func ParseBookingStatus(value string) (BookingStatus, error) {
	for _, candidate := range validBookingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid booking status %q", value)
}
