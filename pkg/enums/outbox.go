package enums

import "fmt"

// OutboxEventType is the canonical event_type for domain events emitted
// through the transactional outbox.
type OutboxEventType string

const (
	EventBookingApproved   OutboxEventType = "booking.approved"
	EventBookingRejected   OutboxEventType = "booking.rejected"
	EventBookingCancelled  OutboxEventType = "booking.cancelled"
	EventBookingTerminated OutboxEventType = "booking.terminated"
	EventRentDue           OutboxEventType = "rent.due"
	EventRentPaid          OutboxEventType = "rent.paid"
)

var validOutboxEventTypes = []OutboxEventType{
	EventBookingApproved,
	EventBookingRejected,
	EventBookingCancelled,
	EventBookingTerminated,
	EventRentDue,
	EventRentPaid,
}

// IsValid reports whether the value matches the canonical outbox event type enum.
func (o OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts the raw string to OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateBooking    OutboxAggregateType = "booking"
	AggregateObligation OutboxAggregateType = "obligation"
)

var validOutboxAggregateTypes = []OutboxAggregateType{
	AggregateBooking,
	AggregateObligation,
}

// IsValid reports whether the value matches the canonical aggregate type enum.
func (o OutboxAggregateType) IsValid() bool {
	for _, candidate := range validOutboxAggregateTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// OutboxDLQErrorReason classifies why an outbox row was dead-lettered.
type OutboxDLQErrorReason string

const (
	DLQReasonNonRetryable     OutboxDLQErrorReason = "non_retryable"
	DLQReasonAttemptsExceeded OutboxDLQErrorReason = "attempts_exceeded"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	DLQReasonNonRetryable,
	DLQReasonAttemptsExceeded,
}

// IsValid reports whether the value matches the canonical DLQ error reason enum.
func (o OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validOutboxDLQErrorReasons {
		if candidate == o {
			return true
		}
	}
	return false
}
