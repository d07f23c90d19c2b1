package enums

import "fmt"

// ObligationStatus tracks a monthly rent obligation. PENDING -> PAID happens
// at most once.
type ObligationStatus string

const (
	ObligationStatusPending ObligationStatus = "PENDING"
	ObligationStatusPaid    ObligationStatus = "PAID"
)

var validObligationStatuses = []ObligationStatus{
	ObligationStatusPending,
	ObligationStatusPaid,
}

// IsValid reports whether the value matches the canonical obligation status enum.
func (o ObligationStatus) IsValid() bool {
	for _, candidate := range validObligationStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseObligationStatus converts the raw string to ObligationStatus.
func ParseObligationStatus(value string) (ObligationStatus, error) {
	for _, candidate := range validObligationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid obligation status %q", value)
}
