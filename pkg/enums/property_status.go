package enums

import "fmt"

// PropertyStatus is the catalog availability state. The booking lifecycle
// flips FOR_RENT <-> RENTED as a side effect; sale states belong to the
// inquiry flow and are never written by this service.
type PropertyStatus string

const (
	PropertyStatusForRent PropertyStatus = "FOR_RENT"
	PropertyStatusRented  PropertyStatus = "RENTED"
	PropertyStatusForSale PropertyStatus = "FOR_SALE"
	PropertyStatusSold    PropertyStatus = "SOLD"
)

var validPropertyStatuses = []PropertyStatus{
	PropertyStatusForRent,
	PropertyStatusRented,
	PropertyStatusForSale,
	PropertyStatusSold,
}

// IsValid reports whether the value matches the canonical property status enum.
func (p PropertyStatus) IsValid() bool {
	for _, candidate := range validPropertyStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePropertyStatus converts the raw string to PropertyStatus.
func ParsePropertyStatus(value string) (PropertyStatus, error) {
	for _, candidate := range validPropertyStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid property status %q", value)
}
