package enums

import "fmt"

// VariantStatus tracks a serialized unit through inventory.
type VariantStatus string

const (
	VariantStatusAvailable VariantStatus = "available"
	VariantStatusReserved  VariantStatus = "reserved"
	VariantStatusSold      VariantStatus = "sold"
	VariantStatusArchived  VariantStatus = "archived"
)

var validVariantStatuses = []VariantStatus{
	VariantStatusAvailable,
	VariantStatusReserved,
	VariantStatusSold,
	VariantStatusArchived,
}

// String implements fmt.Stringer.
func (v VariantStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known VariantStatus.
func (v VariantStatus) IsValid() bool {
	for _, candidate := range validVariantStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseVariantStatus converts raw input into a VariantStatus.
func ParseVariantStatus(value string) (VariantStatus, error) {
	for _, candidate := range validVariantStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid variant status %q", value)
}

var variantTransitions = map[VariantStatus][]VariantStatus{
	VariantStatusAvailable: {VariantStatusSold, VariantStatusArchived, VariantStatusReserved},
	VariantStatusReserved:  {VariantStatusAvailable},
	VariantStatusSold:      {VariantStatusAvailable},
	VariantStatusArchived:  {VariantStatusAvailable},
}

// CanTransitionTo reports whether a unit may move from v to next.
func (v VariantStatus) CanTransitionTo(next VariantStatus) bool {
	for _, candidate := range variantTransitions[v] {
		if candidate == next {
			return true
		}
	}
	return false
}
