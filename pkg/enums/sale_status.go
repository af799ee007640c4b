package enums

import "fmt"

// SaleStatus tracks settlement of a sale.
type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "pending"
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusRefunded  SaleStatus = "refunded"
	SaleStatusVoided    SaleStatus = "voided"
)

var validSaleStatuses = []SaleStatus{
	SaleStatusPending,
	SaleStatusCompleted,
	SaleStatusRefunded,
	SaleStatusVoided,
}

// String implements fmt.Stringer.
func (s SaleStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SaleStatus.
func (s SaleStatus) IsValid() bool {
	for _, candidate := range validSaleStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSaleStatus converts raw input into a SaleStatus.
func ParseSaleStatus(value string) (SaleStatus, error) {
	for _, candidate := range validSaleStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sale status %q", value)
}
