package enums

import "fmt"

// UnitOrigin records why a unit exists.
type UnitOrigin string

const (
	UnitOriginRegular           UnitOrigin = "regular"
	UnitOriginPreorderFulfilled UnitOrigin = "preorder_fulfilled"
	UnitOriginPreorderDeposit   UnitOrigin = "preorder_deposit"
)

var validUnitOrigins = []UnitOrigin{
	UnitOriginRegular,
	UnitOriginPreorderFulfilled,
	UnitOriginPreorderDeposit,
}

// String implements fmt.Stringer.
func (u UnitOrigin) String() string {
	return string(u)
}

// IsValid reports whether the value is a known UnitOrigin.
func (u UnitOrigin) IsValid() bool {
	for _, candidate := range validUnitOrigins {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseUnitOrigin converts raw input into a UnitOrigin.
func ParseUnitOrigin(value string) (UnitOrigin, error) {
	for _, candidate := range validUnitOrigins {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid unit origin %q", value)
}
