package enums

import "fmt"

// UnitCondition describes the physical state of a unit.
type UnitCondition string

const (
	UnitConditionNew     UnitCondition = "new"
	UnitConditionUsed    UnitCondition = "used"
	UnitConditionDamaged UnitCondition = "damaged"
)

var validUnitConditions = []UnitCondition{
	UnitConditionNew,
	UnitConditionUsed,
	UnitConditionDamaged,
}

// String implements fmt.Stringer.
func (u UnitCondition) String() string {
	return string(u)
}

// IsValid reports whether the value is a known UnitCondition.
func (u UnitCondition) IsValid() bool {
	for _, candidate := range validUnitConditions {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseUnitCondition converts raw input into a UnitCondition.
func ParseUnitCondition(value string) (UnitCondition, error) {
	for _, candidate := range validUnitConditions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid unit condition %q", value)
}
