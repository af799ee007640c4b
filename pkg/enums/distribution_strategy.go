package enums

import "fmt"

// DistributionStrategy selects how sale profit is split across recipients.
type DistributionStrategy string

const (
	DistributionStrategySingle   DistributionStrategy = "single"
	DistributionStrategyTemplate DistributionStrategy = "template"
	DistributionStrategyManual   DistributionStrategy = "manual"
)

var validDistributionStrategies = []DistributionStrategy{
	DistributionStrategySingle,
	DistributionStrategyTemplate,
	DistributionStrategyManual,
}

// String implements fmt.Stringer.
func (d DistributionStrategy) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DistributionStrategy.
func (d DistributionStrategy) IsValid() bool {
	for _, candidate := range validDistributionStrategies {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDistributionStrategy converts raw input into a DistributionStrategy.
func ParseDistributionStrategy(value string) (DistributionStrategy, error) {
	for _, candidate := range validDistributionStrategies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid distribution strategy %q", value)
}
