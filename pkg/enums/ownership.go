package enums

import "fmt"

// Ownership distinguishes store stock from consigned stock.
type Ownership string

const (
	OwnershipStore     Ownership = "store"
	OwnershipConsignor Ownership = "consignor"
)

var validOwnerships = []Ownership{
	OwnershipStore,
	OwnershipConsignor,
}

// String implements fmt.Stringer.
func (o Ownership) String() string {
	return string(o)
}

// IsValid reports whether the value is a known Ownership.
func (o Ownership) IsValid() bool {
	for _, candidate := range validOwnerships {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOwnership converts raw input into a Ownership.
func ParseOwnership(value string) (Ownership, error) {
	for _, candidate := range validOwnerships {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ownership %q", value)
}
