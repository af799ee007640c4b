package enums

import "fmt"

// SaleOrigin names the flow that produced a sale.
type SaleOrigin string

const (
	SaleOriginDirect             SaleOrigin = "direct"
	SaleOriginPreorderFulfilment SaleOrigin = "preorder_fulfilment"
	SaleOriginPreorderDeposit    SaleOrigin = "preorder_deposit"
)

var validSaleOrigins = []SaleOrigin{
	SaleOriginDirect,
	SaleOriginPreorderFulfilment,
	SaleOriginPreorderDeposit,
}

// String implements fmt.Stringer.
func (s SaleOrigin) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SaleOrigin.
func (s SaleOrigin) IsValid() bool {
	for _, candidate := range validSaleOrigins {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSaleOrigin converts raw input into a SaleOrigin.
func ParseSaleOrigin(value string) (SaleOrigin, error) {
	for _, candidate := range validSaleOrigins {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sale origin %q", value)
}
