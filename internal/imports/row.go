// Package imports applies spreadsheet inventory rows to the catalog and the
// unit ledger.
package imports

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// Row is one validated inventory line.
type Row struct {
	Line           int
	ProductSKU     string
	SerialNumber   *int64
	Size           string
	SizeLabel      string
	Location       string
	Status         *enums.VariantStatus
	DateAdded      *time.Time
	Condition      *enums.UnitCondition
	CostPriceCents *int64
	VariantSKU     *string
	// Err is set when the line could not be parsed; Apply reports it and
	// moves on.
	Err error
}

const (
	colProductSKU = "product_sku"
	colSerial     = "serial_number"
	colSize       = "size"
	colSizeLabel  = "size_label"
	colLocation   = "location"
	colStatus     = "status"
	colDateAdded  = "date_added"
	colCondition  = "condition"
	colCostPrice  = "cost_price"
	colVariantSKU = "variant_sku"
)

var headerAliases = map[string]string{
	"product_sku":   colProductSKU,
	"productsku":    colProductSKU,
	"sku":           colProductSKU,
	"serial_number": colSerial,
	"serialnumber":  colSerial,
	"serial":        colSerial,
	"size":          colSize,
	"size_label":    colSizeLabel,
	"sizelabel":     colSizeLabel,
	"location":      colLocation,
	"status":        colStatus,
	"date_added":    colDateAdded,
	"dateadded":     colDateAdded,
	"condition":     colCondition,
	"cost_price":    colCostPrice,
	"costprice":     colCostPrice,
	"variant_sku":   colVariantSKU,
	"variantsku":    colVariantSKU,
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "01/02/2006", "2006/01/02"}

// header maps canonical column names to their index in a record.
type header map[string]int

func parseHeader(cells []string) (header, error) {
	h := header{}
	for i, cell := range cells {
		key := strings.ToLower(strings.TrimSpace(cell))
		key = strings.ReplaceAll(key, " ", "_")
		if canonical, ok := headerAliases[key]; ok {
			if _, dup := h[canonical]; !dup {
				h[canonical] = i
			}
		}
	}
	if _, ok := h[colProductSKU]; !ok {
		return nil, fmt.Errorf("missing %s column", colProductSKU)
	}
	return h, nil
}

func (h header) value(record []string, column string) string {
	idx, ok := h[column]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// parseRecord converts a data line. line is 1-based and counts the header.
func (h header) parseRecord(line int, record []string) Row {
	row := Row{
		Line:       line,
		ProductSKU: h.value(record, colProductSKU),
		Size:       h.value(record, colSize),
		SizeLabel:  h.value(record, colSizeLabel),
		Location:   h.value(record, colLocation),
	}
	if row.ProductSKU == "" {
		row.Err = fmt.Errorf("%s is required", colProductSKU)
		return row
	}
	if raw := h.value(record, colSerial); raw != "" {
		serial, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || serial <= 0 {
			row.Err = fmt.Errorf("invalid %s %q", colSerial, raw)
			return row
		}
		row.SerialNumber = &serial
	}
	if raw := h.value(record, colStatus); raw != "" {
		status, err := enums.ParseVariantStatus(strings.ToLower(raw))
		if err != nil {
			row.Err = err
			return row
		}
		row.Status = &status
	}
	if raw := h.value(record, colCondition); raw != "" {
		condition, err := enums.ParseUnitCondition(strings.ToLower(raw))
		if err != nil {
			row.Err = err
			return row
		}
		row.Condition = &condition
	}
	if raw := h.value(record, colDateAdded); raw != "" {
		added, err := parseDate(raw)
		if err != nil {
			row.Err = err
			return row
		}
		row.DateAdded = &added
	}
	if raw := h.value(record, colCostPrice); raw != "" {
		cents, err := parseCents(raw)
		if err != nil {
			row.Err = err
			return row
		}
		row.CostPriceCents = &cents
	}
	if raw := h.value(record, colVariantSKU); raw != "" {
		row.VariantSKU = &raw
	}
	return row
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid %s %q", colDateAdded, raw)
}

// parseCents reads a major-unit amount such as "85.5" or "$1,200.00".
func parseCents(raw string) (int64, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(raw)
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", colCostPrice, raw)
	}
	if amount.IsNegative() {
		return 0, fmt.Errorf("%s must not be negative", colCostPrice)
	}
	return amount.Shift(2).Round(0).IntPart(), nil
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
