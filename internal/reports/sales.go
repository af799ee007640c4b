// Package reports renders tenant data into spreadsheet exports.
package reports

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/angelmondragon/stockledger-backend/internal/sales"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
)

const (
	salesSheet         = "Sales"
	distributionsSheet = "Distributions"
	dateFormat         = "2006-01-02"
)

var (
	salesHeadings = []any{"Sale #", "Date", "Status", "Origin", "Payment", "Customer", "Items",
		"Total", "Discount", "Net profit", "Distributable"}
	distributionHeadings = []any{"Sale #", "Recipient", "Percentage", "Amount"}
)

// SalesSource reads the rows a sales export is built from.
type SalesSource interface {
	ExportSales(ctx context.Context, tenantID uuid.UUID, filters sales.ListFilters) ([]sales.ExportSale, error)
	ExportShares(ctx context.Context, tenantID uuid.UUID, filters sales.ListFilters) ([]sales.ExportShare, error)
}

// Exporter writes sales workbooks.
type Exporter struct {
	source SalesSource
}

func NewExporter(source SalesSource) (*Exporter, error) {
	if source == nil {
		return nil, fmt.Errorf("sales source required")
	}
	return &Exporter{source: source}, nil
}

// WriteSales writes a workbook with one sheet of sale headers, ending in a
// totals line, and one sheet of distribution rows.
func (e *Exporter) WriteSales(ctx context.Context, tenantID uuid.UUID, filters sales.ListFilters, w io.Writer) error {
	headers, err := e.source.ExportSales(ctx, tenantID, filters)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load sales for export")
	}
	shares, err := e.source.ExportShares(ctx, tenantID, filters)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load distributions for export")
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName(f.GetSheetName(0), salesSheet); err != nil {
		return exportFailed(err)
	}
	if _, err := f.NewSheet(distributionsSheet); err != nil {
		return exportFailed(err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return exportFailed(err)
	}

	if err := writeRow(f, salesSheet, 1, salesHeadings); err != nil {
		return exportFailed(err)
	}
	var total, discount, net, distributable int64
	for i, h := range headers {
		row := []any{h.SaleNumber, h.SaleDate.Format(dateFormat), string(h.Status), string(h.Origin),
			h.PaymentMethod, h.CustomerName, h.ItemCount,
			money(h.TotalCents), money(h.DiscountCents), money(h.NetProfitCents), money(h.DistributableCents)}
		if err := writeRow(f, salesSheet, i+2, row); err != nil {
			return exportFailed(err)
		}
		total += h.TotalCents
		discount += h.DiscountCents
		net += h.NetProfitCents
		distributable += h.DistributableCents
	}
	totalsLine := len(headers) + 2
	totals := []any{"Total", nil, nil, nil, nil, nil, nil, money(total), money(discount), money(net), money(distributable)}
	if err := writeRow(f, salesSheet, totalsLine, totals); err != nil {
		return exportFailed(err)
	}
	if err := styleRows(f, salesSheet, bold, 1, totalsLine, len(salesHeadings)); err != nil {
		return exportFailed(err)
	}

	if err := writeRow(f, distributionsSheet, 1, distributionHeadings); err != nil {
		return exportFailed(err)
	}
	for i, s := range shares {
		recipient := s.AvatarID.String()
		if s.RecipientName != nil {
			recipient = *s.RecipientName
		}
		row := []any{s.SaleNumber, recipient, s.Percentage.InexactFloat64(), money(s.AmountCents)}
		if err := writeRow(f, distributionsSheet, i+2, row); err != nil {
			return exportFailed(err)
		}
	}
	if err := styleRows(f, distributionsSheet, bold, 1, 1, len(distributionHeadings)); err != nil {
		return exportFailed(err)
	}

	if err := f.Write(w); err != nil {
		return exportFailed(err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, line int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, line)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

// styleRows applies style to the first and last lines of a sheet.
func styleRows(f *excelize.File, sheet string, style, first, last, columns int) error {
	for _, line := range []int{first, last} {
		start, err := excelize.CoordinatesToCellName(1, line)
		if err != nil {
			return err
		}
		end, err := excelize.CoordinatesToCellName(columns, line)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, start, end, style); err != nil {
			return err
		}
	}
	return nil
}

// money converts cents into a major-unit number for spreadsheet cells.
func money(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}

func exportFailed(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render sales workbook")
}
