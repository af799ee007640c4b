package controllers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/api/responses"
	"github.com/angelmondragon/stockledger-backend/api/validators"
	"github.com/angelmondragon/stockledger-backend/internal/reports"
	"github.com/angelmondragon/stockledger-backend/internal/sales"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

// RecordSale runs the sale saga for a set of available units.
func RecordSale(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload recordSaleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.TenantID = tenantID

		result, err := svc.RecordSale(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type recordSaleRequest struct {
	Items         []saleItemRequest   `json:"items" validate:"required,min=1,dive"`
	DiscountCents int64               `json:"discount_cents" validate:"min=0"`
	PaymentMethod string              `json:"payment_method" validate:"required,max=64"`
	Customer      customerRequest     `json:"customer"`
	SaleDate      *time.Time          `json:"sale_date,omitempty"`
	Status        *string             `json:"status,omitempty"`
	Distribution  distributionRequest `json:"distribution" validate:"required"`
	Notes         *string             `json:"notes,omitempty"`
}

type saleItemRequest struct {
	VariantID      string `json:"variant_id" validate:"required,uuid"`
	SoldPriceCents int64  `json:"sold_price_cents" validate:"min=0"`
	CostPriceCents *int64 `json:"cost_price_cents,omitempty" validate:"omitempty,min=0"`
}

type customerRequest struct {
	Name  string  `json:"name" validate:"max=255"`
	Phone *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	ID    *string `json:"id,omitempty" validate:"omitempty,uuid"`
}

func (c customerRequest) toInput() (sales.CustomerInput, error) {
	id, err := parseOptionalUUID(c.ID, "customer.id")
	if err != nil {
		return sales.CustomerInput{}, err
	}
	return sales.CustomerInput{
		Name:  validators.SanitizeString(c.Name, 255),
		Phone: c.Phone,
		ID:    id,
	}, nil
}

func (r recordSaleRequest) toInput() (sales.RecordSaleInput, error) {
	items := make([]sales.ItemInput, 0, len(r.Items))
	for _, item := range r.Items {
		variantID, err := uuid.Parse(item.VariantID)
		if err != nil {
			return sales.RecordSaleInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid variant_id")
		}
		items = append(items, sales.ItemInput{
			VariantID:      variantID,
			SoldPriceCents: item.SoldPriceCents,
			CostPriceCents: item.CostPriceCents,
		})
	}
	customer, err := r.Customer.toInput()
	if err != nil {
		return sales.RecordSaleInput{}, err
	}
	strategy, err := r.Distribution.toStrategy()
	if err != nil {
		return sales.RecordSaleInput{}, err
	}
	input := sales.RecordSaleInput{
		Items:         items,
		DiscountCents: r.DiscountCents,
		PaymentMethod: strings.TrimSpace(r.PaymentMethod),
		Customer:      customer,
		SaleDate:      r.SaleDate,
		Distribution:  strategy,
		Notes:         r.Notes,
	}
	if status, err := parseOptionalEnum(r.Status, "status", enums.ParseSaleStatus); err != nil {
		return sales.RecordSaleInput{}, err
	} else if status != nil {
		input.Status = *status
	}
	return input, nil
}

func GetSale(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		saleID, err := pathUUID(r, "saleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sale, err := svc.GetSale(r.Context(), tenantID, saleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sale)
	}
}

// GetReceipt returns the resolved lines and shares of a sale.
func GetReceipt(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		saleID, err := pathUUID(r, "saleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		receipt, err := svc.GetReceipt(r.Context(), tenantID, saleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, receipt)
	}
}

// ListSales supports ?status=, ?pre_order_id=, ?from= and ?to=.
func ListSales(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := saleFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), tenantID, filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func saleFilters(r *http.Request) (sales.ListFilters, error) {
	status, err := queryEnum(r, "status", enums.ParseSaleStatus)
	if err != nil {
		return sales.ListFilters{}, err
	}
	preOrderID, err := queryUUID(r, "pre_order_id")
	if err != nil {
		return sales.ListFilters{}, err
	}
	from, err := queryTime(r, "from")
	if err != nil {
		return sales.ListFilters{}, err
	}
	to, err := queryTime(r, "to")
	if err != nil {
		return sales.ListFilters{}, err
	}
	return sales.ListFilters{Status: status, PreOrderID: preOrderID, From: from, To: to}, nil
}

// SettleSale moves a pending sale to completed.
func SettleSale(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		saleID, err := pathUUID(r, "saleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sale, err := svc.SettleSale(r.Context(), tenantID, saleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sale)
	}
}

// DeleteSale reverses a sale and releases its units. Warnings list the
// follow-up steps that did not complete.
func DeleteSale(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		saleID, err := pathUUID(r, "saleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.DeleteSale(r.Context(), tenantID, saleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ExportSales streams the filtered sales ledger as an XLSX workbook.
func ExportSales(exporter *reports.Exporter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if exporter == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales export unavailable"))
			return
		}
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := saleFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filename := fmt.Sprintf("sales-%s.xlsx", time.Now().UTC().Format("20060102"))
		w.Header().Set("Content-Type", xlsxMediaType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		if err := exporter.WriteSales(r.Context(), tenantID, filters, w); err != nil {
			w.Header().Del("Content-Disposition")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
	}
}
