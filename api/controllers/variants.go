package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/api/responses"
	"github.com/angelmondragon/stockledger-backend/api/validators"
	"github.com/angelmondragon/stockledger-backend/internal/variants"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

// CreateVariant adds a regular unit. The serial is allocated unless given.
func CreateVariant(svc variants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "variant service unavailable"))
			return
		}
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createVariantRequest
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

		variant, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, variant)
	}
}

type createVariantRequest struct {
	ProductID      string     `json:"product_id" validate:"required,uuid"`
	SerialNumber   *int64     `json:"serial_number,omitempty" validate:"omitempty,min=1"`
	SKU            *string    `json:"sku,omitempty" validate:"omitempty,max=64,sku"`
	Size           string     `json:"size" validate:"max=32"`
	SizeLabel      string     `json:"size_label" validate:"max=32"`
	Location       string     `json:"location" validate:"max=128"`
	Condition      *string    `json:"condition,omitempty"`
	Status         *string    `json:"status,omitempty"`
	CostPriceCents int64      `json:"cost_price_cents" validate:"min=0"`
	Ownership      *string    `json:"ownership,omitempty"`
	ConsignorID    *string    `json:"consignor_id,omitempty" validate:"omitempty,uuid"`
	PayoutMethod   *string    `json:"payout_method,omitempty" validate:"omitempty,max=64"`
	Notes          *string    `json:"notes,omitempty"`
	DateAdded      *time.Time `json:"date_added,omitempty"`
}

func (r createVariantRequest) toInput() (variants.CreateVariantInput, error) {
	productID, err := parseOptionalUUID(&r.ProductID, "product_id")
	if err != nil {
		return variants.CreateVariantInput{}, err
	}
	consignorID, err := parseOptionalUUID(r.ConsignorID, "consignor_id")
	if err != nil {
		return variants.CreateVariantInput{}, err
	}
	input := variants.CreateVariantInput{
		ProductID:      *productID,
		SerialNumber:   r.SerialNumber,
		SKU:            r.SKU,
		Size:           strings.TrimSpace(r.Size),
		SizeLabel:      strings.TrimSpace(r.SizeLabel),
		Location:       strings.TrimSpace(r.Location),
		CostPriceCents: r.CostPriceCents,
		ConsignorID:    consignorID,
		PayoutMethod:   r.PayoutMethod,
		Notes:          r.Notes,
		DateAdded:      r.DateAdded,
	}
	if condition, err := parseOptionalEnum(r.Condition, "condition", enums.ParseUnitCondition); err != nil {
		return variants.CreateVariantInput{}, err
	} else if condition != nil {
		input.Condition = *condition
	}
	if status, err := parseOptionalEnum(r.Status, "status", enums.ParseVariantStatus); err != nil {
		return variants.CreateVariantInput{}, err
	} else if status != nil {
		input.Status = *status
	}
	if ownership, err := parseOptionalEnum(r.Ownership, "ownership", enums.ParseOwnership); err != nil {
		return variants.CreateVariantInput{}, err
	} else if ownership != nil {
		input.Ownership = *ownership
	}
	return input, nil
}

func GetVariant(svc variants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		variantID, err := pathUUID(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		variant, err := svc.Get(r.Context(), tenantID, variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, variant)
	}
}

// GetVariantBySerial resolves the per-tenant serial printed on a unit's tag.
func GetVariantBySerial(svc variants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		serial, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "serial")), 10, 64)
		if err != nil || serial <= 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "serial must be a positive integer"))
			return
		}
		variant, err := svc.FindBySerial(r.Context(), tenantID, serial)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, variant)
	}
}

// ListVariants supports ?product_id=, ?status=, ?include_archived=true.
func ListVariants(svc variants.Service, logg *logger.Logger) http.HandlerFunc {
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
		productID, err := queryUUID(r, "product_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := queryEnum(r, "status", enums.ParseVariantStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		includeArchived, _ := strconv.ParseBool(r.URL.Query().Get("include_archived"))

		page, err := svc.List(r.Context(), tenantID, variants.ListFilters{
			ProductID:       productID,
			Status:          status,
			IncludeArchived: includeArchived,
		}, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// UpdateVariant edits unit details. A status change goes through the
// transition table; sold units only change through sales.
func UpdateVariant(svc variants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		variantID, err := pathUUID(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateVariantRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := parseOptionalEnum(payload.Status, "status", enums.ParseVariantStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		condition, err := parseOptionalEnum(payload.Condition, "condition", enums.ParseUnitCondition)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		variant, err := svc.UpdateDetails(r.Context(), variants.UpdateVariantInput{
			TenantID:       tenantID,
			VariantID:      variantID,
			Status:         status,
			SKU:            payload.SKU,
			Size:           payload.Size,
			SizeLabel:      payload.SizeLabel,
			Location:       payload.Location,
			Condition:      condition,
			CostPriceCents: payload.CostPriceCents,
			PayoutMethod:   payload.PayoutMethod,
			Notes:          payload.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, variant)
	}
}

type updateVariantRequest struct {
	Status         *string `json:"status,omitempty"`
	SKU            *string `json:"sku,omitempty" validate:"omitempty,max=64,sku"`
	Size           *string `json:"size,omitempty" validate:"omitempty,max=32"`
	SizeLabel      *string `json:"size_label,omitempty" validate:"omitempty,max=32"`
	Location       *string `json:"location,omitempty" validate:"omitempty,max=128"`
	Condition      *string `json:"condition,omitempty"`
	CostPriceCents *int64  `json:"cost_price_cents,omitempty" validate:"omitempty,min=0"`
	PayoutMethod   *string `json:"payout_method,omitempty" validate:"omitempty,max=64"`
	Notes          *string `json:"notes,omitempty"`
}

// ArchiveVariant and UnarchiveVariant toggle the soft-delete status.
func ArchiveVariant(svc variants.Service, logg *logger.Logger) http.HandlerFunc {
	return variantToggle(logg, svc.Archive)
}

func UnarchiveVariant(svc variants.Service, logg *logger.Logger) http.HandlerFunc {
	return variantToggle(logg, svc.Unarchive)
}

func variantToggle(logg *logger.Logger, apply func(ctx context.Context, tenantID, id uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		variantID, err := pathUUID(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := apply(r.Context(), tenantID, variantID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
