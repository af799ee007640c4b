package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/api/responses"
	"github.com/angelmondragon/stockledger-backend/api/validators"
	"github.com/angelmondragon/stockledger-backend/internal/preorders"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

// CreatePreOrder opens a pending pre-order.
func CreatePreOrder(svc preorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pre-order service unavailable"))
			return
		}
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload createPreOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := uuid.Parse(payload.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product_id"))
			return
		}
		customerID, err := parseOptionalUUID(payload.CustomerID, "customer_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		preOrder, err := svc.Create(r.Context(), preorders.CreatePreOrderInput{
			TenantID:             tenantID,
			CustomerName:         validators.SanitizeString(payload.CustomerName, 255),
			CustomerPhone:        payload.CustomerPhone,
			CustomerID:           customerID,
			ProductID:            productID,
			Size:                 strings.TrimSpace(payload.Size),
			TotalCents:           payload.TotalCents,
			DownPaymentCents:     payload.DownPaymentCents,
			DownPaymentMethod:    payload.DownPaymentMethod,
			ExpectedDeliveryDate: payload.ExpectedDeliveryDate,
			Notes:                payload.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, preOrder)
	}
}

type createPreOrderRequest struct {
	CustomerName         string     `json:"customer_name" validate:"required,max=255"`
	CustomerPhone        *string    `json:"customer_phone,omitempty" validate:"omitempty,max=32"`
	CustomerID           *string    `json:"customer_id,omitempty" validate:"omitempty,uuid"`
	ProductID            string     `json:"product_id" validate:"required,uuid"`
	Size                 string     `json:"size" validate:"max=32"`
	TotalCents           int64      `json:"total_cents" validate:"min=0"`
	DownPaymentCents     int64      `json:"down_payment_cents" validate:"min=0"`
	DownPaymentMethod    *string    `json:"down_payment_method,omitempty" validate:"omitempty,max=64"`
	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date,omitempty"`
	Notes                *string    `json:"notes,omitempty"`
}

func GetPreOrder(svc preorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, preOrderID, ok := preOrderTarget(w, r, logg)
		if !ok {
			return
		}
		preOrder, err := svc.Get(r.Context(), tenantID, preOrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, preOrder)
	}
}

// ListPreOrders supports ?status=, ?product_id= and ?customer=.
func ListPreOrders(svc preorders.Service, logg *logger.Logger) http.HandlerFunc {
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
		status, err := queryEnum(r, "status", enums.ParsePreOrderStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := queryUUID(r, "product_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), tenantID, preorders.ListFilters{
			Status:    status,
			ProductID: productID,
			Customer:  strings.TrimSpace(r.URL.Query().Get("customer")),
		}, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// UpdatePreOrder edits an open pre-order.
func UpdatePreOrder(svc preorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, preOrderID, ok := preOrderTarget(w, r, logg)
		if !ok {
			return
		}
		var payload updatePreOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		preOrder, err := svc.Update(r.Context(), preorders.UpdatePreOrderInput{
			TenantID:             tenantID,
			PreOrderID:           preOrderID,
			CustomerName:         payload.CustomerName,
			CustomerPhone:        payload.CustomerPhone,
			Size:                 payload.Size,
			TotalCents:           payload.TotalCents,
			DownPaymentCents:     payload.DownPaymentCents,
			DownPaymentMethod:    payload.DownPaymentMethod,
			ExpectedDeliveryDate: payload.ExpectedDeliveryDate,
			Notes:                payload.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, preOrder)
	}
}

type updatePreOrderRequest struct {
	CustomerName         *string    `json:"customer_name,omitempty" validate:"omitempty,max=255"`
	CustomerPhone        *string    `json:"customer_phone,omitempty" validate:"omitempty,max=32"`
	Size                 *string    `json:"size,omitempty" validate:"omitempty,max=32"`
	TotalCents           *int64     `json:"total_cents,omitempty" validate:"omitempty,min=0"`
	DownPaymentCents     *int64     `json:"down_payment_cents,omitempty" validate:"omitempty,min=0"`
	DownPaymentMethod    *string    `json:"down_payment_method,omitempty" validate:"omitempty,max=64"`
	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date,omitempty"`
	Notes                *string    `json:"notes,omitempty"`
}

// UpdatePreOrderStatus toggles between pending and confirmed.
func UpdatePreOrderStatus(svc preorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, preOrderID, ok := preOrderTarget(w, r, logg)
		if !ok {
			return
		}
		var payload struct {
			Status string `json:"status" validate:"required"`
		}
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParsePreOrderStatus(strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		preOrder, err := svc.UpdateStatus(r.Context(), tenantID, preOrderID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, preOrder)
	}
}

// LinkPreOrderVariant reserves an in-stock unit for the pre-order.
func LinkPreOrderVariant(svc preorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, preOrderID, ok := preOrderTarget(w, r, logg)
		if !ok {
			return
		}
		var payload struct {
			VariantID string `json:"variant_id" validate:"required,uuid"`
		}
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		variantID, err := uuid.Parse(payload.VariantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid variant_id"))
			return
		}
		preOrder, err := svc.LinkVariant(r.Context(), tenantID, preOrderID, variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, preOrder)
	}
}

// FulfilPreOrder records the final sale and completes the pre-order.
func FulfilPreOrder(svc preorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, preOrderID, ok := preOrderTarget(w, r, logg)
		if !ok {
			return
		}
		var payload fulfilRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		strategy, err := payload.Distribution.toStrategy()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Fulfil(r.Context(), preorders.FulfilInput{
			TenantID:       tenantID,
			PreOrderID:     preOrderID,
			PaymentMethod:  strings.TrimSpace(payload.PaymentMethod),
			Distribution:   strategy,
			CostPriceCents: payload.CostPriceCents,
			DeliveredAt:    payload.DeliveredAt,
			Notes:          payload.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type fulfilRequest struct {
	PaymentMethod  string              `json:"payment_method" validate:"required,max=64"`
	Distribution   distributionRequest `json:"distribution" validate:"required"`
	CostPriceCents int64               `json:"cost_price_cents" validate:"min=0"`
	DeliveredAt    *time.Time          `json:"delivered_at,omitempty"`
	Notes          *string             `json:"notes,omitempty"`
}

// CancelPreOrder keeps the down payment as a deposit sale.
func CancelPreOrder(svc preorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, preOrderID, ok := preOrderTarget(w, r, logg)
		if !ok {
			return
		}
		var payload cancelRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		strategy, err := payload.Distribution.toStrategy()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Cancel(r.Context(), preorders.CancelInput{
			TenantID:      tenantID,
			PreOrderID:    preOrderID,
			PaymentMethod: strings.TrimSpace(payload.PaymentMethod),
			Distribution:  strategy,
			Notes:         payload.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type cancelRequest struct {
	PaymentMethod string              `json:"payment_method" validate:"max=64"`
	Distribution  distributionRequest `json:"distribution" validate:"required"`
	Notes         *string             `json:"notes,omitempty"`
}

// VoidPreOrder closes a pre-order without moving money.
func VoidPreOrder(svc preorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, preOrderID, ok := preOrderTarget(w, r, logg)
		if !ok {
			return
		}
		preOrder, err := svc.Void(r.Context(), tenantID, preOrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, preOrder)
	}
}

// RestorePreOrder reopens a canceled or voided pre-order.
func RestorePreOrder(svc preorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, preOrderID, ok := preOrderTarget(w, r, logg)
		if !ok {
			return
		}
		result, err := svc.Restore(r.Context(), tenantID, preOrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func DeletePreOrder(svc preorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, preOrderID, ok := preOrderTarget(w, r, logg)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), tenantID, preOrderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func preOrderTarget(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, uuid.UUID, bool) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, uuid.Nil, false
	}
	preOrderID, err := pathUUID(r, "preOrderId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, preOrderID, true
}
