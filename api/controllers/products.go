package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/stockledger-backend/api/responses"
	"github.com/angelmondragon/stockledger-backend/api/validators"
	productsvc "github.com/angelmondragon/stockledger-backend/internal/products"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

// CreateProduct registers a catalog product for the caller's tenant.
func CreateProduct(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := payload.toInput()
		input.TenantID = tenantID
		product, err := svc.CreateProduct(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, product)
	}
}

type createProductRequest struct {
	SKU            string  `json:"sku" validate:"required,max=64,sku"`
	Name           string  `json:"name" validate:"required,max=255"`
	Brand          string  `json:"brand" validate:"notblank,max=128"`
	Category       string  `json:"category" validate:"notblank,max=128"`
	ListPriceCents int64   `json:"list_price_cents" validate:"min=0"`
	SalePriceCents *int64  `json:"sale_price_cents,omitempty" validate:"omitempty,min=0"`
	ImageURL       *string `json:"image_url,omitempty" validate:"omitempty,url"`
}

func (r createProductRequest) toInput() productsvc.CreateProductInput {
	return productsvc.CreateProductInput{
		SKU:            strings.TrimSpace(r.SKU),
		Name:           validators.SanitizeString(r.Name, 255),
		Brand:          strings.TrimSpace(r.Brand),
		Category:       strings.TrimSpace(r.Category),
		ListPriceCents: r.ListPriceCents,
		SalePriceCents: r.SalePriceCents,
		ImageURL:       r.ImageURL,
	}
}

// UpdateProduct applies a partial edit. Identity fields are frozen once units
// reference the product.
func UpdateProduct(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := pathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.UpdateProduct(r.Context(), productsvc.UpdateProductInput{
			TenantID:       tenantID,
			ProductID:      productID,
			SKU:            payload.SKU,
			Name:           payload.Name,
			Brand:          payload.Brand,
			Category:       payload.Category,
			ListPriceCents: payload.ListPriceCents,
			SalePriceCents: payload.SalePriceCents,
			ImageURL:       payload.ImageURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, product)
	}
}

type updateProductRequest struct {
	SKU            *string `json:"sku,omitempty" validate:"omitempty,max=64,sku"`
	Name           *string `json:"name,omitempty" validate:"omitempty,max=255"`
	Brand          *string `json:"brand,omitempty" validate:"omitempty,max=128"`
	Category       *string `json:"category,omitempty" validate:"omitempty,max=128"`
	ListPriceCents *int64  `json:"list_price_cents,omitempty" validate:"omitempty,min=0"`
	SalePriceCents *int64  `json:"sale_price_cents,omitempty" validate:"omitempty,min=0"`
	ImageURL       *string `json:"image_url,omitempty" validate:"omitempty,url"`
}

// DeleteProduct removes a product no unit references.
func DeleteProduct(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := pathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteProduct(r.Context(), tenantID, productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func GetProduct(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := pathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.GetProduct(r.Context(), tenantID, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

// ListProducts supports ?category=, ?brand=, ?q= and cursor pagination.
func ListProducts(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		query := r.URL.Query()
		page, err := svc.ListProducts(r.Context(), tenantID, productsvc.ListFilters{
			Category: strings.TrimSpace(query.Get("category")),
			Brand:    strings.TrimSpace(query.Get("brand")),
			Query:    strings.TrimSpace(query.Get("q")),
		}, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
