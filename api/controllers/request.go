package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/api/middleware"
	"github.com/angelmondragon/stockledger-backend/api/validators"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

func tenantFromRequest(r *http.Request) (uuid.UUID, error) {
	tenantID := middleware.TenantIDFromContext(r.Context())
	if tenantID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "tenant context missing")
	}
	return tenantID, nil
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+param)
	}
	return id, nil
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

func queryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	return validators.ParseQueryUUID(r, key)
}

func queryTime(r *http.Request, key string) (*time.Time, error) {
	return validators.ParseQueryTime(r, key)
}

func queryEnum[T any](r *http.Request, key string, parser func(string) (T, error)) (*T, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	parsed, err := parser(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+key)
	}
	return &parsed, nil
}

func parseOptionalEnum[T any](raw *string, field string, parser func(string) (T, error)) (*T, error) {
	if raw == nil {
		return nil, nil
	}
	parsed, err := parser(strings.TrimSpace(*raw))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+field)
	}
	return &parsed, nil
}

func parseOptionalUUID(raw *string, field string) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*raw))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+field)
	}
	return &id, nil
}
