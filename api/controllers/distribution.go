package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger-backend/api/responses"
	"github.com/angelmondragon/stockledger-backend/api/validators"
	"github.com/angelmondragon/stockledger-backend/internal/distribution"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

// CreateAvatar registers a profit recipient.
func CreateAvatar(svc distribution.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload struct {
			Name string `json:"name" validate:"required,max=128"`
		}
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		avatar, err := svc.CreateAvatar(r.Context(), tenantID, validators.SanitizeString(payload.Name, 128))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, avatar)
	}
}

func ListAvatars(svc distribution.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		avatars, err := svc.ListAvatars(r.Context(), tenantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, avatars)
	}
}

// SetAvatarActive toggles whether an avatar takes part in equal splits.
func SetAvatarActive(svc distribution.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		avatarID, err := pathUUID(r, "avatarId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload struct {
			Active *bool `json:"active" validate:"required"`
		}
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.SetAvatarActive(r.Context(), tenantID, avatarID, *payload.Active); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CreateTemplate stores a named, reusable split. Percentages must total 100.
func CreateTemplate(svc distribution.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload createTemplateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := toManualShares(payload.Entries)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		template, err := svc.CreateTemplate(r.Context(), distribution.CreateTemplateInput{
			TenantID: tenantID,
			Name:     validators.SanitizeString(payload.Name, 128),
			Entries:  entries,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, template)
	}
}

type createTemplateRequest struct {
	Name    string              `json:"name" validate:"required,max=128"`
	Entries []shareEntryRequest `json:"entries" validate:"required,min=1,dive"`
}

type shareEntryRequest struct {
	AvatarID   string          `json:"avatar_id" validate:"required,uuid"`
	Percentage decimal.Decimal `json:"percentage"`
}

func toManualShares(entries []shareEntryRequest) ([]distribution.ManualShare, error) {
	shares := make([]distribution.ManualShare, 0, len(entries))
	for _, entry := range entries {
		avatarID, err := uuid.Parse(entry.AvatarID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid avatar_id")
		}
		shares = append(shares, distribution.ManualShare{AvatarID: avatarID, Percentage: entry.Percentage})
	}
	return shares, nil
}

func GetTemplate(svc distribution.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		templateID, err := pathUUID(r, "templateId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		template, err := svc.GetTemplate(r.Context(), tenantID, templateID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, template)
	}
}

func ListTemplates(svc distribution.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		templates, err := svc.ListTemplates(r.Context(), tenantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, templates)
	}
}

func DeleteTemplate(svc distribution.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		templateID, err := pathUUID(r, "templateId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteTemplate(r.Context(), tenantID, templateID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// distributionRequest is the wire form of a split strategy shared by sale
// recording and pre-order settlement.
type distributionRequest struct {
	Kind       string              `json:"kind" validate:"required"`
	AvatarID   *string             `json:"avatar_id,omitempty" validate:"omitempty,uuid"`
	TemplateID *string             `json:"template_id,omitempty" validate:"omitempty,uuid"`
	Manual     []shareEntryRequest `json:"manual,omitempty" validate:"omitempty,dive"`
}

func (d distributionRequest) toStrategy() (distribution.Strategy, error) {
	kind, err := enums.ParseDistributionStrategy(d.Kind)
	if err != nil {
		return distribution.Strategy{}, pkgerrors.Wrap(pkgerrors.CodeDistributionInvalid, err, "unknown distribution kind")
	}
	avatarID, err := parseOptionalUUID(d.AvatarID, "avatar_id")
	if err != nil {
		return distribution.Strategy{}, err
	}
	templateID, err := parseOptionalUUID(d.TemplateID, "template_id")
	if err != nil {
		return distribution.Strategy{}, err
	}
	manual, err := toManualShares(d.Manual)
	if err != nil {
		return distribution.Strategy{}, err
	}
	return distribution.Strategy{
		Kind:       kind,
		AvatarID:   avatarID,
		TemplateID: templateID,
		Manual:     manual,
	}, nil
}
