// Package distribution computes how a sale's profit is split across
// recipients and manages the recipients and reusable templates.
package distribution

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
)

type Service interface {
	// Allocate returns rows whose amounts sum to amountCents exactly. A zero
	// amount yields no rows.
	Allocate(ctx context.Context, tenantID uuid.UUID, amountCents int64, strategy Strategy) ([]Share, error)
	// Validate checks a strategy without computing amounts.
	Validate(ctx context.Context, tenantID uuid.UUID, strategy Strategy) error

	CreateAvatar(ctx context.Context, tenantID uuid.UUID, name string) (*models.Avatar, error)
	ListAvatars(ctx context.Context, tenantID uuid.UUID) ([]models.Avatar, error)
	SetAvatarActive(ctx context.Context, tenantID, id uuid.UUID, active bool) error
	CreateTemplate(ctx context.Context, input CreateTemplateInput) (*models.DistributionTemplate, error)
	GetTemplate(ctx context.Context, tenantID, id uuid.UUID) (*models.DistributionTemplate, error)
	ListTemplates(ctx context.Context, tenantID uuid.UUID) ([]models.DistributionTemplate, error)
	DeleteTemplate(ctx context.Context, tenantID, id uuid.UUID) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("distribution repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Allocate(ctx context.Context, tenantID uuid.UUID, amountCents int64, strategy Strategy) ([]Share, error) {
	if amountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "distribution amount must not be negative")
	}
	recipients, percentages, err := s.resolve(ctx, tenantID, strategy)
	if err != nil {
		return nil, err
	}
	if amountCents == 0 {
		return []Share{}, nil
	}

	amounts := splitAmount(amountCents, percentages)
	shares := make([]Share, len(recipients))
	for i := range recipients {
		shares[i] = Share{
			AvatarID:    recipients[i],
			Percentage:  percentages[i],
			AmountCents: amounts[i],
		}
	}
	return shares, nil
}

func (s *service) Validate(ctx context.Context, tenantID uuid.UUID, strategy Strategy) error {
	_, _, err := s.resolve(ctx, tenantID, strategy)
	return err
}

// resolve turns a strategy into parallel recipient and percentage slices
// whose percentages sum to exactly 100.
func (s *service) resolve(ctx context.Context, tenantID uuid.UUID, strategy Strategy) ([]uuid.UUID, []decimal.Decimal, error) {
	switch strategy.Kind {
	case enums.DistributionStrategySingle:
		if strategy.AvatarID == nil || *strategy.AvatarID == uuid.Nil {
			return nil, nil, invalid("single strategy requires a recipient")
		}
		if err := s.requireAvatars(ctx, tenantID, []uuid.UUID{*strategy.AvatarID}); err != nil {
			return nil, nil, err
		}
		return []uuid.UUID{*strategy.AvatarID}, []decimal.Decimal{hundred}, nil

	case enums.DistributionStrategyTemplate:
		if strategy.TemplateID == nil || *strategy.TemplateID == uuid.Nil {
			return nil, nil, invalid("template strategy requires a template")
		}
		template, err := s.repo.FindTemplate(ctx, tenantID, *strategy.TemplateID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "distribution template not found")
			}
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load distribution template")
		}
		if len(template.Entries) == 0 {
			return s.equalSplit(ctx, tenantID)
		}
		recipients := make([]uuid.UUID, len(template.Entries))
		percentages := make([]decimal.Decimal, len(template.Entries))
		for i, entry := range template.Entries {
			recipients[i] = entry.AvatarID
			percentages[i] = entry.Percentage
		}
		if !sumPercentages(percentages).Equal(hundred) {
			return nil, nil, invalid("template percentages must sum to 100").
				WithDetails(map[string]any{"template_id": template.ID, "sum": sumPercentages(percentages).String()})
		}
		return recipients, percentages, nil

	case enums.DistributionStrategyManual:
		recipients, percentages, err := validateShares(strategy.Manual)
		if err != nil {
			return nil, nil, err
		}
		if err := s.requireAvatars(ctx, tenantID, recipients); err != nil {
			return nil, nil, err
		}
		return recipients, percentages, nil

	default:
		return nil, nil, invalid(fmt.Sprintf("unknown distribution strategy %q", strategy.Kind))
	}
}

// equalSplit is the fallback for a template without rows: every active
// recipient of the tenant gets the same share.
func (s *service) equalSplit(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, []decimal.Decimal, error) {
	avatars, err := s.repo.ListAvatars(ctx, tenantID, true)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list recipients")
	}
	if len(avatars) == 0 {
		return nil, nil, invalid("no recipients available for equal split")
	}
	recipients := make([]uuid.UUID, len(avatars))
	for i, a := range avatars {
		recipients[i] = a.ID
	}
	return recipients, equalPercentages(len(avatars)), nil
}

func validateShares(shares []ManualShare) ([]uuid.UUID, []decimal.Decimal, error) {
	if len(shares) == 0 {
		return nil, nil, invalid("at least one recipient is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(shares))
	recipients := make([]uuid.UUID, len(shares))
	percentages := make([]decimal.Decimal, len(shares))
	for i, share := range shares {
		if share.AvatarID == uuid.Nil {
			return nil, nil, invalid("recipient id is required")
		}
		if _, dup := seen[share.AvatarID]; dup {
			return nil, nil, invalid("recipients must be unique").WithDetails(map[string]any{"avatar_id": share.AvatarID})
		}
		seen[share.AvatarID] = struct{}{}
		if !share.Percentage.IsPositive() || share.Percentage.GreaterThan(hundred) {
			return nil, nil, invalid("percentages must be greater than 0 and at most 100").
				WithDetails(map[string]any{"avatar_id": share.AvatarID, "percentage": share.Percentage.String()})
		}
		if share.Percentage.Exponent() < -percentScale {
			return nil, nil, invalid(fmt.Sprintf("percentages allow at most %d decimal places", percentScale))
		}
		recipients[i] = share.AvatarID
		percentages[i] = share.Percentage
	}
	if sum := sumPercentages(percentages); !sum.Equal(hundred) {
		return nil, nil, invalid("percentages must sum to exactly 100").WithDetails(map[string]any{"sum": sum.String()})
	}
	return recipients, percentages, nil
}

func (s *service) requireAvatars(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) error {
	found, err := s.repo.FindAvatarsByIDs(ctx, tenantID, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load recipients")
	}
	known := make(map[uuid.UUID]struct{}, len(found))
	for _, a := range found {
		known[a.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return invalid("unknown recipients").WithDetails(map[string]any{"avatar_ids": missing})
	}
	return nil
}

func invalid(msg string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeDistributionInvalid, msg)
}

func (s *service) CreateAvatar(ctx context.Context, tenantID uuid.UUID, name string) (*models.Avatar, error) {
	name = strings.TrimSpace(name)
	if tenantID == uuid.Nil || name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id and name are required")
	}
	avatar := &models.Avatar{TenantID: tenantID, Name: name, Active: true}
	if err := s.repo.CreateAvatar(ctx, avatar); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create recipient")
	}
	return avatar, nil
}

func (s *service) ListAvatars(ctx context.Context, tenantID uuid.UUID) ([]models.Avatar, error) {
	avatars, err := s.repo.ListAvatars(ctx, tenantID, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list recipients")
	}
	return avatars, nil
}

func (s *service) SetAvatarActive(ctx context.Context, tenantID, id uuid.UUID, active bool) error {
	if err := s.repo.SetAvatarActive(ctx, tenantID, id, active); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "recipient not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update recipient")
	}
	return nil
}

// CreateTemplate stores a reusable split. Entries must sum to exactly 100; a
// template without entries splits equally across active recipients.
func (s *service) CreateTemplate(ctx context.Context, input CreateTemplateInput) (*models.DistributionTemplate, error) {
	name := strings.TrimSpace(input.Name)
	if input.TenantID == uuid.Nil || name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id and name are required")
	}

	template := &models.DistributionTemplate{TenantID: input.TenantID, Name: name}
	var (
		recipients  []uuid.UUID
		percentages []decimal.Decimal
		err         error
	)
	if len(input.Entries) > 0 {
		recipients, percentages, err = validateShares(input.Entries)
		if err != nil {
			return nil, err
		}
		if err := s.requireAvatars(ctx, input.TenantID, recipients); err != nil {
			return nil, err
		}
	}
	for i := range recipients {
		template.Entries = append(template.Entries, models.DistributionTemplateEntry{
			AvatarID:   recipients[i],
			Percentage: percentages[i],
		})
	}
	if err := s.repo.CreateTemplate(ctx, template); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create distribution template")
	}
	return template, nil
}

func (s *service) GetTemplate(ctx context.Context, tenantID, id uuid.UUID) (*models.DistributionTemplate, error) {
	template, err := s.repo.FindTemplate(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "distribution template not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load distribution template")
	}
	return template, nil
}

func (s *service) ListTemplates(ctx context.Context, tenantID uuid.UUID) ([]models.DistributionTemplate, error) {
	templates, err := s.repo.ListTemplates(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list distribution templates")
	}
	return templates, nil
}

func (s *service) DeleteTemplate(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.repo.DeleteTemplate(ctx, tenantID, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "distribution template not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete distribution template")
	}
	return nil
}
