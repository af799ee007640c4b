package distribution

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
)

type fixture struct {
	svc    Service
	tenant uuid.UUID
	a, b   uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	svc, err := NewService(NewRepository(dbtest.Open(t)))
	require.NoError(t, err)
	tenant := uuid.New()
	a, err := svc.CreateAvatar(context.Background(), tenant, "Alice")
	require.NoError(t, err)
	b, err := svc.CreateAvatar(context.Background(), tenant, "Bob")
	require.NoError(t, err)
	return fixture{svc: svc, tenant: tenant, a: a.ID, b: b.ID}
}

func sumAmounts(shares []Share) int64 {
	var sum int64
	for _, s := range shares {
		sum += s.AmountCents
	}
	return sum
}

func TestAllocateSingle(t *testing.T) {
	f := newFixture(t)
	shares, err := f.svc.Allocate(context.Background(), f.tenant, 20000, Strategy{Kind: enums.DistributionStrategySingle, AvatarID: &f.a})
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.Equal(t, f.a, shares[0].AvatarID)
	assert.Equal(t, int64(20000), shares[0].AmountCents)
	assert.True(t, shares[0].Percentage.Equal(decimal.NewFromInt(100)))
}

func TestAllocateManualSixtyForty(t *testing.T) {
	f := newFixture(t)
	strategy := Strategy{Kind: enums.DistributionStrategyManual, Manual: []ManualShare{
		{AvatarID: f.a, Percentage: decimal.NewFromInt(60)},
		{AvatarID: f.b, Percentage: decimal.NewFromInt(40)},
	}}
	shares, err := f.svc.Allocate(context.Background(), f.tenant, 1000, strategy)
	require.NoError(t, err)
	require.Len(t, shares, 2)
	assert.Equal(t, int64(600), shares[0].AmountCents)
	assert.Equal(t, int64(400), shares[1].AmountCents)
}

func TestAllocateManualMustSumToHundred(t *testing.T) {
	f := newFixture(t)
	strategy := Strategy{Kind: enums.DistributionStrategyManual, Manual: []ManualShare{
		{AvatarID: f.a, Percentage: decimal.NewFromInt(60)},
		{AvatarID: f.b, Percentage: decimal.RequireFromString("39.99")},
	}}
	_, err := f.svc.Allocate(context.Background(), f.tenant, 1000, strategy)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDistributionInvalid), "got %v", err)

	// zero amount still validates the strategy
	_, err = f.svc.Allocate(context.Background(), f.tenant, 0, strategy)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDistributionInvalid), "got %v", err)
}

func TestAllocateRejectsUnknownAndDuplicateRecipients(t *testing.T) {
	f := newFixture(t)
	stranger := uuid.New()
	_, err := f.svc.Allocate(context.Background(), f.tenant, 100, Strategy{Kind: enums.DistributionStrategySingle, AvatarID: &stranger})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDistributionInvalid))

	_, err = f.svc.Allocate(context.Background(), f.tenant, 100, Strategy{Kind: enums.DistributionStrategyManual, Manual: []ManualShare{
		{AvatarID: f.a, Percentage: decimal.NewFromInt(50)},
		{AvatarID: f.a, Percentage: decimal.NewFromInt(50)},
	}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDistributionInvalid))

	// another tenant's recipients are unknown here
	_, err = f.svc.Allocate(context.Background(), uuid.New(), 100, Strategy{Kind: enums.DistributionStrategySingle, AvatarID: &f.a})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDistributionInvalid))
}

func TestAllocateZeroAmountIsEmpty(t *testing.T) {
	f := newFixture(t)
	shares, err := f.svc.Allocate(context.Background(), f.tenant, 0, Strategy{Kind: enums.DistributionStrategySingle, AvatarID: &f.a})
	require.NoError(t, err)
	assert.Empty(t, shares)

	_, err = f.svc.Allocate(context.Background(), f.tenant, -1, Strategy{Kind: enums.DistributionStrategySingle, AvatarID: &f.a})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAllocateTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	template, err := f.svc.CreateTemplate(ctx, CreateTemplateInput{TenantID: f.tenant, Name: "partners", Entries: []ManualShare{
		{AvatarID: f.a, Percentage: decimal.RequireFromString("70")},
		{AvatarID: f.b, Percentage: decimal.RequireFromString("30")},
	}})
	require.NoError(t, err)

	shares, err := f.svc.Allocate(ctx, f.tenant, 999, Strategy{Kind: enums.DistributionStrategyTemplate, TemplateID: &template.ID})
	require.NoError(t, err)
	require.Len(t, shares, 2)
	assert.Equal(t, int64(999), sumAmounts(shares))
	byAvatar := map[uuid.UUID]int64{}
	for _, s := range shares {
		byAvatar[s.AvatarID] = s.AmountCents
	}
	assert.Equal(t, int64(699), byAvatar[f.a])
	assert.Equal(t, int64(300), byAvatar[f.b])
}

func TestAllocateEmptyTemplateFallsBackToEqualSplit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.svc.CreateAvatar(ctx, f.tenant, "Carol")
	require.NoError(t, err)
	inactive, err := f.svc.CreateAvatar(ctx, f.tenant, "Dormant")
	require.NoError(t, err)
	require.NoError(t, f.svc.SetAvatarActive(ctx, f.tenant, inactive.ID, false))

	template, err := f.svc.CreateTemplate(ctx, CreateTemplateInput{TenantID: f.tenant, Name: "everyone"})
	require.NoError(t, err)

	shares, err := f.svc.Allocate(ctx, f.tenant, 100, Strategy{Kind: enums.DistributionStrategyTemplate, TemplateID: &template.ID})
	require.NoError(t, err)
	require.Len(t, shares, 3)
	assert.Equal(t, int64(100), sumAmounts(shares))
	sum := decimal.Zero
	for _, s := range shares {
		assert.NotEqual(t, inactive.ID, s.AvatarID)
		sum = sum.Add(s.Percentage)
	}
	assert.True(t, sum.Equal(decimal.NewFromInt(100)), "percentages sum to %s", sum)
	assert.Contains(t, []uuid.UUID{f.a, f.b, c.ID}, shares[2].AvatarID)
}

func TestEqualSplitWithoutRecipientsFails(t *testing.T) {
	svc, err := NewService(NewRepository(dbtest.Open(t)))
	require.NoError(t, err)
	tenant := uuid.New()
	template, err := svc.CreateTemplate(context.Background(), CreateTemplateInput{TenantID: tenant, Name: "empty"})
	require.NoError(t, err)

	_, err = svc.Allocate(context.Background(), tenant, 100, Strategy{Kind: enums.DistributionStrategyTemplate, TemplateID: &template.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDistributionInvalid))
}

func TestCreateTemplateValidatesSum(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateTemplate(context.Background(), CreateTemplateInput{TenantID: f.tenant, Name: "bad", Entries: []ManualShare{
		{AvatarID: f.a, Percentage: decimal.NewFromInt(80)},
	}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDistributionInvalid))
}

func TestDeleteTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	template, err := f.svc.CreateTemplate(ctx, CreateTemplateInput{TenantID: f.tenant, Name: "solo", Entries: []ManualShare{
		{AvatarID: f.a, Percentage: decimal.NewFromInt(100)},
	}})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteTemplate(ctx, f.tenant, template.ID))
	_, err = f.svc.GetTemplate(ctx, f.tenant, template.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.True(t, pkgerrors.IsCode(f.svc.DeleteTemplate(ctx, f.tenant, template.ID), pkgerrors.CodeNotFound))
}

func TestUnknownStrategy(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Validate(context.Background(), f.tenant, Strategy{Kind: "weighted"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDistributionInvalid))
}
