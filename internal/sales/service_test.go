package sales

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/distribution"
	"github.com/angelmondragon/stockledger-backend/internal/quota"
	"github.com/angelmondragon/stockledger-backend/internal/sequence"
	"github.com/angelmondragon/stockledger-backend/internal/variants"
	"github.com/angelmondragon/stockledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
)

type stubReopener struct {
	calls []uuid.UUID
	err   error
}

func (s *stubReopener) ReopenFromSale(_ context.Context, _, preOrderID, _ uuid.UUID) error {
	s.calls = append(s.calls, preOrderID)
	return s.err
}

// faultyRepo fails chosen statements and otherwise defers to the real repository.
type faultyRepo struct {
	Repository
	createItemsErr         error
	createDistributionsErr error
	deleteSaleErr          error
	deleteItemsErr         error
	afterCreateItems       func()
	afterFindItems         func()
}

func (r *faultyRepo) FindItems(ctx context.Context, tenantID, saleID uuid.UUID) ([]models.SaleItem, error) {
	items, err := r.Repository.FindItems(ctx, tenantID, saleID)
	if hook := r.afterFindItems; hook != nil {
		r.afterFindItems = nil
		hook()
	}
	return items, err
}

func (r *faultyRepo) CreateItems(ctx context.Context, items []models.SaleItem) error {
	if r.createItemsErr != nil {
		return r.createItemsErr
	}
	if err := r.Repository.CreateItems(ctx, items); err != nil {
		return err
	}
	if r.afterCreateItems != nil {
		r.afterCreateItems()
	}
	return nil
}

func (r *faultyRepo) CreateDistributions(ctx context.Context, rows []models.ProfitDistribution) error {
	if r.createDistributionsErr != nil {
		return r.createDistributionsErr
	}
	return r.Repository.CreateDistributions(ctx, rows)
}

func (r *faultyRepo) DeleteSale(ctx context.Context, tenantID, saleID uuid.UUID) (int64, error) {
	if r.deleteSaleErr != nil {
		return 0, r.deleteSaleErr
	}
	return r.Repository.DeleteSale(ctx, tenantID, saleID)
}

func (r *faultyRepo) DeleteItems(ctx context.Context, tenantID, saleID uuid.UUID) (int64, error) {
	if r.deleteItemsErr != nil {
		return 0, r.deleteItemsErr
	}
	return r.Repository.DeleteItems(ctx, tenantID, saleID)
}

type harness struct {
	db       *gorm.DB
	svc      Service
	repo     *faultyRepo
	variants variants.Service
	dist     distribution.Service
	reopener *stubReopener
	events   *recordingEmitter
	tenant   uuid.UUID
	product  uuid.UUID
	alice    uuid.UUID
	bob      uuid.UUID
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	conn := dbtest.Open(t)

	variantRepo := variants.NewRepository(conn)
	serials, err := sequence.NewAllocator(sequence.Options{
		Name:        "serial",
		Ceiling:     sequence.SerialCeiling,
		Constraints: []string{"ux_variants_tenant_serial", "variants.serial_number"},
	}, variantRepo, nil, nil)
	if err != nil {
		t.Fatalf("serial allocator: %v", err)
	}
	variantSvc, err := variants.NewService(variantRepo, serials, quota.AllowAll{}, sequence.SerialCeiling)
	if err != nil {
		t.Fatalf("variant service: %v", err)
	}
	distSvc, err := distribution.NewService(distribution.NewRepository(conn))
	if err != nil {
		t.Fatalf("distribution service: %v", err)
	}

	repo := &faultyRepo{Repository: NewRepository(conn)}
	numbers, err := sequence.NewAllocator(sequence.Options{
		Name:        "sale_number",
		Constraints: []string{"ux_sales_tenant_number", "sales.sale_number"},
	}, repo, nil, nil)
	if err != nil {
		t.Fatalf("sale number allocator: %v", err)
	}
	reopener := &stubReopener{}
	events := &recordingEmitter{}
	svc, err := NewService(ServiceParams{
		Repo:        repo,
		Variants:    variantSvc,
		Distributor: distSvc,
		Numbers:     numbers,
		PreOrders:   reopener,
		Events:      events,
		Options:     opts,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	h := &harness{
		db:       conn,
		svc:      svc,
		repo:     repo,
		variants: variantSvc,
		dist:     distSvc,
		reopener: reopener,
		events:   events,
		tenant:   uuid.New(),
		product:  uuid.New(),
	}
	alice, err := distSvc.CreateAvatar(context.Background(), h.tenant, "Alice")
	if err != nil {
		t.Fatalf("avatar: %v", err)
	}
	bob, err := distSvc.CreateAvatar(context.Background(), h.tenant, "Bob")
	if err != nil {
		t.Fatalf("avatar: %v", err)
	}
	h.alice, h.bob = alice.ID, bob.ID
	return h
}

func (h *harness) unit(t *testing.T, costCents int64) models.Variant {
	t.Helper()
	v, err := h.variants.Create(context.Background(), variants.CreateVariantInput{
		TenantID:       h.tenant,
		ProductID:      h.product,
		CostPriceCents: costCents,
	})
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}
	return *v
}

func (h *harness) sixtyForty() distribution.Strategy {
	return distribution.Strategy{Kind: enums.DistributionStrategyManual, Manual: []distribution.ManualShare{
		{AvatarID: h.alice, Percentage: decimal.NewFromInt(60)},
		{AvatarID: h.bob, Percentage: decimal.NewFromInt(40)},
	}}
}

func (h *harness) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	if err := h.db.Model(model).Where("tenant_id = ?", h.tenant).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func (h *harness) status(t *testing.T, id uuid.UUID) enums.VariantStatus {
	t.Helper()
	v, err := h.variants.Get(context.Background(), h.tenant, id)
	if err != nil {
		t.Fatalf("get unit: %v", err)
	}
	return v.Status
}

func expectCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if !pkgerrors.IsCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestRecordSaleManualSixtyForty(t *testing.T) {
	h := newHarness(t, Options{})
	a, b := h.unit(t, 100), h.unit(t, 200)

	res, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
		TenantID: h.tenant,
		Items: []ItemInput{
			{VariantID: a.ID, SoldPriceCents: 600},
			{VariantID: b.ID, SoldPriceCents: 400},
		},
		PaymentMethod: "cash",
		Customer:      CustomerInput{Name: "Dana"},
		Distribution:  h.sixtyForty(),
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if res.SaleNumber != 1 || len(res.Warnings) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	sale, err := h.svc.GetSale(context.Background(), h.tenant, res.SaleID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if sale.TotalCents != 1000 || sale.DistributableCents != 1000 || sale.NetProfitCents != 700 {
		t.Fatalf("unexpected totals %+v", sale)
	}
	if sale.Status != enums.SaleStatusCompleted || sale.Origin != enums.SaleOriginDirect {
		t.Fatalf("unexpected defaults %+v", sale)
	}

	rows, err := h.repo.FindDistributions(context.Background(), h.tenant, res.SaleID)
	if err != nil {
		t.Fatalf("distributions: %v", err)
	}
	amounts := map[uuid.UUID]int64{}
	for _, r := range rows {
		amounts[r.AvatarID] = r.AmountCents
	}
	if len(rows) != 2 || amounts[h.alice] != 600 || amounts[h.bob] != 400 {
		t.Fatalf("unexpected distribution %v", amounts)
	}
	for _, id := range []uuid.UUID{a.ID, b.ID} {
		if got := h.status(t, id); got != enums.VariantStatusSold {
			t.Fatalf("unit %s should be sold, got %s", id, got)
		}
	}
}

func TestRecordSaleNumbersArePerTenant(t *testing.T) {
	h := newHarness(t, Options{})
	single := distribution.Strategy{Kind: enums.DistributionStrategySingle, AvatarID: &h.alice}

	for want := int64(1); want <= 2; want++ {
		u := h.unit(t, 0)
		res, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
			TenantID:      h.tenant,
			Items:         []ItemInput{{VariantID: u.ID, SoldPriceCents: 500}},
			PaymentMethod: "card",
			Distribution:  single,
		})
		if err != nil {
			t.Fatalf("record sale: %v", err)
		}
		if res.SaleNumber != want {
			t.Fatalf("expected sale number %d got %d", want, res.SaleNumber)
		}
	}
}

func TestRecordSaleRejectsUnavailableUnit(t *testing.T) {
	h := newHarness(t, Options{})
	u := h.unit(t, 0)
	if err := h.variants.Archive(context.Background(), h.tenant, u.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}

	_, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
		TenantID:      h.tenant,
		Items:         []ItemInput{{VariantID: u.ID, SoldPriceCents: 500}},
		PaymentMethod: "cash",
		Distribution:  h.sixtyForty(),
	})
	expectCode(t, err, pkgerrors.CodeInvalidTransition)
	if n := h.count(t, &models.Sale{}); n != 0 {
		t.Fatalf("no sale should be written, found %d", n)
	}
}

func TestRecordSaleRejectsInvalidManualSplitBeforeWriting(t *testing.T) {
	h := newHarness(t, Options{})
	u := h.unit(t, 0)

	_, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
		TenantID:      h.tenant,
		Items:         []ItemInput{{VariantID: u.ID, SoldPriceCents: 500}},
		PaymentMethod: "cash",
		Distribution: distribution.Strategy{Kind: enums.DistributionStrategyManual, Manual: []distribution.ManualShare{
			{AvatarID: h.alice, Percentage: decimal.NewFromInt(60)},
			{AvatarID: h.bob, Percentage: decimal.NewFromInt(30)},
		}},
	})
	expectCode(t, err, pkgerrors.CodeDistributionInvalid)
	if n := h.count(t, &models.Sale{}); n != 0 {
		t.Fatalf("no sale should be written, found %d", n)
	}
	if got := h.status(t, u.ID); got != enums.VariantStatusAvailable {
		t.Fatalf("unit should stay available, got %s", got)
	}
}

func TestRecordSaleValidation(t *testing.T) {
	h := newHarness(t, Options{})
	u := h.unit(t, 0)
	cases := map[string]RecordSaleInput{
		"no items":  {TenantID: h.tenant, PaymentMethod: "cash"},
		"no method": {TenantID: h.tenant, Items: []ItemInput{{VariantID: u.ID, SoldPriceCents: 1}}},
		"duplicate unit": {TenantID: h.tenant, PaymentMethod: "cash", Items: []ItemInput{
			{VariantID: u.ID, SoldPriceCents: 1}, {VariantID: u.ID, SoldPriceCents: 1},
		}},
		"discount too large": {TenantID: h.tenant, PaymentMethod: "cash", DiscountCents: 5,
			Items: []ItemInput{{VariantID: u.ID, SoldPriceCents: 1}}},
		"refunded status": {TenantID: h.tenant, PaymentMethod: "cash", Status: enums.SaleStatusRefunded,
			Items: []ItemInput{{VariantID: u.ID, SoldPriceCents: 1}}},
		"deposit without pre-order": {TenantID: h.tenant, PaymentMethod: "cash", Origin: enums.SaleOriginPreorderDeposit,
			Items: []ItemInput{{VariantID: u.ID, SoldPriceCents: 1}}},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.RecordSale(context.Background(), input)
			expectCode(t, err, pkgerrors.CodeValidation)
		})
	}
}

func TestRecordSaleItemFailureRemovesHeader(t *testing.T) {
	h := newHarness(t, Options{})
	u := h.unit(t, 0)
	h.repo.createItemsErr = errors.New("insert items: connection reset")

	_, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
		TenantID:      h.tenant,
		Items:         []ItemInput{{VariantID: u.ID, SoldPriceCents: 500}},
		PaymentMethod: "cash",
		Distribution:  h.sixtyForty(),
	})
	expectCode(t, err, pkgerrors.CodeSaleRecordingFailed)
	if n := h.count(t, &models.Sale{}); n != 0 {
		t.Fatalf("sale header should be compensated, found %d", n)
	}
	if got := h.status(t, u.ID); got != enums.VariantStatusAvailable {
		t.Fatalf("unit should not be touched, got %s", got)
	}
}

func TestRecordSaleKeepsRowsWhenMarkSoldFails(t *testing.T) {
	h := newHarness(t, Options{})
	u := h.unit(t, 0)
	// The unit is archived after validation passed but before it is marked.
	h.repo.afterCreateItems = func() {
		if err := h.db.Model(&models.Variant{}).Where("id = ?", u.ID).Update("status", enums.VariantStatusArchived).Error; err != nil {
			t.Fatalf("archive unit: %v", err)
		}
	}

	res, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
		TenantID:      h.tenant,
		Items:         []ItemInput{{VariantID: u.ID, SoldPriceCents: 500}},
		PaymentMethod: "cash",
		Distribution:  h.sixtyForty(),
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if res.SaleID == uuid.Nil || len(res.Warnings) == 0 {
		t.Fatalf("expected a sale with warnings, got %+v", res)
	}
	if n := h.count(t, &models.Sale{}); n != 1 {
		t.Fatalf("sale header should stay, found %d", n)
	}
	if n := h.count(t, &models.SaleItem{}); n != 1 {
		t.Fatalf("sale item should stay, found %d", n)
	}
	if n := h.count(t, &models.ProfitDistribution{}); n != 2 {
		t.Fatalf("distributions should be written, found %d", n)
	}
	if got := h.status(t, u.ID); got != enums.VariantStatusArchived {
		t.Fatalf("unit should be left as found, got %s", got)
	}
}

func TestRecordSaleDistributionFailureRollsBackFinancialRows(t *testing.T) {
	h := newHarness(t, Options{})
	u := h.unit(t, 0)
	h.repo.createDistributionsErr = errors.New("insert distributions: timeout")

	_, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
		TenantID:      h.tenant,
		Items:         []ItemInput{{VariantID: u.ID, SoldPriceCents: 500}},
		PaymentMethod: "cash",
		Distribution:  h.sixtyForty(),
	})
	expectCode(t, err, pkgerrors.CodeSaleRecordingFailed)
	for _, model := range []any{&models.Sale{}, &models.SaleItem{}, &models.ProfitDistribution{}} {
		if n := h.count(t, model); n != 0 {
			t.Fatalf("%T rows should be compensated, found %d", model, n)
		}
	}
	if got := h.status(t, u.ID); got != enums.VariantStatusSold {
		t.Fatalf("units stay sold unless revert is enabled, got %s", got)
	}

	details, ok := pkgerrors.As(err).Details().(map[string]any)
	if !ok || details["step"] != stepInsertDistributions {
		t.Fatalf("unexpected details %v", pkgerrors.As(err).Details())
	}
}

func TestRecordSaleDistributionFailureRevertsUnitsWhenEnabled(t *testing.T) {
	h := newHarness(t, Options{RevertVariantsOnDistributionFailure: true})
	u := h.unit(t, 0)
	h.repo.createDistributionsErr = errors.New("insert distributions: timeout")

	_, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
		TenantID:      h.tenant,
		Items:         []ItemInput{{VariantID: u.ID, SoldPriceCents: 500}},
		PaymentMethod: "cash",
		Distribution:  h.sixtyForty(),
	})
	expectCode(t, err, pkgerrors.CodeSaleRecordingFailed)
	if got := h.status(t, u.ID); got != enums.VariantStatusAvailable {
		t.Fatalf("unit should be released, got %s", got)
	}
}

func TestRecordSaleReportsOrphansWhenCompensationFails(t *testing.T) {
	h := newHarness(t, Options{})
	u := h.unit(t, 0)
	h.repo.createDistributionsErr = errors.New("insert distributions: timeout")
	h.repo.deleteItemsErr = errors.New("delete items: connection lost")

	_, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
		TenantID:      h.tenant,
		Items:         []ItemInput{{VariantID: u.ID, SoldPriceCents: 500}},
		PaymentMethod: "cash",
		Distribution:  h.sixtyForty(),
	})
	expectCode(t, err, pkgerrors.CodeSaleRecordingFailed)
	details := pkgerrors.As(err).Details().(map[string]any)
	orphaned, ok := details["orphaned"].([]map[string]any)
	if !ok || len(orphaned) != 1 || orphaned[0]["table"] != "sale_items" {
		t.Fatalf("expected sale_items orphan, got %v", details["orphaned"])
	}
}

func TestRecordSaleWithZeroTotalWritesNoDistribution(t *testing.T) {
	h := newHarness(t, Options{})
	u := h.unit(t, 0)

	res, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
		TenantID:      h.tenant,
		Items:         []ItemInput{{VariantID: u.ID, SoldPriceCents: 0}},
		PaymentMethod: "gift",
		Distribution:  h.sixtyForty(),
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if n := h.count(t, &models.ProfitDistribution{}); n != 0 {
		t.Fatalf("expected no distribution rows, got %d", n)
	}
	if _, err := h.svc.GetSale(context.Background(), h.tenant, res.SaleID); err != nil {
		t.Fatalf("get sale: %v", err)
	}
}

func TestSettleSaleMovesPendingToCompleted(t *testing.T) {
	h := newHarness(t, Options{})
	u := h.unit(t, 0)
	res, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
		TenantID:      h.tenant,
		Items:         []ItemInput{{VariantID: u.ID, SoldPriceCents: 500}},
		PaymentMethod: "transfer",
		Status:        enums.SaleStatusPending,
		Distribution:  h.sixtyForty(),
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	sale, err := h.svc.SettleSale(context.Background(), h.tenant, res.SaleID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if sale.Status != enums.SaleStatusCompleted {
		t.Fatalf("expected completed, got %s", sale.Status)
	}
	_, err = h.svc.SettleSale(context.Background(), h.tenant, res.SaleID)
	expectCode(t, err, pkgerrors.CodeInvalidTransition)
}

func TestGetReceiptResolvesNames(t *testing.T) {
	h := newHarness(t, Options{})
	u := h.unit(t, 0)
	res, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
		TenantID:      h.tenant,
		Items:         []ItemInput{{VariantID: u.ID, SoldPriceCents: 1000}},
		PaymentMethod: "cash",
		Distribution:  h.sixtyForty(),
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	receipt, err := h.svc.GetReceipt(context.Background(), h.tenant, res.SaleID)
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if len(receipt.Lines) != 1 || receipt.Lines[0].SerialNumber == nil || *receipt.Lines[0].SerialNumber != u.SerialNumber {
		t.Fatalf("unexpected lines %+v", receipt.Lines)
	}
	if len(receipt.Shares) != 2 || receipt.Shares[0].RecipientName == nil || *receipt.Shares[0].RecipientName != "Alice" {
		t.Fatalf("unexpected shares %+v", receipt.Shares)
	}
}
