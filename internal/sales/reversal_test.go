package sales

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/internal/variants"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
)

func TestDeleteSaleReleasesUnitsAndRemovesRows(t *testing.T) {
	h := newHarness(t, Options{})
	a, b := h.unit(t, 0), h.unit(t, 0)
	res, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
		TenantID:      h.tenant,
		Items:         []ItemInput{{VariantID: a.ID, SoldPriceCents: 600}, {VariantID: b.ID, SoldPriceCents: 400}},
		PaymentMethod: "cash",
		Distribution:  h.sixtyForty(),
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	rev, err := h.svc.DeleteSale(context.Background(), h.tenant, res.SaleID)
	if err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	if len(rev.ReleasedVariants) != 2 || len(rev.DeletedVariants) != 0 || len(rev.Warnings) != 0 {
		t.Fatalf("unexpected reversal %+v", rev)
	}
	for _, model := range []any{&models.Sale{}, &models.SaleItem{}, &models.ProfitDistribution{}} {
		if n := h.count(t, model); n != 0 {
			t.Fatalf("%T rows should be gone, found %d", model, n)
		}
	}
	for _, id := range []uuid.UUID{a.ID, b.ID} {
		if got := h.status(t, id); got != enums.VariantStatusAvailable {
			t.Fatalf("unit should be available, got %s", got)
		}
	}
	if len(h.reopener.calls) != 0 {
		t.Fatal("direct sales have no pre-order to reopen")
	}

	_, err = h.svc.DeleteSale(context.Background(), h.tenant, res.SaleID)
	expectCode(t, err, pkgerrors.CodeNotFound)
}

func TestDeleteSaleRacingReversalReinsertsNothing(t *testing.T) {
	h := newHarness(t, Options{})
	u := h.unit(t, 0)
	res, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
		TenantID:      h.tenant,
		Items:         []ItemInput{{VariantID: u.ID, SoldPriceCents: 500}},
		PaymentMethod: "cash",
		Distribution:  h.sixtyForty(),
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	var inner error
	h.repo.afterFindItems = func() {
		_, inner = h.svc.DeleteSale(context.Background(), h.tenant, res.SaleID)
	}
	_, err = h.svc.DeleteSale(context.Background(), h.tenant, res.SaleID)
	if inner != nil {
		t.Fatalf("inner reversal: %v", inner)
	}
	expectCode(t, err, pkgerrors.CodeSaleRecordingFailed)
	for _, model := range []any{&models.Sale{}, &models.SaleItem{}, &models.ProfitDistribution{}} {
		if n := h.count(t, model); n != 0 {
			t.Fatalf("%T rows should stay gone, found %d", model, n)
		}
	}
	if got := h.status(t, u.ID); got != enums.VariantStatusAvailable {
		t.Fatalf("unit should be available, got %s", got)
	}
}

func TestDeleteDepositSaleDeletesUnitAndReopensPreOrder(t *testing.T) {
	h := newHarness(t, Options{})
	preOrderID := uuid.New()
	deposit, err := h.variants.CreateSoldUnit(context.Background(), variants.SoldUnitInput{
		TenantID:   h.tenant,
		ProductID:  h.product,
		PreOrderID: preOrderID,
		Origin:     enums.UnitOriginPreorderDeposit,
	})
	if err != nil {
		t.Fatalf("deposit unit: %v", err)
	}
	down := int64(200)
	res, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
		TenantID:           h.tenant,
		Items:              []ItemInput{{VariantID: deposit.ID, SoldPriceCents: down}},
		PaymentMethod:      "cash",
		Distribution:       h.sixtyForty(),
		PreOrderID:         &preOrderID,
		Origin:             enums.SaleOriginPreorderDeposit,
		DistributableCents: &down,
		NetProfitCents:     &down,
	})
	if err != nil {
		t.Fatalf("record deposit sale: %v", err)
	}

	rev, err := h.svc.DeleteSale(context.Background(), h.tenant, res.SaleID)
	if err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	if len(rev.DeletedVariants) != 1 || rev.DeletedVariants[0] != deposit.ID {
		t.Fatalf("deposit unit should be deleted, got %+v", rev)
	}
	if _, err := h.variants.Get(context.Background(), h.tenant, deposit.ID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("deposit unit should be gone, got %v", err)
	}
	if len(h.reopener.calls) != 1 || h.reopener.calls[0] != preOrderID {
		t.Fatalf("pre-order should be reopened, got %v", h.reopener.calls)
	}
}

func TestPreSoldUnitCannotBeSoldTwice(t *testing.T) {
	h := newHarness(t, Options{})
	preOrderID := uuid.New()
	unit, err := h.variants.CreateSoldUnit(context.Background(), variants.SoldUnitInput{
		TenantID:   h.tenant,
		ProductID:  h.product,
		PreOrderID: preOrderID,
		Origin:     enums.UnitOriginPreorderFulfilled,
	})
	if err != nil {
		t.Fatalf("fulfilled unit: %v", err)
	}
	input := RecordSaleInput{
		TenantID:      h.tenant,
		Items:         []ItemInput{{VariantID: unit.ID, SoldPriceCents: 900}},
		PaymentMethod: "cash",
		Distribution:  h.sixtyForty(),
		PreOrderID:    &preOrderID,
		Origin:        enums.SaleOriginPreorderFulfilment,
	}
	if _, err := h.svc.RecordSale(context.Background(), input); err != nil {
		t.Fatalf("first sale: %v", err)
	}
	_, err = h.svc.RecordSale(context.Background(), input)
	expectCode(t, err, pkgerrors.CodeInvalidTransition)

	other := uuid.New()
	input.PreOrderID = &other
	_, err = h.svc.RecordSale(context.Background(), input)
	expectCode(t, err, pkgerrors.CodeInvalidTransition)
}

func TestDeleteSaleWarnsWhenPreOrderCannotReopen(t *testing.T) {
	h := newHarness(t, Options{})
	preOrderID := uuid.New()
	u := h.unit(t, 0)
	res, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
		TenantID:      h.tenant,
		Items:         []ItemInput{{VariantID: u.ID, SoldPriceCents: 500}},
		PaymentMethod: "cash",
		Distribution:  h.sixtyForty(),
		PreOrderID:    &preOrderID,
		Origin:        enums.SaleOriginPreorderFulfilment,
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	h.reopener.err = errors.New("pre-order update failed")

	rev, err := h.svc.DeleteSale(context.Background(), h.tenant, res.SaleID)
	if err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	if len(rev.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", rev.Warnings)
	}
	if n := h.count(t, &models.Sale{}); n != 0 {
		t.Fatalf("sale should be gone, found %d", n)
	}
}

func TestDeleteSaleRestoresRowsWhenHeaderDeleteFails(t *testing.T) {
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
	h.repo.deleteSaleErr = errors.New("delete sale: lock timeout")

	_, err = h.svc.DeleteSale(context.Background(), h.tenant, res.SaleID)
	expectCode(t, err, pkgerrors.CodeSaleRecordingFailed)
	if n := h.count(t, &models.SaleItem{}); n != 1 {
		t.Fatalf("items should be re-inserted, found %d", n)
	}
	if n := h.count(t, &models.ProfitDistribution{}); n != 2 {
		t.Fatalf("distributions should be re-inserted, found %d", n)
	}
	if got := h.status(t, u.ID); got != enums.VariantStatusSold {
		t.Fatalf("unit should stay sold, got %s", got)
	}
}
