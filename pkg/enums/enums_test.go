package enums

import "testing"

func TestVariantTransitions(t *testing.T) {
	tests := []struct {
		from, to VariantStatus
		allowed  bool
	}{
		{VariantStatusAvailable, VariantStatusSold, true},
		{VariantStatusSold, VariantStatusAvailable, true},
		{VariantStatusAvailable, VariantStatusArchived, true},
		{VariantStatusArchived, VariantStatusAvailable, true},
		{VariantStatusSold, VariantStatusArchived, false},
		{VariantStatusSold, VariantStatusReserved, false},
		{VariantStatusArchived, VariantStatusSold, false},
		{VariantStatusReserved, VariantStatusSold, false},
		{VariantStatusAvailable, VariantStatusAvailable, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Fatalf("%s -> %s expected %v got %v", tt.from, tt.to, tt.allowed, got)
		}
	}
}

func TestPreOrderTransitions(t *testing.T) {
	if !PreOrderStatusPending.CanTransitionTo(PreOrderStatusConfirmed) {
		t.Fatal("pending -> confirmed should be allowed")
	}
	if !PreOrderStatusConfirmed.CanTransitionTo(PreOrderStatusPending) {
		t.Fatal("confirmed -> pending should be allowed")
	}
	if PreOrderStatusCompleted.CanTransitionTo(PreOrderStatusPending) {
		t.Fatal("completed is terminal")
	}
	if PreOrderStatusVoided.CanTransitionTo(PreOrderStatusConfirmed) {
		t.Fatal("voided may only be restored to pending")
	}
	if !PreOrderStatusCanceled.CanTransitionTo(PreOrderStatusPending) {
		t.Fatal("canceled -> pending is the restore path")
	}
}

func TestPreOrderDeletable(t *testing.T) {
	for _, s := range []PreOrderStatus{PreOrderStatusPending, PreOrderStatusConfirmed, PreOrderStatusVoided} {
		if !s.IsDeletable() {
			t.Fatalf("%s should be deletable", s)
		}
	}
	for _, s := range []PreOrderStatus{PreOrderStatusCompleted, PreOrderStatusCanceled} {
		if s.IsDeletable() {
			t.Fatalf("%s should not be deletable", s)
		}
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	if _, err := ParseDistributionStrategy("weighted"); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
	got, err := ParseDistributionStrategy("manual")
	if err != nil || got != DistributionStrategyManual {
		t.Fatalf("expected manual, got %q err %v", got, err)
	}
	if _, err := ParseVariantStatus("Sold"); err == nil {
		t.Fatal("parsing is case sensitive")
	}
}
