package instance

import "testing"

func TestGetIDPrefersExplicitID(t *testing.T) {
	t.Setenv("STOCKLEDGER_INSTANCE_ID", "api-2")
	t.Setenv("DYNO", "web.1")
	if got := GetID(); got != "api-2" {
		t.Fatalf("expected api-2, got %q", got)
	}
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv("STOCKLEDGER_INSTANCE_ID", "")
	t.Setenv("DYNO", "")
	if got := GetID(); got != "local" {
		t.Fatalf("expected local, got %q", got)
	}
}
