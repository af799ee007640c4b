package env

import "testing"

func TestGetPrefersPrefixedKey(t *testing.T) {
	t.Setenv("LOG_FORMAT", "console")
	if got := Get("LOG_FORMAT", "json"); got != "console" {
		t.Fatalf("expected bare key, got %q", got)
	}
	t.Setenv("STOCKLEDGER_LOG_FORMAT", "json")
	if got := Get("LOG_FORMAT", "console"); got != "json" {
		t.Fatalf("expected prefixed key, got %q", got)
	}
}

func TestGetFallsBackOnBlank(t *testing.T) {
	t.Setenv("STOCKLEDGER_LOG_FORMAT", "  ")
	t.Setenv("LOG_FORMAT", "")
	if got := Get("LOG_FORMAT", "json"); got != "json" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
