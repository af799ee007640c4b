package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
)

func TestNormalizeSpecs(t *testing.T) {
	specs, err := normalizeSpecs([]TableSpec{{Name: " ledger_events "}})
	if err != nil || len(specs) != 1 || specs[0].Name != "ledger_events" {
		t.Fatalf("unexpected specs %v: %v", specs, err)
	}
	if _, err := normalizeSpecs(nil); !errors.Is(err, errTableNameRequired) {
		t.Fatalf("expected table error for no specs, got %v", err)
	}
	if _, err := normalizeSpecs([]TableSpec{{Name: "  "}}); !errors.Is(err, errTableNameRequired) {
		t.Fatalf("expected table error for blank name, got %v", err)
	}
}

func TestTableMetadataPartitionsAndClusters(t *testing.T) {
	meta := tableMetadata(TableSpec{
		Name:           "ledger_events",
		Schema:         bigquery.Schema{{Name: "occurred_at", Type: bigquery.TimestampFieldType}},
		PartitionField: "occurred_at",
		Clustering:     []string{"tenant_id", "event_type"},
	})
	if meta.TimePartitioning == nil || meta.TimePartitioning.Field != "occurred_at" {
		t.Fatalf("expected day partitioning on occurred_at, got %+v", meta.TimePartitioning)
	}
	if meta.Clustering == nil || len(meta.Clustering.Fields) != 2 {
		t.Fatalf("expected clustering fields, got %+v", meta.Clustering)
	}
	if plain := tableMetadata(TableSpec{Name: "t"}); plain.TimePartitioning != nil || plain.Clustering != nil {
		t.Fatalf("unexpected partitioning for plain table")
	}
}

func TestClientOptionsPrioritizesJSON(t *testing.T) {
	opts := clientOptions(config.GCPConfig{
		CredentialsJSON:        `{"dummy": "value"}`,
		ApplicationCredentials: "/tmp/creds",
	})
	if len(opts) != 1 {
		t.Fatalf("expected 1 option, got %d", len(opts))
	}
	if opts := clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/creds"}); len(opts) != 1 {
		t.Fatalf("expected 1 option for credentials file, got %d", len(opts))
	}
	if opts := clientOptions(config.GCPConfig{}); len(opts) != 0 {
		t.Fatalf("expected 0 options, got %d", len(opts))
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "d"}, nil, TableSpec{Name: "t"}); !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project id error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{}, nil, TableSpec{Name: "t"}); !errors.Is(err, errDatasetRequired) {
		t.Fatalf("expected dataset error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: "d"}, nil); !errors.Is(err, errTableNameRequired) {
		t.Fatalf("expected table error, got %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	if !isNotFound(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusNotFound})) {
		t.Fatal("expected wrapped 404 to be not found")
	}
	if isNotFound(&googleapi.Error{Code: http.StatusForbidden}) || isNotFound(errors.New("x")) {
		t.Fatal("unexpected not found")
	}
	if !isConflict(&googleapi.Error{Code: http.StatusConflict}) {
		t.Fatal("expected 409 to be a conflict")
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if err := c.InsertRows(context.Background(), "t", []any{1}); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
