package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// TableSpec describes a table the client writes to. Schema is only needed
// when missing tables may be created.
type TableSpec struct {
	Name           string
	Schema         bigquery.Schema
	PartitionField string
	Clustering     []string
}

// Client streams ledger analytics rows into one dataset.
type Client struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	tables  []TableSpec
	create  bool
	logg    *logger.Logger
}

// NewClient connects to BigQuery and makes sure the dataset and every table
// in specs exist. Missing tables are created when cfg.CreateTables is set.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger, specs ...TableSpec) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	tables, err := normalizeSpecs(specs)
	if err != nil {
		return nil, err
	}

	bq, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	if logg == nil {
		logg = logger.Nop()
	}
	client := &Client{
		client:  bq,
		dataset: bq.Dataset(datasetID),
		tables:  tables,
		create:  cfg.CreateTables,
		logg:    logg,
	}
	if err := client.provision(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"dataset": datasetID,
		"tables":  tableNames(tables),
	}), "bigquery client initialized")
	return client, nil
}

func normalizeSpecs(specs []TableSpec) ([]TableSpec, error) {
	if len(specs) == 0 {
		return nil, errTableNameRequired
	}
	out := make([]TableSpec, 0, len(specs))
	for _, spec := range specs {
		spec.Name = strings.TrimSpace(spec.Name)
		if spec.Name == "" {
			return nil, errTableNameRequired
		}
		out = append(out, spec)
	}
	return out, nil
}

func tableNames(specs []TableSpec) []string {
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Name)
	}
	return names
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// tableMetadata builds the metadata used when a table has to be created.
func tableMetadata(spec TableSpec) *bigquery.TableMetadata {
	meta := &bigquery.TableMetadata{Schema: spec.Schema}
	if spec.PartitionField != "" {
		meta.TimePartitioning = &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: spec.PartitionField,
		}
	}
	if len(spec.Clustering) > 0 {
		meta.Clustering = &bigquery.Clustering{Fields: spec.Clustering}
	}
	return meta
}

func (c *Client) provision(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
		}
		return fmt.Errorf("checking dataset %q: %w", c.dataset.DatasetID, err)
	}
	for _, spec := range c.tables {
		table := c.dataset.Table(spec.Name)
		_, err := table.Metadata(ctx)
		switch {
		case err == nil:
			continue
		case !isNotFound(err):
			return fmt.Errorf("checking table %q: %w", spec.Name, err)
		case !c.create || len(spec.Schema) == 0:
			return fmt.Errorf("table %q does not exist", spec.Name)
		}
		if err := table.Create(ctx, tableMetadata(spec)); err != nil && !isConflict(err) {
			return fmt.Errorf("creating table %q: %w", spec.Name, err)
		}
		c.logg.Info(c.logg.WithField(ctx, "table", spec.Name), "bigquery table created")
	}
	return nil
}

// Ping verifies the dataset and tables are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errClientNotInitialized
	}
	return c.provision(ctx)
}

// InsertRows streams rows into table. Rows may be structs or ValueSavers.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

func isConflict(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

func hasStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}
