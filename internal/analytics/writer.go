package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// RetryPolicy bounds streaming insert retries.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Writer streams ledger event rows into BigQuery, retrying transient
// failures.
type Writer struct {
	client tableInserter
	table  string
	retry  RetryPolicy
}

func NewWriter(client tableInserter, table string, retry RetryPolicy) (*Writer, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, errors.New("ledger events table is required")
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultInitialBackoff
	}
	if retry.MaximumBackoff < retry.InitialBackoff {
		retry.MaximumBackoff = max(defaultMaximumBackoff, retry.InitialBackoff)
	}
	return &Writer{client: client, table: table, retry: retry}, nil
}

// Handle builds the row for env and writes it.
func (w *Writer) Handle(ctx context.Context, env Envelope) error {
	row, err := BuildRow(env)
	if err != nil {
		return err
	}
	return w.insertWithRetry(ctx, []any{row})
}

func (w *Writer) insertWithRetry(ctx context.Context, rows []any) error {
	backoff := w.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := w.client.InsertRows(ctx, w.table, rows)
		if err == nil {
			return nil
		}
		if attempt >= w.retry.MaxAttempts || !isRetryable(err) {
			return fmt.Errorf("insert %s rows: %w", w.table, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, w.retry.MaximumBackoff)
	}
}

func isRetryable(err error) bool {
	var pme cbigquery.PutMultiError
	if errors.As(err, &pme) {
		if len(pme) == 0 {
			return false
		}
		for _, rowErr := range pme {
			if !isRetryable(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		if len(multi) == 0 {
			return false
		}
		for _, inner := range multi {
			if !isRetryable(inner) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}
