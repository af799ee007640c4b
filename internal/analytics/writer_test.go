package analytics

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
)

type scriptedInserter struct {
	errs  []error
	calls int
	table string
	rows  []any
}

func (s *scriptedInserter) InsertRows(_ context.Context, table string, rows []any) error {
	s.calls++
	s.table = table
	s.rows = rows
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaximumBackoff: 2 * time.Millisecond}
}

func settledEnvelope(t *testing.T) Envelope {
	return envelopeFor(t, enums.EventSaleSettled, enums.AggregateSale, payloads.SaleSettledEvent{SaleID: uuid.New(), SaleNumber: 1})
}

func TestWriterRetriesTransientFailures(t *testing.T) {
	inserter := &scriptedInserter{errs: []error{&googleapi.Error{Code: http.StatusServiceUnavailable}}}
	writer, err := NewWriter(inserter, "ledger_events", fastRetry())
	require.NoError(t, err)

	require.NoError(t, writer.Handle(context.Background(), settledEnvelope(t)))
	assert.Equal(t, 2, inserter.calls)
	assert.Equal(t, "ledger_events", inserter.table)
	require.Len(t, inserter.rows, 1)
	assert.IsType(t, &LedgerEventRow{}, inserter.rows[0])
}

func TestWriterDoesNotRetryBadRequests(t *testing.T) {
	inserter := &scriptedInserter{errs: []error{&googleapi.Error{Code: http.StatusBadRequest}}}
	writer, err := NewWriter(inserter, "ledger_events", fastRetry())
	require.NoError(t, err)

	err = writer.Handle(context.Background(), settledEnvelope(t))
	assert.Error(t, err)
	assert.Equal(t, 1, inserter.calls)
}

func TestWriterStopsAtMaxAttempts(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "try later")
	inserter := &scriptedInserter{errs: []error{unavailable, unavailable, unavailable, unavailable}}
	writer, err := NewWriter(inserter, "ledger_events", fastRetry())
	require.NoError(t, err)

	err = writer.Handle(context.Background(), settledEnvelope(t))
	assert.Error(t, err)
	assert.Equal(t, 3, inserter.calls)
}

func TestWriterSkipsUnsupportedEvents(t *testing.T) {
	inserter := &scriptedInserter{}
	writer, err := NewWriter(inserter, "ledger_events", fastRetry())
	require.NoError(t, err)

	env := envelopeFor(t, enums.OutboxEventType("sale.exported"), enums.AggregateSale, map[string]any{})
	assert.ErrorIs(t, writer.Handle(context.Background(), env), ErrUnsupportedEvent)
	assert.Zero(t, inserter.calls)
}

func TestNewWriterDefaults(t *testing.T) {
	writer, err := NewWriter(&scriptedInserter{}, " ledger_events ", RetryPolicy{})
	require.NoError(t, err)
	assert.Equal(t, "ledger_events", writer.table)
	assert.Equal(t, defaultMaxAttempts, writer.retry.MaxAttempts)
	assert.Equal(t, defaultInitialBackoff, writer.retry.InitialBackoff)
	assert.Equal(t, defaultMaximumBackoff, writer.retry.MaximumBackoff)

	_, err = NewWriter(nil, "ledger_events", RetryPolicy{})
	assert.Error(t, err)
	_, err = NewWriter(&scriptedInserter{}, "", RetryPolicy{})
	assert.Error(t, err)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&googleapi.Error{Code: http.StatusTooManyRequests}))
	assert.False(t, isRetryable(&googleapi.Error{Code: http.StatusNotFound}))
	assert.True(t, isRetryable(status.Error(codes.DeadlineExceeded, "slow")))
	assert.False(t, isRetryable(status.Error(codes.InvalidArgument, "bad row")))
	assert.False(t, isRetryable(errors.New("boom")))
}
