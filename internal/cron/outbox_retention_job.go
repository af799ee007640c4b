package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

const (
	defaultRetentionDays = 30
	defaultMinAttempts   = 10
	defaultPurgeBatch    = 5000
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount, limit int) (int64, error)
}

// OutboxRetentionJobParams configure the ledger event purge. MinAttempts
// should match the publisher's max attempts so only rows it gave up on go.
type OutboxRetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Repository    outboxPurger
	RetentionDays int
	MinAttempts   int
	// BatchSize bounds each delete transaction.
	BatchSize int
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	var errs []error
	if params.Logger == nil {
		errs = append(errs, errors.New("logger required"))
	}
	if params.DB == nil {
		errs = append(errs, errors.New("db runner required"))
	}
	if params.Repository == nil {
		errs = append(errs, errors.New("outbox repository required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		retention:   positiveOr(params.RetentionDays, defaultRetentionDays),
		minAttempts: positiveOr(params.MinAttempts, defaultMinAttempts),
		batch:       positiveOr(params.BatchSize, defaultPurgeBatch),
		now:         time.Now,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// outboxRetentionJob deletes expired ledger events one batch per
// transaction until a short batch shows nothing is left.
type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxPurger
	retention   int
	minAttempts int
	batch       int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox_retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.retention)
	var total int64
	batches := 0
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("outbox retention interrupted after %d rows: %w", total, err)
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.minAttempts, j.batch)
			return err
		})
		if err != nil {
			return fmt.Errorf("outbox retention batch %d: %w", batches+1, err)
		}
		total += n
		batches++
		if n < int64(j.batch) {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, logger.Fields{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"min_attempts":   j.minAttempts,
		"batches":        batches,
		"rows_deleted":   total,
	}), "ledger event retention complete")
	return nil
}
