package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

type dlqCounter interface {
	CountSince(ctx context.Context, since time.Time) (map[enums.OutboxEventType]int64, error)
}

// NewDLQReportJob warns about ledger events dead-lettered during the last
// window. Each event type gets its own log line so alerts can key on it.
func NewDLQReportJob(logg *logger.Logger, repo dlqCounter, window time.Duration) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if repo == nil {
		return nil, fmt.Errorf("dlq repository required")
	}
	if window <= 0 {
		window = defaultInterval
	}
	return &dlqReportJob{logg: logg, repo: repo, window: window, now: time.Now}, nil
}

type dlqReportJob struct {
	logg   *logger.Logger
	repo   dlqCounter
	window time.Duration
	now    func() time.Time
}

func (j *dlqReportJob) Name() string { return "outbox_dlq_report" }

func (j *dlqReportJob) Run(ctx context.Context) error {
	since := j.now().UTC().Add(-j.window)
	counts, err := j.repo.CountSince(ctx, since)
	if err != nil {
		return fmt.Errorf("count dead letters: %w", err)
	}
	for eventType, total := range counts {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"event_type":    eventType,
			"dead_lettered": total,
			"since":         since,
		}), "ledger events dead-lettered")
	}
	return nil
}
