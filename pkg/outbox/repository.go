package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, event *models.OutboxEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// FetchUnpublishedForPublish locks the oldest pending rows that still have
// attempts left. On Postgres concurrent publishers skip each other's rows.
func (r *Repository) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	query := tx.Where("published_at IS NULL AND attempt_count < ?", maxAttempts).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit)
	if tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var rows []models.OutboxEvent
	err := query.Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"published_at": time.Now().UTC()}).Error
}

func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    err.Error(),
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// MarkTerminalTx parks a row at the attempt ceiling so it is never fetched again.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    err.Error(),
			"attempt_count": terminalAttempts,
		}).Error
}

// DeletePublishedBefore prunes rows published before cutoff, and dead rows
// (at least minAttemptCount attempts) created before it. A positive limit
// bounds how many rows one call removes.
func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount, limit int) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	expired := func(q *gorm.DB) *gorm.DB {
		return q.Where(
			"(published_at IS NOT NULL AND published_at < ?) OR (published_at IS NULL AND attempt_count >= ? AND created_at < ?)",
			cutoff, minAttemptCount, cutoff,
		)
	}
	q := tx.WithContext(ctx)
	if limit > 0 {
		ids := expired(q.Session(&gorm.Session{NewDB: true}).Model(&models.OutboxEvent{})).
			Select("id").
			Order("created_at ASC").
			Limit(limit)
		q = q.Where("id IN (?)", ids)
	} else {
		q = expired(q)
	}
	res := q.Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

// ListForAggregate returns the events written for one aggregate, oldest first.
func (r *Repository) ListForAggregate(ctx context.Context, tenantID, aggregateID uuid.UUID) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND aggregate_id = ?", tenantID, aggregateID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
