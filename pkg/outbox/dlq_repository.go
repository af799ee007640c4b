package outbox

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

const maxDLQErrorBytes = 1024

// ErrNotDeadLettered is returned by Requeue for an event with no DLQ entry.
var ErrNotDeadLettered = errors.New("event is not dead-lettered")

// DLQRepository stores ledger events the publisher gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx records a dead letter inside the publisher's batch transaction.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil {
		msg := truncateUTF8(*entry.ErrorMessage, maxDLQErrorBytes)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// FindByEventID returns nil, nil when the event was never dead-lettered.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Requeue hands a dead-lettered event back to the publisher: the outbox row
// gets a fresh attempt budget and the DLQ entry is removed.
func (r *DLQRepository) Requeue(ctx context.Context, eventID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		removed := tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{})
		if removed.Error != nil {
			return removed.Error
		}
		if removed.RowsAffected == 0 {
			return ErrNotDeadLettered
		}
		reset := tx.Model(&models.OutboxEvent{}).
			Where("id = ? AND published_at IS NULL", eventID).
			Updates(map[string]any{"attempt_count": 0, "last_error": nil})
		if reset.Error != nil {
			return reset.Error
		}
		if reset.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// CountSince counts dead-lettered events per type failed at or after since.
func (r *DLQRepository) CountSince(ctx context.Context, since time.Time) (map[enums.OutboxEventType]int64, error) {
	var rows []struct {
		EventType enums.OutboxEventType
		Total     int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.OutboxDLQ{}).
		Select("event_type, COUNT(*) AS total").
		Where("failed_at >= ?", since).
		Group("event_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[enums.OutboxEventType]int64, len(rows))
	for _, row := range rows {
		counts[row.EventType] = row.Total
	}
	return counts, nil
}

func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
