package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"checkout/internal/model"
)

// EventLogRepository processed-event audit repository interface
type EventLogRepository interface {
	// Record a processed event. Conflicts on (event_id, consumer_group)
	// are ignored, the audit row is append-only.
	Record(ctx context.Context, entry *model.ProcessedEvent) error

	// List processed events for one aggregate in processing order
	ListByAggregate(ctx context.Context, aggregateID string) ([]*model.ProcessedEvent, error)
}

// eventLogRepository processed-event audit repository implementation
type eventLogRepository struct {
	db *gorm.DB
}

// NewEventLogRepository creates an event log repository
func NewEventLogRepository(db *gorm.DB) EventLogRepository {
	return &eventLogRepository{db: db}
}

// Record inserts an audit row, ignoring duplicates
func (r *eventLogRepository) Record(ctx context.Context, entry *model.ProcessedEvent) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry).Error
}

// ListByAggregate lists processed events for one aggregate
func (r *eventLogRepository) ListByAggregate(ctx context.Context, aggregateID string) ([]*model.ProcessedEvent, error) {
	var entries []*model.ProcessedEvent
	err := r.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("processed_at ASC").
		Find(&entries).Error
	return entries, err
}
