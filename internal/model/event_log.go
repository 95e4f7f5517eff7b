package model

import (
	"time"
)

// ProcessedEvent audit row written after a handler applies an event.
// The Redis idempotency mark is the authority; this table exists for
// operators digging into a saga after the fact.
type ProcessedEvent struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID       string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_event_consumer" json:"event_id"`
	ConsumerGroup string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_event_consumer" json:"consumer_group"`
	EventType     string    `gorm:"type:varchar(64);not null;index" json:"event_type"`
	AggregateID   string    `gorm:"type:varchar(64);not null;index" json:"aggregate_id"`
	TraceID       string    `gorm:"type:varchar(64)" json:"trace_id,omitempty"`
	ProcessedAt   time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"processed_at"`
}

// TableName set name
func (ProcessedEvent) TableName() string {
	return "processed_events"
}
