package queue

import (
	"context"
	"errors"
)

// Message is one unit on the bus. Key selects the partition: messages
// sharing a key are delivered to a subscriber in publish order, messages
// with different keys may be processed in parallel.
type Message struct {
	Key   string
	Value []byte
}

// Handler handles incoming messages
type Handler func(ctx context.Context, topic string, msg Message) error

// Bus defines the interface for message bus operations
type Bus interface {
	// Publish publishes a message to the specified topic
	Publish(ctx context.Context, topic string, msg Message) error

	// Subscribe registers a handler for the topic under a consumer group.
	// Every group receives every message; within a group, delivery is
	// partitioned by message key.
	Subscribe(ctx context.Context, topic, group string, handler Handler) error

	// Close closes the bus connections
	Close() error

	// Health checks the health of the bus
	Health() error
}

// Common errors
var (
	ErrBusClosed            = errors.New("bus is closed")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrPublishTimeout       = errors.New("publish timeout")
)
