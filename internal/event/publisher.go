package event

import (
	"context"
	"fmt"

	"checkout/pkg/log"
	"checkout/pkg/queue"
)

// Publisher writes envelopes to the saga topic. All events of one
// aggregate share the message key, which keeps them on one partition
// and therefore in order.
type Publisher struct {
	bus      queue.Bus
	topic    string
	producer string
}

// NewPublisher creates a publisher for the given bus and topic.
func NewPublisher(bus queue.Bus, topic, producer string) *Publisher {
	return &Publisher{
		bus:      bus,
		topic:    topic,
		producer: producer,
	}
}

// Publish builds an envelope for the payload and hands it to the bus,
// keyed by the aggregate ID.
func (p *Publisher) Publish(ctx context.Context, eventType, aggregateType, aggregateID, traceID string, payload interface{}) (*Envelope, error) {
	env, err := NewEnvelope(eventType, aggregateType, aggregateID, p.producer, traceID, payload)
	if err != nil {
		return nil, err
	}

	data, err := env.Encode()
	if err != nil {
		return nil, err
	}

	if err := p.bus.Publish(ctx, p.topic, queue.Message{Key: aggregateID, Value: data}); err != nil {
		return nil, fmt.Errorf("failed to publish %s: %w", eventType, err)
	}

	log.WithFields(map[string]interface{}{
		"event_id":     env.EventID,
		"event_type":   eventType,
		"aggregate_id": aggregateID,
		"trace_id":     traceID,
	}).Debug("Event published")

	return env, nil
}

// Topic returns the topic the publisher writes to.
func (p *Publisher) Topic() string {
	return p.topic
}
