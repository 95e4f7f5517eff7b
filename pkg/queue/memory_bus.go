package queue

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// MemoryBusConfig memory bus configuration
type MemoryBusConfig struct {
	Partitions      int           `json:"partitions"`
	BufferSize      int           `json:"buffer_size"`
	PublishTimeout  time.Duration `json:"publish_timeout"`
	MaxRedeliveries int           `json:"max_redeliveries"`
	RedeliveryDelay time.Duration `json:"redelivery_delay"`
}

// MemoryBus is an in-process Bus with kafka-like semantics: fan-out across
// consumer groups, key-partitioned FIFO within a group. Used in tests and
// single-process deployments; the kafka implementation is wire-compatible.
type MemoryBus struct {
	config MemoryBusConfig
	topics map[string]*memoryTopic
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type memoryTopic struct {
	groups map[string]*groupSubscription
}

type groupSubscription struct {
	partitions []chan Message
}

// NewMemoryBus creates a new memory bus instance
func NewMemoryBus(config *MemoryBusConfig) (*MemoryBus, error) {
	cfg := MemoryBusConfig{
		Partitions:      4,
		BufferSize:      1024,
		PublishTimeout:  30 * time.Second,
		MaxRedeliveries: 2,
		RedeliveryDelay: 10 * time.Millisecond,
	}
	if config != nil {
		cfg = *config
	}
	if cfg.Partitions <= 0 || cfg.BufferSize <= 0 {
		return nil, ErrInvalidConfiguration
	}

	return &MemoryBus{
		config: cfg,
		topics: make(map[string]*memoryTopic),
	}, nil
}

// Publish publishes a message to every consumer group of the topic
func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	t, exists := b.topics[topic]
	if !exists {
		// No subscribers yet: the message has nowhere to go. Saga wiring
		// subscribes every participant before the first publish.
		b.mu.RUnlock()
		return nil
	}

	targets := make([]chan Message, 0, len(t.groups))
	for _, g := range t.groups {
		targets = append(targets, g.partitions[b.partition(msg.Key)])
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.config.PublishTimeout):
			return ErrPublishTimeout
		}
	}
	return nil
}

// Subscribe registers a handler; one goroutine per partition preserves
// per-key ordering while unrelated keys proceed in parallel.
func (b *MemoryBus) Subscribe(ctx context.Context, topic, group string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	t, exists := b.topics[topic]
	if !exists {
		t = &memoryTopic{groups: make(map[string]*groupSubscription)}
		b.topics[topic] = t
	}

	if _, exists := t.groups[group]; exists {
		return ErrInvalidConfiguration
	}

	sub := &groupSubscription{
		partitions: make([]chan Message, b.config.Partitions),
	}
	for i := range sub.partitions {
		sub.partitions[i] = make(chan Message, b.config.BufferSize)
	}
	t.groups[group] = sub

	for _, ch := range sub.partitions {
		b.wg.Add(1)
		go b.consume(ctx, topic, ch, handler)
	}

	return nil
}

func (b *MemoryBus) consume(ctx context.Context, topic string, ch chan Message, handler Handler) {
	defer b.wg.Done()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.deliver(ctx, topic, msg, handler)
		case <-ctx.Done():
			return
		}
	}
}

// deliver retries a failed handler a bounded number of times, approximating
// broker redelivery. Handlers are expected to be idempotent.
func (b *MemoryBus) deliver(ctx context.Context, topic string, msg Message, handler Handler) {
	for attempt := 0; ; attempt++ {
		if err := handler(ctx, topic, msg); err == nil {
			return
		}
		if attempt >= b.config.MaxRedeliveries {
			return
		}
		select {
		case <-time.After(b.config.RedeliveryDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (b *MemoryBus) partition(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(b.config.Partitions))
}

// Close closes the bus connections
func (b *MemoryBus) Close() error {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	for _, t := range b.topics {
		for _, g := range t.groups {
			for _, ch := range g.partitions {
				close(ch)
			}
		}
	}
	b.topics = make(map[string]*memoryTopic)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// Health checks the health of the bus
func (b *MemoryBus) Health() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}
	return nil
}
