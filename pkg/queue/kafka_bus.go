package queue

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaBusConfig kafka bus configuration
type KafkaBusConfig struct {
	Brokers      []string      `json:"brokers"`
	BatchTimeout time.Duration `json:"batch_timeout"`
	MinBytes     int           `json:"min_bytes"`
	MaxBytes     int           `json:"max_bytes"`
	RetryDelay   time.Duration `json:"retry_delay"`
}

// KafkaBus is a Bus backed by Kafka. Message keys map to Kafka partition
// keys, so the per-key ordering guarantee is carried by the broker itself.
type KafkaBus struct {
	config  KafkaBusConfig
	writers map[string]*kafka.Writer
	readers []*kafka.Reader
	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

// NewKafkaBus creates a new kafka bus instance
func NewKafkaBus(config KafkaBusConfig) (*KafkaBus, error) {
	if len(config.Brokers) == 0 {
		return nil, ErrInvalidConfiguration
	}
	if config.BatchTimeout == 0 {
		config.BatchTimeout = 10 * time.Millisecond
	}
	if config.MinBytes == 0 {
		config.MinBytes = 1
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = 10 << 20
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}

	return &KafkaBus{
		config:  config,
		writers: make(map[string]*kafka.Writer),
	}, nil
}

// Publish publishes a message to the specified topic
func (b *KafkaBus) Publish(ctx context.Context, topic string, msg Message) error {
	w, err := b.writer(topic)
	if err != nil {
		return err
	}

	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Key),
		Value: msg.Value,
	})
}

func (b *KafkaBus) writer(topic string) (*kafka.Writer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	w, exists := b.writers[topic]
	if !exists {
		w = &kafka.Writer{
			Addr:         kafka.TCP(b.config.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: b.config.BatchTimeout,
			RequiredAcks: kafka.RequireAll,
		}
		b.writers[topic] = w
	}
	return w, nil
}

// Subscribe consumes the topic under a consumer group. The message is only
// committed after the handler succeeds, giving at-least-once delivery.
func (b *KafkaBus) Subscribe(ctx context.Context, topic, group string, handler Handler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.config.Brokers,
		GroupID:  group,
		Topic:    topic,
		MinBytes: b.config.MinBytes,
		MaxBytes: b.config.MaxBytes,
	})
	b.readers = append(b.readers, r)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			m, err := r.FetchMessage(ctx)
			if err != nil {
				// Reader closed or context cancelled.
				return
			}

			if !deliver(ctx, topic, Message{Key: string(m.Key), Value: m.Value}, handler, b.config.RetryDelay) {
				return
			}

			if err := r.CommitMessages(ctx, m); err != nil {
				return
			}
		}
	}()

	return nil
}

// deliver invokes the handler until it succeeds. Committing past a failed
// message would lose it, so the same message is retried in place; handlers
// mark terminal outcomes as handled and only return transient errors.
// Returns false when the context ends first.
func deliver(ctx context.Context, topic string, msg Message, handler Handler, retryDelay time.Duration) bool {
	for {
		if err := handler(ctx, topic, msg); err == nil {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(retryDelay):
		}
	}
}

// Close closes the bus connections
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	var firstErr error
	for _, w := range b.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, r := range b.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.mu.Unlock()

	b.wg.Wait()
	return firstErr
}

// Health checks the health of the bus
func (b *KafkaBus) Health() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	return nil
}
