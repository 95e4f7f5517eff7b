package consumer

import (
	"context"
	"time"

	"checkout/internal/event"
	"checkout/internal/idempotency"
	"checkout/internal/model"
	"checkout/internal/monitor"
	"checkout/internal/repository"
	"checkout/pkg/log"
	"checkout/pkg/queue"
	"checkout/pkg/utils"
)

// EventHandler handles one decoded saga event
type EventHandler func(ctx context.Context, env *event.Envelope) error

// Dispatcher turns raw bus messages into exactly-once handler calls for
// one consumer group. Malformed messages are dropped, duplicates are
// absorbed, transient handler failures release the claim so the bus can
// redeliver, and fatal inconsistencies keep the claim so the poisoned
// event is never retried.
type Dispatcher struct {
	group    string
	store    *idempotency.Store
	eventLog repository.EventLogRepository
	metrics  *monitor.MetricsCollector
}

// NewDispatcher creates a dispatcher for a consumer group
func NewDispatcher(
	group string,
	store *idempotency.Store,
	eventLog repository.EventLogRepository,
	metrics *monitor.MetricsCollector,
) *Dispatcher {
	return &Dispatcher{
		group:    group,
		store:    store,
		eventLog: eventLog,
		metrics:  metrics,
	}
}

// Group returns the consumer group name
func (d *Dispatcher) Group() string {
	return d.group
}

// Wrap adapts an event handler into a bus handler
func (d *Dispatcher) Wrap(handle EventHandler) queue.Handler {
	return func(ctx context.Context, topic string, msg queue.Message) error {
		env, err := event.Decode(msg.Value)
		if err != nil {
			// Redelivery cannot fix a malformed message; drop it.
			d.metrics.RecordEventConsume(d.group, "unknown", "malformed")
			log.WithError(err).WithField("group", d.group).Error("Dropping malformed event")
			return nil
		}

		outcome, err := d.store.TryMark(ctx, d.group, env.EventID)
		if err != nil {
			return err
		}
		if outcome == idempotency.Duplicate {
			d.metrics.RecordDuplicateEvent(d.group)
			d.metrics.RecordEventConsume(d.group, env.EventType, "duplicate")
			return nil
		}

		start := time.Now()
		if err := handle(ctx, env); err != nil {
			if utils.IsFatal(err) {
				// The claim stays so the poisoned event is not retried;
				// the aggregate needs an operator.
				d.metrics.RecordEventConsume(d.group, env.EventType, "fatal")
				log.WithError(err).WithFields(map[string]interface{}{
					"group":        d.group,
					"event_id":     env.EventID,
					"event_type":   env.EventType,
					"aggregate_id": env.AggregateID,
				}).Error("Fatal inconsistency while handling event")
				return nil
			}

			if unmarkErr := d.store.Unmark(ctx, d.group, env.EventID); unmarkErr != nil {
				log.WithError(unmarkErr).WithField("event_id", env.EventID).Error("Failed to release event claim")
			}
			d.metrics.RecordEventConsume(d.group, env.EventType, "error")
			return err
		}

		d.metrics.RecordEventConsume(d.group, env.EventType, "ok")
		d.metrics.RecordSagaStageDuration(d.group, time.Since(start))

		if err := d.eventLog.Record(ctx, &model.ProcessedEvent{
			EventID:       env.EventID,
			ConsumerGroup: d.group,
			EventType:     env.EventType,
			AggregateID:   env.AggregateID,
			TraceID:       env.TraceID,
		}); err != nil {
			// Audit only; the event itself is already applied.
			log.WithError(err).WithField("event_id", env.EventID).Warn("Failed to record processed event")
		}
		return nil
	}
}
