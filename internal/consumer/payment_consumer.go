package consumer

import (
	"context"

	"checkout/internal/event"
	"checkout/internal/service"
	"checkout/pkg/queue"
)

// PaymentGroup consumer group of the payment participant
const PaymentGroup = "payment-service"

// PaymentConsumer captures payment when an order is ready for it.
type PaymentConsumer struct {
	dispatcher *Dispatcher
	payments   service.PaymentService
}

// NewPaymentConsumer creates a payment consumer
func NewPaymentConsumer(dispatcher *Dispatcher, payments service.PaymentService) *PaymentConsumer {
	return &PaymentConsumer{
		dispatcher: dispatcher,
		payments:   payments,
	}
}

// Start subscribes the consumer on the bus
func (c *PaymentConsumer) Start(ctx context.Context, bus queue.Bus, topic string) error {
	return bus.Subscribe(ctx, topic, PaymentGroup, c.dispatcher.Wrap(c.handle))
}

func (c *PaymentConsumer) handle(ctx context.Context, env *event.Envelope) error {
	switch env.EventType {
	case event.TypeOrderCreated:
		var p event.OrderCreated
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return c.payments.HandleOrderCreated(ctx, p, env.TraceID)
	}
	return nil
}
