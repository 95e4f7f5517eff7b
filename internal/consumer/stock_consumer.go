package consumer

import (
	"context"

	"checkout/internal/event"
	"checkout/internal/service"
	"checkout/pkg/queue"
)

// StockGroup consumer group of the stock participant
const StockGroup = "stock-service"

// StockConsumer reserves stock for new checkouts, confirms holds on
// payment, and releases them on failure.
type StockConsumer struct {
	dispatcher *Dispatcher
	stocks     service.StockService
}

// NewStockConsumer creates a stock consumer
func NewStockConsumer(dispatcher *Dispatcher, stocks service.StockService) *StockConsumer {
	return &StockConsumer{
		dispatcher: dispatcher,
		stocks:     stocks,
	}
}

// Start subscribes the consumer on the bus
func (c *StockConsumer) Start(ctx context.Context, bus queue.Bus, topic string) error {
	return bus.Subscribe(ctx, topic, StockGroup, c.dispatcher.Wrap(c.handle))
}

func (c *StockConsumer) handle(ctx context.Context, env *event.Envelope) error {
	switch env.EventType {
	case event.TypeCartCheckoutRequested:
		var p event.CartCheckoutRequested
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return c.stocks.Reserve(ctx, p, env.TraceID)

	case event.TypePaymentCompleted:
		var p event.PaymentCompleted
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return c.stocks.Confirm(ctx, p.OrderID)

	case event.TypePaymentFailed:
		var p event.PaymentFailed
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return c.stocks.Release(ctx, p.OrderID)

	case event.TypeRefundSucceeded:
		var p event.RefundSucceeded
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return c.stocks.Release(ctx, p.OrderID)
	}
	return nil
}
