package consumer

import (
	"context"

	"checkout/internal/event"
	"checkout/internal/service"
	"checkout/pkg/queue"
)

// OrderGroup consumer group of the order participant
const OrderGroup = "order-service"

// OrderConsumer owns the order lifecycle: it creates the order from a
// priced reservation and moves it along as payment events arrive.
type OrderConsumer struct {
	dispatcher *Dispatcher
	orders     service.OrderService
}

// NewOrderConsumer creates an order consumer
func NewOrderConsumer(dispatcher *Dispatcher, orders service.OrderService) *OrderConsumer {
	return &OrderConsumer{
		dispatcher: dispatcher,
		orders:     orders,
	}
}

// Start subscribes the consumer on the bus
func (c *OrderConsumer) Start(ctx context.Context, bus queue.Bus, topic string) error {
	return bus.Subscribe(ctx, topic, OrderGroup, c.dispatcher.Wrap(c.handle))
}

func (c *OrderConsumer) handle(ctx context.Context, env *event.Envelope) error {
	switch env.EventType {
	case event.TypeStockReserved:
		var p event.StockReserved
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return c.orders.CreateFromReservation(ctx, p, env.TraceID)

	case event.TypePaymentCompleted:
		var p event.PaymentCompleted
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return c.orders.MarkPaid(ctx, p.OrderID)

	case event.TypePaymentFailed:
		var p event.PaymentFailed
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return c.orders.MarkFailed(ctx, p.OrderID, p.Reason)

	case event.TypeRefundSucceeded:
		var p event.RefundSucceeded
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return c.orders.MarkCancelled(ctx, p.OrderID)
	}
	return nil
}
