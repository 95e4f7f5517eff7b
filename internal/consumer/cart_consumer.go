package consumer

import (
	"context"

	"checkout/internal/event"
	"checkout/internal/service"
	"checkout/pkg/queue"
)

// CartGroup consumer group of the cart participant
const CartGroup = "cart-service"

// CartConsumer applies saga outcomes to the cart: a completed payment
// empties the frozen lines, any failure puts them back.
type CartConsumer struct {
	dispatcher *Dispatcher
	carts      service.CartService
}

// NewCartConsumer creates a cart consumer
func NewCartConsumer(dispatcher *Dispatcher, carts service.CartService) *CartConsumer {
	return &CartConsumer{
		dispatcher: dispatcher,
		carts:      carts,
	}
}

// Start subscribes the consumer on the bus
func (c *CartConsumer) Start(ctx context.Context, bus queue.Bus, topic string) error {
	return bus.Subscribe(ctx, topic, CartGroup, c.dispatcher.Wrap(c.handle))
}

func (c *CartConsumer) handle(ctx context.Context, env *event.Envelope) error {
	switch env.EventType {
	case event.TypePaymentCompleted:
		var p event.PaymentCompleted
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return c.carts.CompleteCheckout(ctx, p.OrderID)

	case event.TypeStockRejected:
		var p event.StockRejected
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return c.carts.AbortCheckout(ctx, p.OrderID)

	case event.TypePaymentFailed:
		var p event.PaymentFailed
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return c.carts.AbortCheckout(ctx, p.OrderID)
	}
	return nil
}
