package service

import (
	"context"

	"checkout/internal/event"
	"checkout/internal/model"
	"checkout/internal/monitor"
	"checkout/internal/repository"
	"checkout/pkg/log"
	"checkout/pkg/utils"
)

// OrderService order lifecycle along the saga
type OrderService interface {
	// CreateFromReservation creates the order from a priced
	// reservation, validates it, and emits ORDER_CREATED. A validation
	// failure emits PAYMENT_FAILED instead, so the hold unwinds.
	CreateFromReservation(ctx context.Context, ev event.StockReserved, traceID string) error

	// MarkPaid moves the order to PAID exactly once
	MarkPaid(ctx context.Context, orderID string) error

	// MarkFailed moves the order to FAILED from any pre-payment status
	MarkFailed(ctx context.Context, orderID, reason string) error

	// MarkCancelled moves a paid order to CANCELLED after refund
	MarkCancelled(ctx context.Context, orderID string) error

	// Validate returns the payable amount and status of an order for
	// the payment participant to cross-check before capturing funds
	Validate(ctx context.Context, orderID string) (*OrderValidation, error)

	// GetOrder fetches one order
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)

	// ListUserOrders lists a user's orders, newest first
	ListUserOrders(ctx context.Context, userID uint64, page, pageSize int) ([]*model.Order, int64, error)
}

// OrderValidation read-only answer to the payment cross-check
type OrderValidation struct {
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
	Status  string `json:"status"`
}

// orderService order service implementation
type orderService struct {
	orderRepo repository.OrderRepository
	publisher *event.Publisher
	metrics   *monitor.MetricsCollector
}

// NewOrderService creates an order service
func NewOrderService(
	orderRepo repository.OrderRepository,
	publisher *event.Publisher,
	metrics *monitor.MetricsCollector,
) OrderService {
	return &orderService{
		orderRepo: orderRepo,
		publisher: publisher,
		metrics:   metrics,
	}
}

// CreateFromReservation creates and validates the order
func (s *orderService) CreateFromReservation(ctx context.Context, ev event.StockReserved, traceID string) error {
	if existing, err := s.orderRepo.GetByOrderID(ctx, ev.OrderID); err == nil && existing != nil {
		// Redelivered reservation; the order already exists.
		return nil
	}

	var amount int64
	for _, item := range ev.Items {
		amount += int64(item.Quantity) * item.UnitPrice
	}

	order := &model.Order{
		OrderID: ev.OrderID,
		UserID:  ev.UserID,
		Amount:  amount,
		Status:  model.OrderStatusCreated,
		TraceID: traceID,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return utils.WrapError(err, utils.CodeDatabaseError, "failed to create order")
	}

	if amount < 0 {
		return s.failValidation(ctx, ev, utils.ErrNonPositiveAmount.Message, traceID)
	}

	if _, err := s.orderRepo.UpdateStatusIf(ctx, ev.OrderID, model.OrderStatusCreated, model.OrderStatusValidated); err != nil {
		return utils.WrapError(err, utils.CodeDatabaseError, "failed to validate order")
	}

	payload := event.OrderCreated{
		OrderID: ev.OrderID,
		UserID:  ev.UserID,
		Amount:  amount,
	}
	if _, err := s.publisher.Publish(ctx, event.TypeOrderCreated, event.AggregateOrder, ev.OrderID, traceID, payload); err != nil {
		return utils.WrapError(err, utils.CodeQueueError, "failed to publish order event")
	}

	log.WithFields(map[string]interface{}{
		"order_id": ev.OrderID,
		"user_id":  ev.UserID,
		"amount":   amount,
	}).Info("Order created")
	return nil
}

func (s *orderService) failValidation(ctx context.Context, ev event.StockReserved, reason, traceID string) error {
	if err := s.MarkFailed(ctx, ev.OrderID, reason); err != nil {
		return err
	}

	payload := event.PaymentFailed{
		OrderID: ev.OrderID,
		UserID:  ev.UserID,
		Reason:  reason,
	}
	if _, err := s.publisher.Publish(ctx, event.TypePaymentFailed, event.AggregatePayment, ev.OrderID, traceID, payload); err != nil {
		return utils.WrapError(err, utils.CodeQueueError, "failed to publish validation failure")
	}
	return nil
}

// MarkPaid moves the order to PAID exactly once
func (s *orderService) MarkPaid(ctx context.Context, orderID string) error {
	moved, err := s.orderRepo.UpdateStatusIf(ctx, orderID, model.OrderStatusValidated, model.OrderStatusPaid)
	if err != nil {
		return utils.WrapError(err, utils.CodeDatabaseError, "failed to mark order paid")
	}
	if moved == 0 {
		order, err := s.orderRepo.GetByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.IsPaid() {
			// A racing writer got there first; the outcome stands.
			return nil
		}
		log.WithFields(map[string]interface{}{
			"order_id": orderID,
			"status":   order.Status,
		}).Error("Illegal transition to PAID")
		return utils.ErrIllegalTransition
	}
	return nil
}

// MarkFailed moves the order to FAILED from any pre-payment status
func (s *orderService) MarkFailed(ctx context.Context, orderID, reason string) error {
	for _, from := range []string{model.OrderStatusCreated, model.OrderStatusValidated} {
		moved, err := s.orderRepo.UpdateStatusIf(ctx, orderID, from, model.OrderStatusFailed)
		if err != nil {
			return utils.WrapError(err, utils.CodeDatabaseError, "failed to mark order failed")
		}
		if moved > 0 {
			log.WithFields(map[string]interface{}{
				"order_id": orderID,
				"reason":   reason,
			}).Info("Order failed")
			return nil
		}
	}
	// Already FAILED, or never created because stock rejected first.
	return nil
}

// MarkCancelled moves a paid order to CANCELLED after refund
func (s *orderService) MarkCancelled(ctx context.Context, orderID string) error {
	moved, err := s.orderRepo.UpdateStatusIf(ctx, orderID, model.OrderStatusPaid, model.OrderStatusCancelled)
	if err != nil {
		return utils.WrapError(err, utils.CodeDatabaseError, "failed to cancel order")
	}
	if moved == 0 {
		order, err := s.orderRepo.GetByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == model.OrderStatusCancelled {
			return nil
		}
		return utils.ErrIllegalTransition
	}
	return nil
}

// Validate returns the payable amount and status of an order
func (s *orderService) Validate(ctx context.Context, orderID string) (*OrderValidation, error) {
	order, err := s.orderRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderValidation{
		OrderID: order.OrderID,
		Amount:  order.Amount,
		Status:  order.Status,
	}, nil
}

// GetOrder fetches one order
func (s *orderService) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return s.orderRepo.GetByOrderID(ctx, orderID)
}

// ListUserOrders lists a user's orders, newest first
func (s *orderService) ListUserOrders(ctx context.Context, userID uint64, page, pageSize int) ([]*model.Order, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.orderRepo.ListUserOrders(ctx, userID, page, pageSize)
}
