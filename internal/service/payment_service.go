package service

import (
	"context"
	"errors"
	"time"

	"checkout/internal/event"
	"checkout/internal/gateway"
	"checkout/internal/model"
	"checkout/internal/monitor"
	"checkout/internal/repository"
	"checkout/pkg/log"
	"checkout/pkg/utils"
)

// PaymentService payment capture, refund, and reconciliation
type PaymentService interface {
	// HandleOrderCreated captures payment for a validated order and
	// emits PAYMENT_COMPLETED or PAYMENT_FAILED. A gateway timeout
	// leaves the payment READY for the reconciler.
	HandleOrderCreated(ctx context.Context, ev event.OrderCreated, traceID string) error

	// Refund cancels a captured payment and emits REFUND_SUCCEEDED
	Refund(ctx context.Context, orderID string) error

	// Reconcile resolves READY payments older than the cutoff by asking
	// the gateway what actually happened
	Reconcile(ctx context.Context, olderThan time.Duration) (int, error)

	// RunReconciler runs Reconcile on a ticker until the context ends
	RunReconciler(ctx context.Context, interval, olderThan time.Duration)

	// GetPayment fetches the payment record of an order
	GetPayment(ctx context.Context, orderID string) (*model.Payment, error)
}

// OrderValidator the order participant's read-only validation query
type OrderValidator interface {
	Validate(ctx context.Context, orderID string) (*OrderValidation, error)
}

// paymentService payment service implementation
type paymentService struct {
	paymentRepo repository.PaymentRepository
	gw          gateway.PaymentGateway
	validator   OrderValidator
	publisher   *event.Publisher
	metrics     *monitor.MetricsCollector
}

// NewPaymentService creates a payment service
func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	gw gateway.PaymentGateway,
	validator OrderValidator,
	publisher *event.Publisher,
	metrics *monitor.MetricsCollector,
) PaymentService {
	return &paymentService{
		paymentRepo: paymentRepo,
		gw:          gw,
		validator:   validator,
		publisher:   publisher,
		metrics:     metrics,
	}
}

// HandleOrderCreated captures payment for a validated order
func (s *paymentService) HandleOrderCreated(ctx context.Context, ev event.OrderCreated, traceID string) error {
	payment, err := s.paymentRepo.GetByOrderID(ctx, ev.OrderID)
	if err != nil {
		if !errors.Is(err, utils.ErrPaymentNotFound) {
			return utils.WrapError(err, utils.CodeDatabaseError, "failed to load payment")
		}
		payment = &model.Payment{
			OrderID: ev.OrderID,
			UserID:  ev.UserID,
			Amount:  ev.Amount,
			Status:  model.PaymentStatusReady,
		}
		if err := s.paymentRepo.Create(ctx, payment); err != nil {
			return utils.WrapError(err, utils.CodeDatabaseError, "failed to create payment")
		}
	}

	if !payment.IsReady() {
		// Redelivery after the payment already resolved.
		return nil
	}

	// Cross-check the event against the order participant's own record.
	// A forged or stale event must never reach the gateway.
	check, err := s.validator.Validate(ctx, ev.OrderID)
	if err != nil {
		if errors.Is(err, utils.ErrOrderNotFound) {
			return s.failValidationMismatch(ctx, ev, "order does not exist", traceID)
		}
		return utils.WrapError(err, utils.CodeDatabaseError, "failed to validate order")
	}
	if check.Amount != ev.Amount {
		log.WithFields(map[string]interface{}{
			"order_id":     ev.OrderID,
			"event_amount": ev.Amount,
			"order_amount": check.Amount,
		}).Error("Order amount mismatch")
		return s.failValidationMismatch(ctx, ev, "amount mismatch", traceID)
	}
	if check.Status != model.OrderStatusValidated {
		log.WithFields(map[string]interface{}{
			"order_id": ev.OrderID,
			"status":   check.Status,
		}).Error("Payment requested for an order that is not awaiting payment")
		return s.failValidationMismatch(ctx, ev, "order not awaiting payment", traceID)
	}

	result, err := s.gw.Capture(ctx, ev.OrderID, ev.Amount)
	if err != nil {
		if errors.Is(err, gateway.ErrGatewayTimeout) {
			// Outcome unknown. The payment stays READY and the
			// reconciler settles it from the gateway's records.
			s.metrics.RecordPaymentCapture("timeout")
			log.WithField("order_id", ev.OrderID).Warn("Payment capture timed out, deferred to reconciler")
			return nil
		}
		s.metrics.RecordPaymentCapture("error")
		return err
	}

	if result.Success {
		return s.settlePaid(ctx, ev.OrderID, ev.UserID, result.PaymentKey, ev.Amount, traceID)
	}
	return s.settleFailed(ctx, ev.OrderID, ev.UserID, declineReason(result.Reason), traceID)
}

// declineReason falls back to the generic decline message when the
// provider gave none
func declineReason(reason string) string {
	if reason == "" {
		return utils.ErrPaymentDeclined.Message
	}
	return reason
}

// failValidationMismatch fails the payment without a gateway call and
// surfaces the inconsistency for manual inspection. The PAYMENT_FAILED
// event still goes out so the stock hold and cart unwind.
func (s *paymentService) failValidationMismatch(ctx context.Context, ev event.OrderCreated, reason, traceID string) error {
	s.metrics.RecordPaymentCapture("mismatch")
	if err := s.settleFailed(ctx, ev.OrderID, ev.UserID, "validation mismatch: "+reason, traceID); err != nil {
		return err
	}
	return utils.ErrValidationMismatch
}

// settlePaid moves READY to PAID and emits PAYMENT_COMPLETED. The
// guarded update makes sure only one of a racing handler and reconciler
// emits the event.
func (s *paymentService) settlePaid(ctx context.Context, orderID string, userID uint64, paymentKey string, amount int64, traceID string) error {
	moved, err := s.paymentRepo.UpdateStatusIf(ctx, orderID, model.PaymentStatusReady, model.PaymentStatusPaid,
		map[string]interface{}{"payment_key": paymentKey})
	if err != nil {
		return utils.WrapError(err, utils.CodeDatabaseError, "failed to record capture")
	}
	if moved == 0 {
		return nil
	}

	s.metrics.RecordPaymentCapture("paid")

	payload := event.PaymentCompleted{
		OrderID:    orderID,
		UserID:     userID,
		PaymentKey: paymentKey,
		Amount:     amount,
	}
	if _, err := s.publisher.Publish(ctx, event.TypePaymentCompleted, event.AggregatePayment, orderID, traceID, payload); err != nil {
		return utils.WrapError(err, utils.CodeQueueError, "failed to publish payment event")
	}

	log.WithFields(map[string]interface{}{
		"order_id":    orderID,
		"payment_key": paymentKey,
		"amount":      amount,
	}).Info("Payment captured")
	return nil
}

// settleFailed moves READY to FAILED and emits PAYMENT_FAILED
func (s *paymentService) settleFailed(ctx context.Context, orderID string, userID uint64, reason, traceID string) error {
	moved, err := s.paymentRepo.UpdateStatusIf(ctx, orderID, model.PaymentStatusReady, model.PaymentStatusFailed,
		map[string]interface{}{"fail_reason": reason})
	if err != nil {
		return utils.WrapError(err, utils.CodeDatabaseError, "failed to record decline")
	}
	if moved == 0 {
		return nil
	}

	s.metrics.RecordPaymentCapture("failed")

	payload := event.PaymentFailed{
		OrderID: orderID,
		UserID:  userID,
		Reason:  reason,
	}
	if _, err := s.publisher.Publish(ctx, event.TypePaymentFailed, event.AggregatePayment, orderID, traceID, payload); err != nil {
		return utils.WrapError(err, utils.CodeQueueError, "failed to publish payment event")
	}

	log.WithFields(map[string]interface{}{
		"order_id": orderID,
		"reason":   reason,
	}).Info("Payment failed")
	return nil
}

// Refund cancels a captured payment and emits REFUND_SUCCEEDED
func (s *paymentService) Refund(ctx context.Context, orderID string) error {
	payment, err := s.paymentRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}

	if payment.Status == model.PaymentStatusCancelled {
		return nil
	}
	if !payment.IsPaid() {
		return utils.ErrIllegalTransition
	}

	if err := s.gw.Cancel(ctx, payment.PaymentKey, payment.Amount); err != nil {
		return err
	}

	moved, err := s.paymentRepo.UpdateStatusIf(ctx, orderID, model.PaymentStatusPaid, model.PaymentStatusCancelled, nil)
	if err != nil {
		return utils.WrapError(err, utils.CodeDatabaseError, "failed to record refund")
	}
	if moved == 0 {
		return nil
	}

	s.metrics.RecordRefund()
	s.metrics.RecordCompensation("refund")

	payload := event.RefundSucceeded{
		OrderID:      orderID,
		UserID:       payment.UserID,
		PaymentKey:   payment.PaymentKey,
		CancelAmount: payment.Amount,
	}
	if _, err := s.publisher.Publish(ctx, event.TypeRefundSucceeded, event.AggregatePayment, orderID, "", payload); err != nil {
		return utils.WrapError(err, utils.CodeQueueError, "failed to publish refund event")
	}

	log.WithFields(map[string]interface{}{
		"order_id":      orderID,
		"payment_key":   payment.PaymentKey,
		"cancel_amount": payment.Amount,
	}).Info("Refund succeeded")
	return nil
}

// Reconcile settles READY payments from the gateway's records
func (s *paymentService) Reconcile(ctx context.Context, olderThan time.Duration) (int, error) {
	stuck, err := s.paymentRepo.ListStuckReady(ctx, time.Now().Add(-olderThan), 100)
	if err != nil {
		return 0, utils.WrapError(err, utils.CodeDatabaseError, "failed to list stuck payments")
	}

	resolved := 0
	for _, payment := range stuck {
		result, err := s.gw.Status(ctx, payment.OrderID)
		if errors.Is(err, gateway.ErrNoCharge) {
			// The gateway definitively has no record, so the charge
			// never went through. Fail the payment and unwind the saga.
			if err := s.settleFailed(ctx, payment.OrderID, payment.UserID, utils.ErrCheckoutTimeout.Message, ""); err != nil {
				log.WithError(err).WithField("order_id", payment.OrderID).Error("Failed to settle stuck payment")
				continue
			}
			resolved++
			continue
		}
		if err != nil {
			// The query itself failed; the charge may well exist. Leave
			// the payment READY and let the next pass ask again.
			log.WithError(err).WithField("order_id", payment.OrderID).Warn("Gateway status query failed, payment left for next pass")
			continue
		}

		if result.Success {
			err = s.settlePaid(ctx, payment.OrderID, payment.UserID, result.PaymentKey, payment.Amount, "")
		} else {
			err = s.settleFailed(ctx, payment.OrderID, payment.UserID, declineReason(result.Reason), "")
		}
		if err != nil {
			log.WithError(err).WithField("order_id", payment.OrderID).Error("Failed to settle stuck payment")
			continue
		}
		resolved++
	}
	return resolved, nil
}

// RunReconciler runs Reconcile on a ticker until the context ends
func (s *paymentService) RunReconciler(ctx context.Context, interval, olderThan time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Reconcile(ctx, olderThan); err != nil {
				log.WithError(err).Error("Payment reconciliation failed")
			} else if n > 0 {
				log.WithField("count", n).Info("Reconciled stuck payments")
			}
		}
	}
}

// GetPayment fetches the payment record of an order
func (s *paymentService) GetPayment(ctx context.Context, orderID string) (*model.Payment, error) {
	return s.paymentRepo.GetByOrderID(ctx, orderID)
}
