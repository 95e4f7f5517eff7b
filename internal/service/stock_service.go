package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"checkout/internal/event"
	"checkout/internal/model"
	"checkout/internal/monitor"
	"checkout/internal/repository"
	"checkout/pkg/lock"
	"checkout/pkg/log"
	"checkout/pkg/utils"
)

// StockService stock reservation and its compensation
type StockService interface {
	// Reserve holds stock for every requested line, or nothing. Emits
	// STOCK_RESERVED with price snapshots, or STOCK_REJECTED naming the
	// first line that could not be held.
	Reserve(ctx context.Context, req event.CartCheckoutRequested, traceID string) error

	// Release returns a reservation's quantities to stock. Safe to call
	// any number of times per order.
	Release(ctx context.Context, orderID string) error

	// Confirm finalizes a reservation after payment
	Confirm(ctx context.Context, orderID string) error

	// SweepExpired releases reservations past their hold deadline and
	// emits the failure event that unwinds the rest of the saga
	SweepExpired(ctx context.Context) (int, error)

	// RunSweeper runs SweepExpired on a ticker until the context ends
	RunSweeper(ctx context.Context, interval time.Duration)
}

// stockService stock service implementation
type stockService struct {
	stockRepo      repository.StockRepository
	redisClient    redis.Cmdable
	publisher      *event.Publisher
	metrics        *monitor.MetricsCollector
	reservationTTL time.Duration
	lockTTL        time.Duration
	producer       string
}

// NewStockService creates a stock service
func NewStockService(
	stockRepo repository.StockRepository,
	redisClient redis.Cmdable,
	publisher *event.Publisher,
	metrics *monitor.MetricsCollector,
	reservationTTL, lockTTL time.Duration,
	producer string,
) StockService {
	return &stockService{
		stockRepo:      stockRepo,
		redisClient:    redisClient,
		publisher:      publisher,
		metrics:        metrics,
		reservationTTL: reservationTTL,
		lockTTL:        lockTTL,
		producer:       producer,
	}
}

// rejection names the first line that sank a reservation batch
type rejection struct {
	productID uint64
	variantID uint64
	reason    string
}

// Reserve holds stock for every requested line, or nothing
func (s *stockService) Reserve(ctx context.Context, req event.CartCheckoutRequested, traceID string) error {
	if existing, err := s.stockRepo.GetReservation(ctx, req.OrderID); err != nil {
		return utils.WrapError(err, utils.CodeDatabaseError, "failed to check reservation")
	} else if existing != nil {
		// Redelivered request; the first delivery already decided.
		return nil
	}

	priced, rejected, err := s.hold(ctx, req)
	if err != nil {
		return err
	}
	if rejected != nil {
		return s.reject(ctx, req, rejected.productID, rejected.variantID, rejected.reason, traceID)
	}

	s.metrics.RecordStockReservation("reserved")

	payload := event.StockReserved{
		OrderID: req.OrderID,
		UserID:  req.UserID,
		Items:   priced,
	}
	if _, err := s.publisher.Publish(ctx, event.TypeStockReserved, event.AggregateStock, req.OrderID, traceID, payload); err != nil {
		return utils.WrapError(err, utils.CodeQueueError, "failed to publish reservation event")
	}
	return nil
}

// hold prices and decrements the batch under the variant locks. The
// locks are released before any event goes out.
func (s *stockService) hold(ctx context.Context, req event.CartCheckoutRequested) ([]event.PricedItem, *rejection, error) {
	// Variant locks are taken in sorted order so two overlapping
	// checkouts can never deadlock.
	keys := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		keys = append(keys, fmt.Sprintf("lock:stock:%d:%d", item.ProductID, item.VariantID))
	}
	sort.Strings(keys)

	multiLock := lock.NewMultiLock(s.redisClient, keys, req.OrderID, s.lockTTL)
	if err := multiLock.Lock(ctx, 3, 50*time.Millisecond); err != nil {
		return nil, nil, utils.WrapError(err, utils.CodeRedisError, "failed to lock stock")
	}
	defer func() {
		if err := multiLock.Unlock(context.Background()); err != nil {
			log.WithError(err).Warn("Failed to release stock locks")
		}
	}()

	reservation := &model.StockReservation{
		OrderID:  req.OrderID,
		UserID:   req.UserID,
		Status:   model.ReservationStatusReserved,
		ExpireAt: time.Now().Add(s.reservationTTL),
	}

	priced := make([]event.PricedItem, 0, len(req.Items))
	for _, item := range req.Items {
		stock, err := s.stockRepo.GetStock(ctx, item.ProductID, item.VariantID)
		if err != nil {
			if errors.Is(err, utils.ErrStockNotEnough) {
				return nil, &rejection{item.ProductID, item.VariantID, "unknown product variant"}, nil
			}
			return nil, nil, utils.WrapError(err, utils.CodeDatabaseError, "failed to load stock")
		}

		reservation.Items = append(reservation.Items, model.ReservationItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: stock.UnitPrice,
		})
		priced = append(priced, event.PricedItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: stock.UnitPrice,
		})
	}

	if err := s.stockRepo.Reserve(ctx, reservation); err != nil {
		var short *repository.StockShortError
		if errors.As(err, &short) {
			return nil, &rejection{short.ProductID, short.VariantID, utils.ErrStockNotEnough.Message}, nil
		}
		if errors.Is(err, utils.ErrStockNotEnough) {
			first := req.Items[0]
			return nil, &rejection{first.ProductID, first.VariantID, utils.ErrStockNotEnough.Message}, nil
		}
		return nil, nil, utils.WrapError(err, utils.CodeDatabaseError, "failed to reserve stock")
	}

	return priced, nil, nil
}

func (s *stockService) reject(ctx context.Context, req event.CartCheckoutRequested, productID, variantID uint64, reason, traceID string) error {
	s.metrics.RecordStockReservation("rejected")

	payload := event.StockRejected{
		OrderID:   req.OrderID,
		UserID:    req.UserID,
		ProductID: productID,
		VariantID: variantID,
		Reason:    reason,
	}
	if _, err := s.publisher.Publish(ctx, event.TypeStockRejected, event.AggregateStock, req.OrderID, traceID, payload); err != nil {
		return utils.WrapError(err, utils.CodeQueueError, "failed to publish rejection event")
	}

	log.WithFields(map[string]interface{}{
		"order_id":   req.OrderID,
		"product_id": productID,
		"variant_id": variantID,
		"reason":     reason,
	}).Info("Stock reservation rejected")
	return nil
}

// Release returns a reservation's quantities to stock
func (s *stockService) Release(ctx context.Context, orderID string) error {
	released, err := s.stockRepo.Release(ctx, orderID)
	if err != nil {
		return utils.WrapError(err, utils.CodeDatabaseError, "failed to release reservation")
	}
	if released {
		s.metrics.RecordCompensation("stock_release")
		log.WithField("order_id", orderID).Info("Stock reservation released")
	}
	return nil
}

// Confirm finalizes a reservation after payment
func (s *stockService) Confirm(ctx context.Context, orderID string) error {
	confirmed, err := s.stockRepo.Confirm(ctx, orderID)
	if err != nil {
		return utils.WrapError(err, utils.CodeDatabaseError, "failed to confirm reservation")
	}
	if !confirmed {
		// Payment landed after the hold was already released. The money
		// side is consistent; the stock side needs an operator.
		log.WithField("order_id", orderID).Error("Payment completed for a reservation that is no longer held")
	}
	return nil
}

// SweepExpired releases overdue holds and unwinds their sagas
func (s *stockService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.stockRepo.ListExpired(ctx, time.Now(), 100)
	if err != nil {
		return 0, utils.WrapError(err, utils.CodeDatabaseError, "failed to list expired reservations")
	}

	swept := 0
	for _, reservation := range expired {
		released, err := s.stockRepo.Release(ctx, reservation.OrderID)
		if err != nil {
			log.WithError(err).WithField("order_id", reservation.OrderID).Error("Failed to release expired reservation")
			continue
		}
		if !released {
			continue
		}

		s.metrics.RecordCompensation("reservation_expired")

		payload := event.PaymentFailed{
			OrderID: reservation.OrderID,
			UserID:  reservation.UserID,
			Reason:  utils.ErrCheckoutTimeout.Message,
		}
		if _, err := s.publisher.Publish(ctx, event.TypePaymentFailed, event.AggregatePayment, reservation.OrderID, "", payload); err != nil {
			log.WithError(err).WithField("order_id", reservation.OrderID).Error("Failed to publish timeout event")
			continue
		}
		swept++
	}
	return swept, nil
}

// RunSweeper runs SweepExpired on a ticker until the context ends
func (s *stockService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.SweepExpired(ctx); err != nil {
				log.WithError(err).Error("Reservation sweep failed")
			} else if n > 0 {
				log.WithField("count", n).Info("Released expired reservations")
			}
		}
	}
}
