package service

import (
	"context"
	"fmt"

	"checkout/internal/event"
	"checkout/internal/gateway"
	"checkout/internal/model"
	"checkout/internal/monitor"
	"checkout/internal/repository"
	"checkout/pkg/log"
	"checkout/pkg/snowflake"
	"checkout/pkg/utils"
)

// CartService cart operations and the checkout entry point of the saga
type CartService interface {
	// AddItem adds a line, incrementing quantity on repeat adds
	AddItem(ctx context.Context, userID, productID, variantID uint64, quantity int) error

	// UpdateItem overwrites the quantity of an active line
	UpdateItem(ctx context.Context, userID, productID, variantID uint64, quantity int) error

	// RemoveItem removes an active line
	RemoveItem(ctx context.Context, userID, productID, variantID uint64) error

	// ListItems lists the user's cart
	ListItems(ctx context.Context, userID uint64) ([]*model.CartItem, error)

	// Checkout freezes the selected lines and starts the saga. Lines
	// that are missing or already pending are skipped; an empty
	// effective selection is rejected.
	Checkout(ctx context.Context, userID uint64, selections []model.CartItem, traceID string) (string, error)

	// CompleteCheckout drops the frozen lines after payment succeeded
	CompleteCheckout(ctx context.Context, orderID string) error

	// AbortCheckout returns the frozen lines to the cart
	AbortCheckout(ctx context.Context, orderID string) error
}

// cartService cart service implementation
type cartService struct {
	cartRepo  repository.CartRepository
	catalog   gateway.Catalog
	publisher *event.Publisher
	idGen     *snowflake.IDGenerator
	metrics   *monitor.MetricsCollector
}

// NewCartService creates a cart service
func NewCartService(
	cartRepo repository.CartRepository,
	catalog gateway.Catalog,
	publisher *event.Publisher,
	idGen *snowflake.IDGenerator,
	metrics *monitor.MetricsCollector,
) CartService {
	return &cartService{
		cartRepo:  cartRepo,
		catalog:   catalog,
		publisher: publisher,
		idGen:     idGen,
		metrics:   metrics,
	}
}

// AddItem adds a line after checking the variant exists
func (s *cartService) AddItem(ctx context.Context, userID, productID, variantID uint64, quantity int) error {
	if quantity <= 0 {
		return utils.ErrInvalidParam
	}

	if _, err := s.catalog.GetVariant(ctx, productID, variantID); err != nil {
		return err
	}

	return s.cartRepo.AddItem(ctx, &model.CartItem{
		UserID:    userID,
		ProductID: productID,
		VariantID: variantID,
		Quantity:  quantity,
		Status:    model.CartItemStatusActive,
	})
}

// UpdateItem overwrites the quantity of an active line
func (s *cartService) UpdateItem(ctx context.Context, userID, productID, variantID uint64, quantity int) error {
	if quantity <= 0 {
		return utils.ErrInvalidParam
	}
	return s.cartRepo.UpdateQuantity(ctx, userID, productID, variantID, quantity)
}

// RemoveItem removes an active line
func (s *cartService) RemoveItem(ctx context.Context, userID, productID, variantID uint64) error {
	return s.cartRepo.RemoveItem(ctx, userID, productID, variantID)
}

// ListItems lists the user's cart
func (s *cartService) ListItems(ctx context.Context, userID uint64) ([]*model.CartItem, error) {
	return s.cartRepo.ListByUser(ctx, userID)
}

// Checkout starts the saga for the user's selection
func (s *cartService) Checkout(ctx context.Context, userID uint64, selections []model.CartItem, traceID string) (string, error) {
	if len(selections) == 0 {
		s.metrics.RecordCheckoutRequest("rejected")
		return "", utils.ErrEmptyCheckoutSelection
	}

	items, err := s.cartRepo.GetActiveItems(ctx, userID, selections)
	if err != nil {
		s.metrics.RecordCheckoutRequest("error")
		return "", utils.WrapError(err, utils.CodeDatabaseError, "failed to load cart items")
	}
	if len(items) == 0 {
		s.metrics.RecordCheckoutRequest("rejected")
		return "", utils.ErrEmptyCheckoutSelection
	}

	orderID := fmt.Sprintf("ORD%d", s.idGen.NextID())

	itemIDs := make([]uint64, 0, len(items))
	lines := make([]event.LineItem, 0, len(items))
	for _, item := range items {
		itemIDs = append(itemIDs, item.ID)
		lines = append(lines, event.LineItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}

	if err := s.cartRepo.MarkPending(ctx, userID, orderID, itemIDs); err != nil {
		s.metrics.RecordCheckoutRequest("error")
		return "", utils.WrapError(err, utils.CodeDatabaseError, "failed to freeze cart items")
	}

	payload := event.CartCheckoutRequested{
		UserID:  userID,
		OrderID: orderID,
		Items:   lines,
	}
	if _, err := s.publisher.Publish(ctx, event.TypeCartCheckoutRequested, event.AggregateCart, orderID, traceID, payload); err != nil {
		// Unfreeze so the user can retry; the saga never started.
		if restoreErr := s.cartRepo.RestorePending(ctx, orderID); restoreErr != nil {
			log.WithError(restoreErr).WithField("order_id", orderID).Error("Failed to restore cart after publish failure")
		}
		s.metrics.RecordCheckoutRequest("error")
		return "", utils.WrapError(err, utils.CodeQueueError, "failed to publish checkout event")
	}

	s.metrics.RecordCheckoutRequest("accepted")
	log.WithFields(map[string]interface{}{
		"order_id": orderID,
		"user_id":  userID,
		"items":    len(lines),
	}).Info("Checkout started")

	return orderID, nil
}

// CompleteCheckout drops the frozen lines after payment succeeded
func (s *cartService) CompleteCheckout(ctx context.Context, orderID string) error {
	return s.cartRepo.ClearPending(ctx, orderID)
}

// AbortCheckout returns the frozen lines to the cart
func (s *cartService) AbortCheckout(ctx context.Context, orderID string) error {
	s.metrics.RecordCompensation("cart_restore")
	return s.cartRepo.RestorePending(ctx, orderID)
}
