package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"checkout/internal/model"
	"checkout/pkg/utils"
)

// OrderRepository order repository interface
type OrderRepository interface {
	// Create order
	Create(ctx context.Context, order *model.Order) error

	// Get order by order ID
	GetByOrderID(ctx context.Context, orderID string) (*model.Order, error)

	// Update order status unconditionally
	UpdateStatus(ctx context.Context, orderID, status string) error

	// Update order status only if the current status matches. Returns
	// the number of rows moved, so racing writers can detect a loss.
	UpdateStatusIf(ctx context.Context, orderID, from, to string) (int64, error)

	// List user orders
	ListUserOrders(ctx context.Context, userID uint64, page, pageSize int) ([]*model.Order, int64, error)
}

// orderRepository order repository implementation
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates an order repository
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create creates an order
func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// GetByOrderID gets an order by order ID
func (r *orderRepository) GetByOrderID(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// UpdateStatus updates order status
func (r *orderRepository) UpdateStatus(ctx context.Context, orderID, status string) error {
	updates := map[string]interface{}{
		"status": status,
	}
	if status == model.OrderStatusPaid {
		now := time.Now()
		updates["paid_at"] = &now
	}

	return r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_id = ?", orderID).
		Updates(updates).Error
}

// UpdateStatusIf moves the order from one status to another atomically
func (r *orderRepository) UpdateStatusIf(ctx context.Context, orderID, from, to string) (int64, error) {
	updates := map[string]interface{}{
		"status": to,
	}
	if to == model.OrderStatusPaid {
		now := time.Now()
		updates["paid_at"] = &now
	}

	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_id = ? AND status = ?", orderID, from).
		Updates(updates)

	return result.RowsAffected, result.Error
}

// ListUserOrders lists user orders
func (r *orderRepository) ListUserOrders(ctx context.Context, userID uint64, page, pageSize int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	offset := (page - 1) * pageSize

	db := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("user_id = ?", userID)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Offset(offset).
		Limit(pageSize).
		Order("created_at DESC").
		Find(&orders).Error

	return orders, total, err
}
