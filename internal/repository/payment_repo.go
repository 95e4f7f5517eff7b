package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"checkout/internal/model"
	"checkout/pkg/utils"
)

// PaymentRepository payment repository interface
type PaymentRepository interface {
	// Create payment record
	Create(ctx context.Context, payment *model.Payment) error

	// Get payment by order ID
	GetByOrderID(ctx context.Context, orderID string) (*model.Payment, error)

	// Move the payment from one status to another atomically, recording
	// the capture key or failure reason alongside. Returns rows moved.
	UpdateStatusIf(ctx context.Context, orderID, from, to string, fields map[string]interface{}) (int64, error)

	// List READY payments last touched before the cutoff
	ListStuckReady(ctx context.Context, cutoff time.Time, limit int) ([]*model.Payment, error)
}

// paymentRepository payment repository implementation
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a payment repository
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// Create creates a payment record
func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

// GetByOrderID gets a payment by order ID
func (r *paymentRepository) GetByOrderID(ctx context.Context, orderID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&payment).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// UpdateStatusIf moves the payment between statuses atomically
func (r *paymentRepository) UpdateStatusIf(ctx context.Context, orderID, from, to string, fields map[string]interface{}) (int64, error) {
	updates := map[string]interface{}{
		"status": to,
	}
	for k, v := range fields {
		updates[k] = v
	}
	if to == model.PaymentStatusPaid {
		now := time.Now()
		updates["captured_at"] = &now
	}

	result := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("order_id = ? AND status = ?", orderID, from).
		Updates(updates)

	return result.RowsAffected, result.Error
}

// ListStuckReady lists READY payments last touched before the cutoff
func (r *paymentRepository) ListStuckReady(ctx context.Context, cutoff time.Time, limit int) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.PaymentStatusReady, cutoff).
		Limit(limit).
		Find(&payments).Error
	return payments, err
}
