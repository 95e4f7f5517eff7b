package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"checkout/internal/model"
	"checkout/pkg/utils"
)

// StockShortError names the line that sank a reservation batch. It
// unwraps to ErrStockNotEnough so existing errors.Is checks still hold.
type StockShortError struct {
	ProductID uint64
	VariantID uint64
}

func (e *StockShortError) Error() string {
	return fmt.Sprintf("stock not enough for product %d variant %d", e.ProductID, e.VariantID)
}

func (e *StockShortError) Unwrap() error {
	return utils.ErrStockNotEnough
}

// StockRepository stock repository interface
type StockRepository interface {
	// Get on-hand stock for a variant
	GetStock(ctx context.Context, productID, variantID uint64) (*model.Stock, error)

	// Reserve all lines atomically. Either every line is decremented and
	// a reservation row is written, or nothing changes. A short line
	// returns a StockShortError naming it.
	Reserve(ctx context.Context, reservation *model.StockReservation) error

	// Get reservation by order ID
	GetReservation(ctx context.Context, orderID string) (*model.StockReservation, error)

	// Release a reservation and return its quantities to stock. Covers
	// both pre-payment holds and confirmed reservations being refunded.
	// Idempotent: releasing an already released reservation changes
	// nothing.
	Release(ctx context.Context, orderID string) (bool, error)

	// Confirm a reservation after payment. Idempotent the same way.
	Confirm(ctx context.Context, orderID string) (bool, error)

	// List reservations still RESERVED past their hold deadline
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.StockReservation, error)
}

// stockRepository stock repository implementation
type stockRepository struct {
	db *gorm.DB
}

// NewStockRepository creates a stock repository
func NewStockRepository(db *gorm.DB) StockRepository {
	return &stockRepository{db: db}
}

// GetStock gets on-hand stock for a variant
func (r *stockRepository) GetStock(ctx context.Context, productID, variantID uint64) (*model.Stock, error) {
	var stock model.Stock
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND variant_id = ?", productID, variantID).
		First(&stock).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrStockNotEnough
		}
		return nil, err
	}
	return &stock, nil
}

// Reserve decrements every line conditionally inside one transaction
func (r *stockRepository) Reserve(ctx context.Context, reservation *model.StockReservation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range reservation.Items {
			result := tx.Model(&model.Stock{}).
				Where("product_id = ? AND variant_id = ? AND quantity >= ?",
					item.ProductID, item.VariantID, item.Quantity).
				Update("quantity", gorm.Expr("quantity - ?", item.Quantity))

			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return &StockShortError{ProductID: item.ProductID, VariantID: item.VariantID}
			}
		}

		return tx.Create(reservation).Error
	})
}

// GetReservation gets a reservation by order ID
func (r *stockRepository) GetReservation(ctx context.Context, orderID string) (*model.StockReservation, error) {
	var reservation model.StockReservation
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_id = ?", orderID).
		First(&reservation).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

// Release returns quantities to stock and marks the reservation RELEASED
func (r *stockRepository) Release(ctx context.Context, orderID string) (bool, error) {
	released := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.StockReservation{}).
			Where("order_id = ? AND status IN ?", orderID,
				[]string{model.ReservationStatusReserved, model.ReservationStatusConfirmed}).
			Update("status", model.ReservationStatusReleased)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		var reservation model.StockReservation
		if err := tx.Preload("Items").Where("order_id = ?", orderID).First(&reservation).Error; err != nil {
			return err
		}

		for _, item := range reservation.Items {
			if err := tx.Model(&model.Stock{}).
				Where("product_id = ? AND variant_id = ?", item.ProductID, item.VariantID).
				Update("quantity", gorm.Expr("quantity + ?", item.Quantity)).Error; err != nil {
				return err
			}
		}

		released = true
		return nil
	})
	return released, err
}

// Confirm marks the reservation CONFIRMED without touching quantities
func (r *stockRepository) Confirm(ctx context.Context, orderID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.StockReservation{}).
		Where("order_id = ? AND status = ?", orderID, model.ReservationStatusReserved).
		Update("status", model.ReservationStatusConfirmed)

	return result.RowsAffected > 0, result.Error
}

// ListExpired lists reservations still RESERVED past their deadline
func (r *stockRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.StockReservation, error) {
	var reservations []*model.StockReservation
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("status = ? AND expire_at < ?", model.ReservationStatusReserved, now).
		Limit(limit).
		Find(&reservations).Error
	return reservations, err
}
