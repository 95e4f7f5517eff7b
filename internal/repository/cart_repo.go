package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"checkout/internal/model"
	"checkout/pkg/utils"
)

// CartRepository cart repository interface
type CartRepository interface {
	// Upsert a line: insert, or add to the quantity when the same
	// (user, product, variant) already exists
	AddItem(ctx context.Context, item *model.CartItem) error

	// Overwrite the quantity of an existing active line
	UpdateQuantity(ctx context.Context, userID, productID, variantID uint64, quantity int) error

	// Remove a line
	RemoveItem(ctx context.Context, userID, productID, variantID uint64) error

	// List all lines for a user
	ListByUser(ctx context.Context, userID uint64) ([]*model.CartItem, error)

	// Get active lines matching the selection
	GetActiveItems(ctx context.Context, userID uint64, selections []model.CartItem) ([]*model.CartItem, error)

	// Move active lines into PENDING under an order
	MarkPending(ctx context.Context, userID uint64, orderID string, itemIDs []uint64) error

	// Delete the PENDING lines of an order (checkout succeeded)
	ClearPending(ctx context.Context, orderID string) error

	// Return the PENDING lines of an order to ACTIVE (checkout failed)
	RestorePending(ctx context.Context, orderID string) error
}

// cartRepository cart repository implementation
type cartRepository struct {
	db *gorm.DB
}

// NewCartRepository creates a cart repository
func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepository{db: db}
}

// AddItem upserts a cart line
func (r *cartRepository) AddItem(ctx context.Context, item *model.CartItem) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}, {Name: "variant_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity": gorm.Expr("quantity + ?", item.Quantity),
			}),
		}).
		Create(item).Error
}

// UpdateQuantity overwrites the quantity of an active line
func (r *cartRepository) UpdateQuantity(ctx context.Context, userID, productID, variantID uint64, quantity int) error {
	result := r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("user_id = ? AND product_id = ? AND variant_id = ? AND status = ?",
			userID, productID, variantID, model.CartItemStatusActive).
		Update("quantity", quantity)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrCartItemNotFound
	}
	return nil
}

// RemoveItem removes a line
func (r *cartRepository) RemoveItem(ctx context.Context, userID, productID, variantID uint64) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ? AND variant_id = ? AND status = ?",
			userID, productID, variantID, model.CartItemStatusActive).
		Delete(&model.CartItem{})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrCartItemNotFound
	}
	return nil
}

// ListByUser lists all lines for a user
func (r *cartRepository) ListByUser(ctx context.Context, userID uint64) ([]*model.CartItem, error) {
	var items []*model.CartItem
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// GetActiveItems gets the active lines matching the selection
func (r *cartRepository) GetActiveItems(ctx context.Context, userID uint64, selections []model.CartItem) ([]*model.CartItem, error) {
	var items []*model.CartItem

	for _, sel := range selections {
		var item model.CartItem
		err := r.db.WithContext(ctx).
			Where("user_id = ? AND product_id = ? AND variant_id = ? AND status = ?",
				userID, sel.ProductID, sel.VariantID, model.CartItemStatusActive).
			First(&item).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		items = append(items, &item)
	}
	return items, nil
}

// MarkPending freezes lines under an in-flight checkout
func (r *cartRepository) MarkPending(ctx context.Context, userID uint64, orderID string, itemIDs []uint64) error {
	return r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("user_id = ? AND id IN ? AND status = ?", userID, itemIDs, model.CartItemStatusActive).
		Updates(map[string]interface{}{
			"status":   model.CartItemStatusPending,
			"order_id": orderID,
		}).Error
}

// ClearPending deletes the frozen lines of a completed checkout
func (r *cartRepository) ClearPending(ctx context.Context, orderID string) error {
	return r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, model.CartItemStatusPending).
		Delete(&model.CartItem{}).Error
}

// RestorePending returns the frozen lines of a failed checkout to ACTIVE
func (r *cartRepository) RestorePending(ctx context.Context, orderID string) error {
	return r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("order_id = ? AND status = ?", orderID, model.CartItemStatusPending).
		Updates(map[string]interface{}{
			"status":   model.CartItemStatusActive,
			"order_id": "",
		}).Error
}
