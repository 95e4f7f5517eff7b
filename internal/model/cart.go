package model

import (
	"time"
)

// Cart item status const
const (
	CartItemStatusActive  = "ACTIVE"
	CartItemStatusPending = "PENDING"
)

// CartItem cart line model. One row per (user, product, variant); adding
// the same selection again increments the quantity instead of inserting.
type CartItem struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_cart_user_product_variant" json:"user_id"`
	ProductID uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_cart_user_product_variant" json:"product_id"`
	VariantID uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_cart_user_product_variant" json:"variant_id"`
	Quantity  int       `gorm:"type:int;not null" json:"quantity"`
	Status    string    `gorm:"type:varchar(16);not null;default:ACTIVE;index" json:"status"`
	OrderID   string    `gorm:"type:varchar(32);index" json:"order_id,omitempty"`
	CreatedAt time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (CartItem) TableName() string {
	return "cart_items"
}

// IsActive check item is still editable
func (c *CartItem) IsActive() bool {
	return c.Status == CartItemStatusActive
}

// IsPending check item is frozen under an in-flight checkout
func (c *CartItem) IsPending() bool {
	return c.Status == CartItemStatusPending
}
