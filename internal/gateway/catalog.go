package gateway

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"checkout/internal/model"
	"checkout/pkg/utils"
)

// Catalog product lookup used when validating cart input
type Catalog interface {
	// GetVariant returns availability and the current unit price
	GetVariant(ctx context.Context, productID, variantID uint64) (*VariantInfo, error)
}

// VariantInfo catalog snapshot of one product variant
type VariantInfo struct {
	ProductID uint64
	VariantID uint64
	Available int
	UnitPrice int64
}

// dbCatalog catalog backed by the stock table
type dbCatalog struct {
	db *gorm.DB
}

// NewCatalog creates a catalog over the local stock table
func NewCatalog(db *gorm.DB) Catalog {
	return &dbCatalog{db: db}
}

// GetVariant returns availability and price for a variant
func (c *dbCatalog) GetVariant(ctx context.Context, productID, variantID uint64) (*VariantInfo, error) {
	var stock model.Stock
	err := c.db.WithContext(ctx).
		Where("product_id = ? AND variant_id = ?", productID, variantID).
		First(&stock).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewError(utils.CodeNotFound, "product variant not found")
		}
		return nil, err
	}

	return &VariantInfo{
		ProductID: stock.ProductID,
		VariantID: stock.VariantID,
		Available: stock.Quantity,
		UnitPrice: stock.UnitPrice,
	}, nil
}
