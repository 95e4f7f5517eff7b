package model

import (
	"time"
)

// Reservation status const
const (
	ReservationStatusReserved  = "RESERVED"
	ReservationStatusConfirmed = "CONFIRMED"
	ReservationStatusReleased  = "RELEASED"
)

// Stock on-hand inventory per product variant
type Stock struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_stock_product_variant" json:"product_id"`
	VariantID uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_stock_product_variant" json:"variant_id"`
	Quantity  int       `gorm:"type:int;not null" json:"quantity"`
	UnitPrice int64     `gorm:"type:bigint;not null" json:"unit_price"`
	UpdatedAt time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (Stock) TableName() string {
	return "stocks"
}

// StockReservation holding record for one checkout attempt. Release and
// confirm flip the status, so a redelivered compensation is a no-op.
type StockReservation struct {
	ID        uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   string            `gorm:"type:varchar(32);uniqueIndex;not null" json:"order_id"`
	UserID    uint64            `gorm:"type:bigint unsigned;not null;index" json:"user_id"`
	Status    string            `gorm:"type:varchar(16);not null;default:RESERVED;index" json:"status"`
	ExpireAt  time.Time         `gorm:"type:timestamp;not null;index" json:"expire_at"`
	CreatedAt time.Time         `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
	Items     []ReservationItem `gorm:"foreignKey:ReservationID" json:"items,omitempty"`
}

// TableName set name
func (StockReservation) TableName() string {
	return "stock_reservations"
}

// IsReserved check reservation is still holding stock
func (r *StockReservation) IsReserved() bool {
	return r.Status == ReservationStatusReserved
}

// IsExpired check reservation passed its hold deadline
func (r *StockReservation) IsExpired() bool {
	return time.Now().After(r.ExpireAt)
}

// ReservationItem one reserved line with the price snapshotted at
// reservation time
type ReservationItem struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ReservationID uint64 `gorm:"type:bigint unsigned;not null;index" json:"reservation_id"`
	ProductID     uint64 `gorm:"type:bigint unsigned;not null" json:"product_id"`
	VariantID     uint64 `gorm:"type:bigint unsigned;not null" json:"variant_id"`
	Quantity      int    `gorm:"type:int;not null" json:"quantity"`
	UnitPrice     int64  `gorm:"type:bigint;not null" json:"unit_price"`
}

// TableName set name
func (ReservationItem) TableName() string {
	return "reservation_items"
}
