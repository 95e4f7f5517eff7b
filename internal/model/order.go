package model

import (
	"time"
)

// Order status const
const (
	OrderStatusCreated   = "CREATED"
	OrderStatusValidated = "VALIDATED"
	OrderStatusPaid      = "PAID"
	OrderStatusFailed    = "FAILED"
	OrderStatusCancelled = "CANCELLED"
)

// orderTransitions legal status moves. Anything absent is illegal and
// must be reported, not silently applied.
var orderTransitions = map[string][]string{
	OrderStatusCreated:   {OrderStatusValidated, OrderStatusFailed},
	OrderStatusValidated: {OrderStatusPaid, OrderStatusFailed},
	OrderStatusPaid:      {OrderStatusCancelled},
}

// Order order model
type Order struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"order_id"`
	UserID    uint64     `gorm:"type:bigint unsigned;not null;index" json:"user_id"`
	Amount    int64      `gorm:"type:bigint;not null" json:"amount"`
	Status    string     `gorm:"type:varchar(16);not null;default:CREATED;index" json:"status"`
	TraceID   string     `gorm:"type:varchar(64)" json:"trace_id,omitempty"`
	PaidAt    *time.Time `gorm:"type:timestamp" json:"paid_at,omitempty"`
	CreatedAt time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (Order) TableName() string {
	return "orders"
}

// CanTransition check the move from the current status is legal
func (o *Order) CanTransition(to string) bool {
	return OrderCanTransition(o.Status, to)
}

// OrderCanTransition check a status move is legal
func OrderCanTransition(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsPaid check order is paid
func (o *Order) IsPaid() bool {
	return o.Status == OrderStatusPaid
}

// IsTerminal check order reached a final status
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusFailed || o.Status == OrderStatusCancelled
}

// GetAmountYuan get amount in yuan
func (o *Order) GetAmountYuan() float64 {
	return float64(o.Amount) / 100
}
