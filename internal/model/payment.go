package model

import (
	"time"
)

// Payment status const
const (
	PaymentStatusReady     = "READY"
	PaymentStatusPaid      = "PAID"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusCancelled = "CANCELLED"
)

// paymentTransitions legal status moves. PAID and FAILED are terminal
// for the capture path; PAID can still move to CANCELLED via refund.
var paymentTransitions = map[string][]string{
	PaymentStatusReady: {PaymentStatusPaid, PaymentStatusFailed},
	PaymentStatusPaid:  {PaymentStatusCancelled},
}

// Payment capture record, one per order
type Payment struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID    string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"order_id"`
	UserID     uint64     `gorm:"type:bigint unsigned;not null;index" json:"user_id"`
	PaymentKey string     `gorm:"type:varchar(64);index" json:"payment_key,omitempty"`
	Amount     int64      `gorm:"type:bigint;not null" json:"amount"`
	Status     string     `gorm:"type:varchar(16);not null;default:READY;index" json:"status"`
	FailReason string     `gorm:"type:varchar(255)" json:"fail_reason,omitempty"`
	CapturedAt *time.Time `gorm:"type:timestamp" json:"captured_at,omitempty"`
	CreatedAt  time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (Payment) TableName() string {
	return "payments"
}

// CanTransition check the move from the current status is legal
func (p *Payment) CanTransition(to string) bool {
	return PaymentCanTransition(p.Status, to)
}

// PaymentCanTransition check a status move is legal
func PaymentCanTransition(from, to string) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsReady check capture has not resolved yet
func (p *Payment) IsReady() bool {
	return p.Status == PaymentStatusReady
}

// IsPaid check capture succeeded
func (p *Payment) IsPaid() bool {
	return p.Status == PaymentStatusPaid
}
