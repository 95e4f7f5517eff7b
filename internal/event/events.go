package event

// Event type const
const (
	TypeCartCheckoutRequested = "CART_CHECKOUT_REQUESTED"
	TypeStockReserved         = "STOCK_RESERVED"
	TypeStockRejected         = "STOCK_REJECTED"
	TypeOrderCreated          = "ORDER_CREATED"
	TypePaymentCompleted      = "PAYMENT_COMPLETED"
	TypePaymentFailed         = "PAYMENT_FAILED"
	TypeRefundSucceeded       = "REFUND_SUCCEEDED"
)

// Aggregate type const
const (
	AggregateCart    = "CART"
	AggregateStock   = "STOCK"
	AggregateOrder   = "ORDER"
	AggregatePayment = "PAYMENT"
)

// LineItem one selected cart line
type LineItem struct {
	ProductID uint64 `json:"product_id"`
	VariantID uint64 `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// PricedItem a line item with the unit price snapshotted by the stock
// service at reservation time
type PricedItem struct {
	ProductID uint64 `json:"product_id"`
	VariantID uint64 `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// CartCheckoutRequested emitted when a user starts checkout for a
// selection of cart lines
type CartCheckoutRequested struct {
	UserID  uint64     `json:"user_id"`
	OrderID string     `json:"order_id"`
	Items   []LineItem `json:"items"`
}

// StockReserved emitted after all requested lines were held
type StockReserved struct {
	OrderID string       `json:"order_id"`
	UserID  uint64       `json:"user_id"`
	Items   []PricedItem `json:"items"`
}

// StockRejected emitted when any requested line cannot be held
type StockRejected struct {
	OrderID   string `json:"order_id"`
	UserID    uint64 `json:"user_id"`
	ProductID uint64 `json:"product_id"`
	VariantID uint64 `json:"variant_id"`
	Reason    string `json:"reason"`
}

// OrderCreated emitted once the order row exists with its total amount
type OrderCreated struct {
	OrderID string `json:"order_id"`
	UserID  uint64 `json:"user_id"`
	Amount  int64  `json:"amount"`
}

// PaymentCompleted emitted after the gateway confirmed capture
type PaymentCompleted struct {
	OrderID    string `json:"order_id"`
	UserID     uint64 `json:"user_id"`
	PaymentKey string `json:"payment_key"`
	Amount     int64  `json:"amount"`
}

// PaymentFailed emitted when validation or capture resolved negatively
type PaymentFailed struct {
	OrderID string `json:"order_id"`
	UserID  uint64 `json:"user_id"`
	Reason  string `json:"reason"`
}

// RefundSucceeded emitted after a captured payment was cancelled
type RefundSucceeded struct {
	OrderID      string `json:"order_id"`
	UserID       uint64 `json:"user_id"`
	PaymentKey   string `json:"payment_key"`
	CancelAmount int64  `json:"cancel_amount"`
}
