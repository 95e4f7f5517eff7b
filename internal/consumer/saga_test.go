package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout/internal/event"
	"checkout/internal/gateway"
	"checkout/internal/idempotency"
	"checkout/internal/model"
	"checkout/internal/monitor"
	"checkout/internal/repository"
	"checkout/internal/service"
	"checkout/pkg/queue"
	"checkout/pkg/snowflake"
	"checkout/pkg/utils"
)

// In-memory repositories backing a full saga round trip.

type memCartRepo struct {
	mu    sync.Mutex
	next  uint64
	items map[uint64]*model.CartItem
}

func newMemCartRepo() *memCartRepo {
	return &memCartRepo{items: make(map[uint64]*model.CartItem)}
}

func (r *memCartRepo) AddItem(ctx context.Context, item *model.CartItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.UserID == item.UserID && existing.ProductID == item.ProductID && existing.VariantID == item.VariantID {
			existing.Quantity += item.Quantity
			return nil
		}
	}
	r.next++
	item.ID = r.next
	r.items[item.ID] = item
	return nil
}

func (r *memCartRepo) UpdateQuantity(ctx context.Context, userID, productID, variantID uint64, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if item.UserID == userID && item.ProductID == productID && item.VariantID == variantID && item.IsActive() {
			item.Quantity = quantity
			return nil
		}
	}
	return utils.ErrCartItemNotFound
}

func (r *memCartRepo) RemoveItem(ctx context.Context, userID, productID, variantID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, item := range r.items {
		if item.UserID == userID && item.ProductID == productID && item.VariantID == variantID && item.IsActive() {
			delete(r.items, id)
			return nil
		}
	}
	return utils.ErrCartItemNotFound
}

func (r *memCartRepo) ListByUser(ctx context.Context, userID uint64) ([]*model.CartItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.CartItem
	for _, item := range r.items {
		if item.UserID == userID {
			copied := *item
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memCartRepo) GetActiveItems(ctx context.Context, userID uint64, selections []model.CartItem) ([]*model.CartItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.CartItem
	for _, sel := range selections {
		for _, item := range r.items {
			if item.UserID == userID && item.ProductID == sel.ProductID && item.VariantID == sel.VariantID && item.IsActive() {
				copied := *item
				out = append(out, &copied)
			}
		}
	}
	return out, nil
}

func (r *memCartRepo) MarkPending(ctx context.Context, userID uint64, orderID string, itemIDs []uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range itemIDs {
		if item, ok := r.items[id]; ok && item.UserID == userID && item.IsActive() {
			item.Status = model.CartItemStatusPending
			item.OrderID = orderID
		}
	}
	return nil
}

func (r *memCartRepo) ClearPending(ctx context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, item := range r.items {
		if item.OrderID == orderID && item.IsPending() {
			delete(r.items, id)
		}
	}
	return nil
}

func (r *memCartRepo) RestorePending(ctx context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if item.OrderID == orderID && item.IsPending() {
			item.Status = model.CartItemStatusActive
			item.OrderID = ""
		}
	}
	return nil
}

func (r *memCartRepo) countByStatus(userID uint64, status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.items {
		if item.UserID == userID && item.Status == status {
			n++
		}
	}
	return n
}

type variantKey struct {
	productID uint64
	variantID uint64
}

type memStockRepo struct {
	mu           sync.Mutex
	stocks       map[variantKey]*model.Stock
	reservations map[string]*model.StockReservation
}

func newMemStockRepo() *memStockRepo {
	return &memStockRepo{
		stocks:       make(map[variantKey]*model.Stock),
		reservations: make(map[string]*model.StockReservation),
	}
}

func (r *memStockRepo) seed(productID, variantID uint64, quantity int, unitPrice int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stocks[variantKey{productID, variantID}] = &model.Stock{
		ProductID: productID,
		VariantID: variantID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	}
}

func (r *memStockRepo) quantity(productID, variantID uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stocks[variantKey{productID, variantID}]; ok {
		return s.Quantity
	}
	return 0
}

func (r *memStockRepo) GetStock(ctx context.Context, productID, variantID uint64) (*model.Stock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stocks[variantKey{productID, variantID}]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, utils.ErrStockNotEnough
}

func (r *memStockRepo) Reserve(ctx context.Context, reservation *model.StockReservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range reservation.Items {
		s, ok := r.stocks[variantKey{item.ProductID, item.VariantID}]
		if !ok || s.Quantity < item.Quantity {
			return &repository.StockShortError{ProductID: item.ProductID, VariantID: item.VariantID}
		}
	}
	for _, item := range reservation.Items {
		r.stocks[variantKey{item.ProductID, item.VariantID}].Quantity -= item.Quantity
	}
	r.reservations[reservation.OrderID] = reservation
	return nil
}

func (r *memStockRepo) GetReservation(ctx context.Context, orderID string) (*model.StockReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.reservations[orderID]; ok {
		copied := *res
		return &copied, nil
	}
	return nil, nil
}

func (r *memStockRepo) Release(ctx context.Context, orderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[orderID]
	if !ok || res.Status == model.ReservationStatusReleased {
		return false, nil
	}
	res.Status = model.ReservationStatusReleased
	for _, item := range res.Items {
		if s, ok := r.stocks[variantKey{item.ProductID, item.VariantID}]; ok {
			s.Quantity += item.Quantity
		}
	}
	return true, nil
}

func (r *memStockRepo) Confirm(ctx context.Context, orderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[orderID]
	if !ok || res.Status != model.ReservationStatusReserved {
		return false, nil
	}
	res.Status = model.ReservationStatusConfirmed
	return true, nil
}

func (r *memStockRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.StockReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.StockReservation
	for _, res := range r.reservations {
		if res.Status == model.ReservationStatusReserved && res.ExpireAt.Before(now) {
			copied := *res
			out = append(out, &copied)
		}
	}
	return out, nil
}

type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*model.Order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]*model.Order)}
}

func (r *memOrderRepo) Create(ctx context.Context, order *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.OrderID]; ok {
		return errors.New("duplicate order")
	}
	copied := *order
	r.orders[order.OrderID] = &copied
	return nil
}

func (r *memOrderRepo) GetByOrderID(ctx context.Context, orderID string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[orderID]; ok {
		copied := *o
		return &copied, nil
	}
	return nil, utils.ErrOrderNotFound
}

func (r *memOrderRepo) UpdateStatus(ctx context.Context, orderID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[orderID]; ok {
		o.Status = status
	}
	return nil
}

func (r *memOrderRepo) UpdateStatusIf(ctx context.Context, orderID, from, to string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || o.Status != from {
		return 0, nil
	}
	o.Status = to
	return 1, nil
}

func (r *memOrderRepo) ListUserOrders(ctx context.Context, userID uint64, page, pageSize int) ([]*model.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			copied := *o
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

type memPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*model.Payment
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{payments: make(map[string]*model.Payment)}
}

func (r *memPaymentRepo) Create(ctx context.Context, payment *model.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[payment.OrderID]; ok {
		return errors.New("duplicate payment")
	}
	copied := *payment
	copied.UpdatedAt = time.Now()
	r.payments[payment.OrderID] = &copied
	return nil
}

func (r *memPaymentRepo) GetByOrderID(ctx context.Context, orderID string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.payments[orderID]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, utils.ErrPaymentNotFound
}

func (r *memPaymentRepo) UpdateStatusIf(ctx context.Context, orderID, from, to string, fields map[string]interface{}) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[orderID]
	if !ok || p.Status != from {
		return 0, nil
	}
	p.Status = to
	p.UpdatedAt = time.Now()
	if key, ok := fields["payment_key"].(string); ok {
		p.PaymentKey = key
	}
	if reason, ok := fields["fail_reason"].(string); ok {
		p.FailReason = reason
	}
	return 1, nil
}

func (r *memPaymentRepo) ListStuckReady(ctx context.Context, cutoff time.Time, limit int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.payments {
		if p.Status == model.PaymentStatusReady && p.UpdatedAt.Before(cutoff) {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

type memEventLog struct {
	mu      sync.Mutex
	entries []*model.ProcessedEvent
}

func (r *memEventLog) Record(ctx context.Context, entry *model.ProcessedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memEventLog) ListByAggregate(ctx context.Context, aggregateID string) ([]*model.ProcessedEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ProcessedEvent
	for _, e := range r.entries {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}

// sagaHarness wires every participant over one in-memory bus.
type sagaHarness struct {
	carts    service.CartService
	orders   service.OrderService
	payments service.PaymentService
	stocks   service.StockService

	cartRepo    *memCartRepo
	stockRepo   *memStockRepo
	orderRepo   *memOrderRepo
	paymentRepo *memPaymentRepo

	bus *queue.MemoryBus
}

func newSagaHarness(t *testing.T, gw gateway.PaymentGateway) *sagaHarness {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	bus, err := queue.NewMemoryBus(&queue.MemoryBusConfig{
		Partitions:      4,
		BufferSize:      256,
		PublishTimeout:  time.Second,
		MaxRedeliveries: 2,
		RedeliveryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })

	const topic = "checkout.saga.events"
	metrics := sharedMetrics(t)
	eventLog := &memEventLog{}

	store, err := idempotency.NewStore(client, time.Hour)
	require.NoError(t, err)

	idGen, err := snowflake.NewIDGenerator(1)
	require.NoError(t, err)

	h := &sagaHarness{
		cartRepo:    newMemCartRepo(),
		stockRepo:   newMemStockRepo(),
		orderRepo:   newMemOrderRepo(),
		paymentRepo: newMemPaymentRepo(),
		bus:         bus,
	}

	pub := func(producer string) *event.Publisher {
		return event.NewPublisher(bus, topic, producer)
	}

	h.carts = service.NewCartService(h.cartRepo, memCatalog{h.stockRepo}, pub("checkout-api"), idGen, metrics)
	h.stocks = service.NewStockService(h.stockRepo, client, pub("stock-service"), metrics, 15*time.Minute, 10*time.Second, "stock-service")
	h.orders = service.NewOrderService(h.orderRepo, pub("order-service"), metrics)
	h.payments = service.NewPaymentService(h.paymentRepo, gw, h.orders, pub("payment-service"), metrics)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	dispatch := func(group string) *Dispatcher {
		return NewDispatcher(group, store, eventLog, metrics)
	}
	require.NoError(t, NewCartConsumer(dispatch(CartGroup), h.carts).Start(ctx, bus, topic))
	require.NoError(t, NewStockConsumer(dispatch(StockGroup), h.stocks).Start(ctx, bus, topic))
	require.NoError(t, NewOrderConsumer(dispatch(OrderGroup), h.orders).Start(ctx, bus, topic))
	require.NoError(t, NewPaymentConsumer(dispatch(PaymentGroup), h.payments).Start(ctx, bus, topic))

	return h
}

// memCatalog serves variant lookups from the stock fake.
type memCatalog struct {
	repo *memStockRepo
}

func (c memCatalog) GetVariant(ctx context.Context, productID, variantID uint64) (*gateway.VariantInfo, error) {
	stock, err := c.repo.GetStock(ctx, productID, variantID)
	if err != nil {
		return nil, err
	}
	return &gateway.VariantInfo{
		ProductID: productID,
		VariantID: variantID,
		Available: stock.Quantity,
		UnitPrice: stock.UnitPrice,
	}, nil
}

var (
	metricsOnce sync.Once
	metricsInst *monitor.MetricsCollector
)

// sharedMetrics returns a process-wide collector; promauto registers
// globally, so per-test instances would collide.
func sharedMetrics(t *testing.T) *monitor.MetricsCollector {
	t.Helper()
	metricsOnce.Do(func() {
		metricsInst = monitor.NewMetricsCollector()
	})
	return metricsInst
}

func (h *sagaHarness) orderStatus(t *testing.T, orderID string) string {
	t.Helper()
	order, err := h.orderRepo.GetByOrderID(context.Background(), orderID)
	if err != nil {
		return ""
	}
	return order.Status
}

func TestSagaHappyPath(t *testing.T) {
	h := newSagaHarness(t, gateway.NewSandboxGateway(0))
	ctx := context.Background()
	const userID = uint64(7)

	h.stockRepo.seed(1, 1, 10, 500)
	h.stockRepo.seed(2, 1, 5, 1500)

	require.NoError(t, h.carts.AddItem(ctx, userID, 1, 1, 2))
	require.NoError(t, h.carts.AddItem(ctx, userID, 2, 1, 1))

	orderID, err := h.carts.Checkout(ctx, userID, []model.CartItem{
		{ProductID: 1, VariantID: 1},
		{ProductID: 2, VariantID: 1},
	}, "trace-happy")
	require.NoError(t, err)
	require.NotEmpty(t, orderID)

	require.Eventually(t, func() bool {
		return h.orderStatus(t, orderID) == model.OrderStatusPaid
	}, 5*time.Second, 10*time.Millisecond, "order should end PAID")

	order, err := h.orderRepo.GetByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, int64(2*500+1*1500), order.Amount)

	payment, err := h.paymentRepo.GetByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, payment.Status)
	assert.NotEmpty(t, payment.PaymentKey)

	// Stock stays deducted and the hold is confirmed.
	assert.Equal(t, 8, h.stockRepo.quantity(1, 1))
	assert.Equal(t, 4, h.stockRepo.quantity(2, 1))
	require.Eventually(t, func() bool {
		res, _ := h.stockRepo.GetReservation(ctx, orderID)
		return res != nil && res.Status == model.ReservationStatusConfirmed
	}, 5*time.Second, 10*time.Millisecond)

	// The cart empties once payment lands.
	require.Eventually(t, func() bool {
		return h.cartRepo.countByStatus(userID, model.CartItemStatusPending) == 0 &&
			h.cartRepo.countByStatus(userID, model.CartItemStatusActive) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSagaStockRejected(t *testing.T) {
	h := newSagaHarness(t, gateway.NewSandboxGateway(0))
	ctx := context.Background()
	const userID = uint64(8)

	h.stockRepo.seed(1, 1, 1, 500)

	require.NoError(t, h.carts.AddItem(ctx, userID, 1, 1, 3))

	orderID, err := h.carts.Checkout(ctx, userID, []model.CartItem{{ProductID: 1, VariantID: 1}}, "trace-reject")
	require.NoError(t, err)

	// The rejection restores the cart; no order is ever created.
	require.Eventually(t, func() bool {
		return h.cartRepo.countByStatus(userID, model.CartItemStatusActive) == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, err = h.orderRepo.GetByOrderID(ctx, orderID)
	assert.ErrorIs(t, err, utils.ErrOrderNotFound)

	assert.Equal(t, 1, h.stockRepo.quantity(1, 1))
}

func TestSagaPaymentDeclinedCompensates(t *testing.T) {
	// Sandbox declines anything above 1000 cents.
	h := newSagaHarness(t, gateway.NewSandboxGateway(1000))
	ctx := context.Background()
	const userID = uint64(9)

	h.stockRepo.seed(1, 1, 10, 900)

	require.NoError(t, h.carts.AddItem(ctx, userID, 1, 1, 2))

	orderID, err := h.carts.Checkout(ctx, userID, []model.CartItem{{ProductID: 1, VariantID: 1}}, "trace-declined")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.orderStatus(t, orderID) == model.OrderStatusFailed
	}, 5*time.Second, 10*time.Millisecond, "order should end FAILED")

	// Compensation returns the stock and the cart line.
	require.Eventually(t, func() bool {
		return h.stockRepo.quantity(1, 1) == 10
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return h.cartRepo.countByStatus(userID, model.CartItemStatusActive) == 1
	}, 5*time.Second, 10*time.Millisecond)

	payment, err := h.paymentRepo.GetByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, payment.Status)
	assert.NotEmpty(t, payment.FailReason)
}

func TestSagaRefundCancelsOrder(t *testing.T) {
	h := newSagaHarness(t, gateway.NewSandboxGateway(0))
	ctx := context.Background()
	const userID = uint64(10)

	h.stockRepo.seed(1, 1, 4, 2500)
	require.NoError(t, h.carts.AddItem(ctx, userID, 1, 1, 1))

	orderID, err := h.carts.Checkout(ctx, userID, []model.CartItem{{ProductID: 1, VariantID: 1}}, "trace-refund")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.orderStatus(t, orderID) == model.OrderStatusPaid
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, h.payments.Refund(ctx, orderID))

	require.Eventually(t, func() bool {
		return h.orderStatus(t, orderID) == model.OrderStatusCancelled
	}, 5*time.Second, 10*time.Millisecond, "order should end CANCELLED")

	// Refund also returns the goods.
	require.Eventually(t, func() bool {
		return h.stockRepo.quantity(1, 1) == 4
	}, 5*time.Second, 10*time.Millisecond)

	// Refunding again is a no-op.
	require.NoError(t, h.payments.Refund(ctx, orderID))
}

func TestSagaEmptySelectionRejected(t *testing.T) {
	h := newSagaHarness(t, gateway.NewSandboxGateway(0))
	ctx := context.Background()

	_, err := h.carts.Checkout(ctx, 11, nil, "trace-empty")
	assert.ErrorIs(t, err, utils.ErrEmptyCheckoutSelection)

	// Selections that match nothing active are rejected too.
	_, err = h.carts.Checkout(ctx, 11, []model.CartItem{{ProductID: 99, VariantID: 1}}, "trace-empty")
	assert.ErrorIs(t, err, utils.ErrEmptyCheckoutSelection)
}
