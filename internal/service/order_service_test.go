package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout/internal/event"
	"checkout/internal/model"
	"checkout/pkg/utils"
)

// stubOrderRepo in-memory order repository with guarded transitions
type stubOrderRepo struct {
	orders map[string]*model.Order
}

func newStubOrderRepo() *stubOrderRepo {
	return &stubOrderRepo{orders: make(map[string]*model.Order)}
}

func (r *stubOrderRepo) Create(ctx context.Context, order *model.Order) error {
	cp := *order
	r.orders[order.OrderID] = &cp
	return nil
}

func (r *stubOrderRepo) GetByOrderID(ctx context.Context, orderID string) (*model.Order, error) {
	o, ok := r.orders[orderID]
	if !ok {
		return nil, utils.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *stubOrderRepo) UpdateStatus(ctx context.Context, orderID, status string) error {
	if o, ok := r.orders[orderID]; ok {
		o.Status = status
	}
	return nil
}

func (r *stubOrderRepo) UpdateStatusIf(ctx context.Context, orderID, from, to string) (int64, error) {
	o, ok := r.orders[orderID]
	if !ok || o.Status != from {
		return 0, nil
	}
	o.Status = to
	return 1, nil
}

func (r *stubOrderRepo) ListUserOrders(ctx context.Context, userID uint64, page, pageSize int) ([]*model.Order, int64, error) {
	var out []*model.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, int64(len(out)), nil
}

func orderFixture() (OrderService, *stubOrderRepo, *recordBus) {
	repo := newStubOrderRepo()
	bus := &recordBus{}
	svc := NewOrderService(repo,
		event.NewPublisher(bus, "checkout.saga.events", "order-service"), testMetrics())
	return svc, repo, bus
}

func TestCreateFromReservation(t *testing.T) {
	svc, repo, bus := orderFixture()

	ev := event.StockReserved{
		OrderID: "ORD1",
		UserID:  7,
		Items: []event.PricedItem{
			{ProductID: 10, VariantID: 1, Quantity: 2, UnitPrice: 500},
			{ProductID: 20, VariantID: 3, Quantity: 1, UnitPrice: 800},
		},
	}
	require.NoError(t, svc.CreateFromReservation(context.Background(), ev, "trace-1"))

	order, err := repo.GetByOrderID(context.Background(), "ORD1")
	require.NoError(t, err)
	assert.Equal(t, int64(2*500+800), order.Amount)
	assert.Equal(t, model.OrderStatusValidated, order.Status)
	assert.Equal(t, []string{event.TypeOrderCreated}, bus.types())
}

func TestCreateFromReservationNegativeAmount(t *testing.T) {
	svc, repo, bus := orderFixture()

	ev := event.StockReserved{
		OrderID: "ORD1",
		UserID:  7,
		Items:   []event.PricedItem{{ProductID: 10, VariantID: 1, Quantity: 1, UnitPrice: -100}},
	}
	require.NoError(t, svc.CreateFromReservation(context.Background(), ev, "trace-1"))

	order, err := repo.GetByOrderID(context.Background(), "ORD1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusFailed, order.Status)

	require.Equal(t, []string{event.TypePaymentFailed}, bus.types())
	var payload event.PaymentFailed
	require.NoError(t, bus.envelopes[0].DecodePayload(&payload))
	assert.Equal(t, utils.ErrNonPositiveAmount.Message, payload.Reason)
}

func TestValidateAnswersFromOrderRecord(t *testing.T) {
	svc, repo, _ := orderFixture()

	require.NoError(t, repo.Create(context.Background(), &model.Order{
		OrderID: "ORD1", UserID: 7, Amount: 1800, Status: model.OrderStatusValidated,
	}))

	check, err := svc.Validate(context.Background(), "ORD1")
	require.NoError(t, err)
	assert.Equal(t, int64(1800), check.Amount)
	assert.Equal(t, model.OrderStatusValidated, check.Status)

	_, err = svc.Validate(context.Background(), "ORD-missing")
	assert.ErrorIs(t, err, utils.ErrOrderNotFound)
}
