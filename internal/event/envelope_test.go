package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	payload := OrderCreated{OrderID: "ORD100", UserID: 7, Amount: 2500}

	env, err := NewEnvelope(TypeOrderCreated, AggregateOrder, "ORD100", "checkout-api", "trace-1", payload)
	require.NoError(t, err)

	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, TypeOrderCreated, env.EventType)
	assert.Equal(t, AggregateOrder, env.AggregateType)
	assert.Equal(t, "ORD100", env.AggregateID)
	assert.Equal(t, "checkout-api", env.Producer)
	assert.Equal(t, EnvelopeVersion, env.Version)
	assert.WithinDuration(t, time.Now().UTC(), env.OccurredAt, time.Second)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := StockReserved{
		OrderID: "ORD101",
		UserID:  42,
		Items: []PricedItem{
			{ProductID: 1, VariantID: 2, Quantity: 3, UnitPrice: 500},
			{ProductID: 9, VariantID: 1, Quantity: 1, UnitPrice: 1000},
		},
	}

	env, err := NewEnvelope(TypeStockReserved, AggregateStock, "ORD101", "stock-service", "trace-2", payload)
	require.NoError(t, err)

	data, err := env.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, decoded.EventID)
	assert.Equal(t, env.EventType, decoded.EventType)
	assert.Equal(t, env.AggregateID, decoded.AggregateID)

	var got StockReserved
	require.NoError(t, decoded.DecodePayload(&got))
	assert.Equal(t, payload, got)
}

func TestDecodeToleratesUnknownPayloadFields(t *testing.T) {
	raw := []byte(`{
		"event_id": "e-1",
		"event_type": "PAYMENT_COMPLETED",
		"aggregate_type": "ORDER",
		"aggregate_id": "ORD102",
		"occurred_at": "2026-01-02T15:04:05Z",
		"producer": "payment-service",
		"version": 1,
		"payload": {"order_id": "ORD102", "user_id": 1, "payment_key": "PK-1", "amount": 900, "gateway_extra": "ignored"}
	}`)

	env, err := Decode(raw)
	require.NoError(t, err)

	var p PaymentCompleted
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, "PK-1", p.PaymentKey)
	assert.Equal(t, int64(900), p.Amount)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("not-json")},
		{"missing event_id", mustMarshal(t, map[string]interface{}{
			"event_type": "ORDER_CREATED", "aggregate_type": "ORDER",
			"aggregate_id": "ORD1", "occurred_at": time.Now(), "version": 1,
		})},
		{"missing aggregate_id", mustMarshal(t, map[string]interface{}{
			"event_id": "e-2", "event_type": "ORDER_CREATED",
			"aggregate_type": "ORDER", "occurred_at": time.Now(), "version": 1,
		})},
		{"zero version", mustMarshal(t, map[string]interface{}{
			"event_id": "e-3", "event_type": "ORDER_CREATED", "aggregate_type": "ORDER",
			"aggregate_id": "ORD1", "occurred_at": time.Now(), "version": 0,
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			assert.ErrorIs(t, err, ErrMalformedEnvelope)
		})
	}
}

func TestEncodeRejectsIncompleteEnvelope(t *testing.T) {
	env := &Envelope{EventType: TypeOrderCreated}
	_, err := env.Encode()
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
