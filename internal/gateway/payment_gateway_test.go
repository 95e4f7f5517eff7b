package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyGateway struct {
	captureErr   error
	captureDelay time.Duration
	cancelFails  int32
	cancelCalls  int32
	statusResult *CaptureResult
}

func (f *flakyGateway) Capture(ctx context.Context, orderID string, amount int64) (*CaptureResult, error) {
	if f.captureDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.captureDelay):
		}
	}
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	return &CaptureResult{Success: true, PaymentKey: "PK-flaky"}, nil
}

func (f *flakyGateway) Cancel(ctx context.Context, paymentKey string, amount int64) error {
	n := atomic.AddInt32(&f.cancelCalls, 1)
	if n <= f.cancelFails {
		return errors.New("provider hiccup")
	}
	return nil
}

func (f *flakyGateway) Status(ctx context.Context, orderID string) (*CaptureResult, error) {
	if f.statusResult == nil {
		return nil, errors.New("unknown order")
	}
	return f.statusResult, nil
}

func testConfig() ResilientConfig {
	return ResilientConfig{
		CaptureTimeout: 50 * time.Millisecond,
		RefundRetries:  3,
		RefundBackoff:  time.Millisecond,
		BreakerWindow:  time.Minute,
		BreakerCooloff: time.Minute,
	}
}

func TestResilientCapture(t *testing.T) {
	g := NewResilientGateway(&flakyGateway{}, testConfig())

	result, err := g.Capture(context.Background(), "ORD1", 1000)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "PK-flaky", result.PaymentKey)
}

func TestResilientCaptureTimeout(t *testing.T) {
	g := NewResilientGateway(&flakyGateway{captureDelay: time.Second}, testConfig())

	_, err := g.Capture(context.Background(), "ORD2", 1000)
	assert.ErrorIs(t, err, ErrGatewayTimeout)
}

func TestResilientCancelRetries(t *testing.T) {
	inner := &flakyGateway{cancelFails: 2}
	g := NewResilientGateway(inner, testConfig())

	err := g.Cancel(context.Background(), "PK-1", 500)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&inner.cancelCalls))
}

func TestResilientCancelExhausted(t *testing.T) {
	inner := &flakyGateway{cancelFails: 100}
	g := NewResilientGateway(inner, testConfig())

	err := g.Cancel(context.Background(), "PK-2", 500)
	assert.Error(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&inner.cancelCalls))
}

func TestResilientStatusNoCharge(t *testing.T) {
	// ErrNoCharge is an answer, not a failure: it passes through unwrapped
	// and repeated queries must not open the breaker.
	g := NewResilientGateway(NewSandboxGateway(0), testConfig())

	for i := 0; i < 10; i++ {
		_, err := g.Status(context.Background(), "ORD-unknown")
		assert.ErrorIs(t, err, ErrNoCharge)
	}
}

func TestResilientStatusQueryFailure(t *testing.T) {
	g := NewResilientGateway(&flakyGateway{}, testConfig())

	_, err := g.Status(context.Background(), "ORD-x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCharge)
}

func TestSandboxGateway(t *testing.T) {
	g := NewSandboxGateway(10_000)
	ctx := context.Background()

	ok, err := g.Capture(ctx, "ORD3", 2500)
	require.NoError(t, err)
	assert.True(t, ok.Success)
	assert.NotEmpty(t, ok.PaymentKey)

	// Same order again returns the recorded outcome, not a new key.
	again, err := g.Capture(ctx, "ORD3", 2500)
	require.NoError(t, err)
	assert.Equal(t, ok.PaymentKey, again.PaymentKey)

	declined, err := g.Capture(ctx, "ORD4", 99_999)
	require.NoError(t, err)
	assert.False(t, declined.Success)
	assert.NotEmpty(t, declined.Reason)

	status, err := g.Status(ctx, "ORD3")
	require.NoError(t, err)
	assert.True(t, status.Success)

	_, err = g.Status(ctx, "ORD-never-captured")
	assert.ErrorIs(t, err, ErrNoCharge)

	require.NoError(t, g.Cancel(ctx, ok.PaymentKey, 2500))
}
