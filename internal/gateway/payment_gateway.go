package gateway

import (
	"context"
	"errors"
	"time"

	"checkout/pkg/breaker"
	"checkout/pkg/log"
	"checkout/pkg/utils"
)

// ErrGatewayTimeout returned when a capture call exceeded its deadline
// with the outcome unknown. The payment stays READY and the reconciler
// resolves it later.
var ErrGatewayTimeout = errors.New("payment gateway timed out")

// ErrNoCharge returned by Status when the provider definitively has no
// charge on record for the order. A failed Status query is not ErrNoCharge;
// only this error licenses settling the payment as failed.
var ErrNoCharge = errors.New("no charge on record")

// CaptureResult outcome of a capture call
type CaptureResult struct {
	Success    bool
	PaymentKey string
	Reason     string
}

// PaymentGateway external payment provider client
type PaymentGateway interface {
	// Capture charges the amount for an order. A returned error means
	// the outcome is unknown, not that the charge failed.
	Capture(ctx context.Context, orderID string, amount int64) (*CaptureResult, error)

	// Cancel refunds a captured payment
	Cancel(ctx context.Context, paymentKey string, amount int64) error

	// Status queries the provider-side state of an order's charge
	Status(ctx context.Context, orderID string) (*CaptureResult, error)
}

// ResilientGateway decorates a gateway with a capture deadline, a
// circuit breaker, and bounded refund retries. Capture is never retried
// here: the outcome of a timed-out capture is unknown, so retrying
// could double-charge. The reconciler owns that path.
type ResilientGateway struct {
	inner          PaymentGateway
	cb             *breaker.CircuitBreaker
	captureTimeout time.Duration
	refundRetries  int
	refundBackoff  time.Duration
}

// ResilientConfig resilient gateway configuration
type ResilientConfig struct {
	CaptureTimeout time.Duration
	RefundRetries  int
	RefundBackoff  time.Duration
	BreakerWindow  time.Duration
	BreakerCooloff time.Duration
}

// NewResilientGateway wraps the inner gateway
func NewResilientGateway(inner PaymentGateway, cfg ResilientConfig) *ResilientGateway {
	cb := breaker.NewCircuitBreaker("payment-gateway", breaker.Config{
		Interval: cfg.BreakerWindow,
		Timeout:  cfg.BreakerCooloff,
		OnStateChange: func(name string, from, to breaker.State) {
			log.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &ResilientGateway{
		inner:          inner,
		cb:             cb,
		captureTimeout: cfg.CaptureTimeout,
		refundRetries:  cfg.RefundRetries,
		refundBackoff:  cfg.RefundBackoff,
	}
}

// Capture charges the order within the configured deadline
func (g *ResilientGateway) Capture(ctx context.Context, orderID string, amount int64) (*CaptureResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.captureTimeout)
	defer cancel()

	var result *CaptureResult
	err := g.cb.Execute(ctx, func() error {
		var callErr error
		result, callErr = g.inner.Capture(ctx, orderID, amount)
		return callErr
	})

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrGatewayTimeout
		}
		if breaker.IsCircuitBreakerError(err) {
			return nil, utils.WrapError(err, utils.CodeGatewayError, "payment gateway unavailable")
		}
		return nil, utils.WrapError(err, utils.CodeGatewayError, "payment capture failed")
	}
	return result, nil
}

// Cancel refunds with bounded retry. A refund is idempotent on the
// provider side, keyed by the payment key, so retrying is safe.
func (g *ResilientGateway) Cancel(ctx context.Context, paymentKey string, amount int64) error {
	var lastErr error
	for attempt := 0; attempt <= g.refundRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(g.refundBackoff):
			}
		}

		lastErr = g.cb.Execute(ctx, func() error {
			return g.inner.Cancel(ctx, paymentKey, amount)
		})
		if lastErr == nil {
			return nil
		}

		log.WithFields(map[string]interface{}{
			"payment_key": paymentKey,
			"attempt":     attempt + 1,
		}).WithError(lastErr).Warn("Refund attempt failed")
	}
	return utils.WrapError(lastErr, utils.CodeGatewayError, "refund exhausted retries")
}

// Status queries the provider-side state of an order's charge.
// ErrNoCharge passes through untouched: it is an answer from the
// provider, not a failure, and must not trip the breaker.
func (g *ResilientGateway) Status(ctx context.Context, orderID string) (*CaptureResult, error) {
	var result *CaptureResult
	var noCharge bool
	err := g.cb.Execute(ctx, func() error {
		var callErr error
		result, callErr = g.inner.Status(ctx, orderID)
		if errors.Is(callErr, ErrNoCharge) {
			noCharge = true
			return nil
		}
		return callErr
	})
	if err != nil {
		return nil, utils.WrapError(err, utils.CodeGatewayError, "gateway status query failed")
	}
	if noCharge {
		return nil, ErrNoCharge
	}
	return result, nil
}
