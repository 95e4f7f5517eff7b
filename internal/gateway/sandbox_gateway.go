package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// SandboxGateway in-process provider used in development and tests. It
// approves every charge below the configured ceiling and remembers
// outcomes so Status answers consistently after a simulated timeout.
type SandboxGateway struct {
	declineAbove int64

	mu       sync.Mutex
	captures map[string]*CaptureResult
	refunds  map[string]int64
}

// NewSandboxGateway creates a sandbox gateway. Charges above
// declineAbove are declined; zero means approve everything.
func NewSandboxGateway(declineAbove int64) *SandboxGateway {
	return &SandboxGateway{
		declineAbove: declineAbove,
		captures:     make(map[string]*CaptureResult),
		refunds:      make(map[string]int64),
	}
}

// Capture approves or declines the charge
func (g *SandboxGateway) Capture(ctx context.Context, orderID string, amount int64) (*CaptureResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.captures[orderID]; ok {
		return prev, nil
	}

	result := &CaptureResult{Success: true, PaymentKey: "PK-" + uuid.NewString()}
	if g.declineAbove > 0 && amount > g.declineAbove {
		result = &CaptureResult{Success: false, Reason: "amount exceeds sandbox limit"}
	}

	g.captures[orderID] = result
	return result, nil
}

// Cancel refunds a captured payment
func (g *SandboxGateway) Cancel(ctx context.Context, paymentKey string, amount int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.refunds[paymentKey] += amount
	return nil
}

// Status reports the recorded outcome for an order
func (g *SandboxGateway) Status(ctx context.Context, orderID string) (*CaptureResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if result, ok := g.captures[orderID]; ok {
		return result, nil
	}
	return nil, fmt.Errorf("order %s: %w", orderID, ErrNoCharge)
}
