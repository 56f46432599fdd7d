// Package retry provides a bounded exponential-backoff retry policy for
// operations subject to external-network nondeterminism.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Policy defines retry behavior: a fixed attempt ceiling with an
// exponentially increasing delay between attempts. On final failure the
// last error is returned unchanged so callers see the real cause.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// NewPolicy creates a retry policy with exponential backoff.
func NewPolicy(maxAttempts int, baseDelay time.Duration) *Policy {
	return &Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    5 * time.Minute,
		Multiplier:  2.0,
	}
}

// DefaultPolicy returns the policy used for remote-endpoint operations:
// three attempts with a 2s base delay doubling between attempts.
func DefaultPolicy() *Policy {
	return NewPolicy(3, 2*time.Second)
}

// Execute runs fn under the policy, retrying every failure.
func (p *Policy) Execute(ctx context.Context, fn func() error) error {
	return p.ExecuteIf(ctx, fn, func(error) bool { return true })
}

// ExecuteIf runs fn under the policy, retrying only while shouldRetry
// classifies the failure as transient. Non-transient failures and the
// final attempt's failure are returned unchanged.
func (p *Policy) ExecuteIf(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return lastErr
}

// Delay returns the backoff delay after the given attempt (1-based):
// BaseDelay x Multiplier^(attempt-1), capped at MaxDelay.
func (p *Policy) Delay(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}
