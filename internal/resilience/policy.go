package resilience

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"
)

// ErrInvalidPolicy is returned by NewRetryPolicy for out-of-range settings.
var ErrInvalidPolicy = errors.New("invalid retry policy")

// RetryPolicy is an immutable retry configuration. Build it with
// NewRetryPolicy or DefaultRetryPolicy.
type RetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	multiplier float64
	retryOn    []Kind
}

// NewRetryPolicy validates and builds a policy.
func NewRetryPolicy(
	maxRetries int,
	baseDelay, maxDelay time.Duration,
	multiplier float64,
	retryOn ...Kind,
) (RetryPolicy, error) {
	switch {
	case maxRetries < 0:
		return RetryPolicy{}, fmt.Errorf("%w: max retries %d < 0", ErrInvalidPolicy, maxRetries)
	case baseDelay <= 0:
		return RetryPolicy{}, fmt.Errorf("%w: base delay must be positive", ErrInvalidPolicy)
	case maxDelay < baseDelay:
		return RetryPolicy{}, fmt.Errorf("%w: max delay %s < base delay %s", ErrInvalidPolicy, maxDelay, baseDelay)
	case multiplier <= 1:
		return RetryPolicy{}, fmt.Errorf("%w: multiplier %.2f must be > 1", ErrInvalidPolicy, multiplier)
	}

	kinds := make([]Kind, 0, len(retryOn))
	for _, k := range retryOn {
		if !slices.Contains(Kinds, k) {
			return RetryPolicy{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidPolicy, k)
		}
		if !slices.Contains(kinds, k) {
			kinds = append(kinds, k)
		}
	}

	return RetryPolicy{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		multiplier: multiplier,
		retryOn:    kinds,
	}, nil
}

// DefaultRetryPolicy retries api and rate_limit failures 3 times, starting at
// 1s and doubling up to 60s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		maxRetries: 3,
		baseDelay:  time.Second,
		maxDelay:   60 * time.Second,
		multiplier: 2.0,
		retryOn:    []Kind{KindAPI, KindRateLimit},
	}
}

func (p RetryPolicy) MaxRetries() int          { return p.maxRetries }
func (p RetryPolicy) BaseDelay() time.Duration { return p.baseDelay }
func (p RetryPolicy) MaxDelay() time.Duration  { return p.maxDelay }
func (p RetryPolicy) Multiplier() float64      { return p.multiplier }

// RetryOn returns a copy of the retryable kinds.
func (p RetryPolicy) RetryOn() []Kind {
	return slices.Clone(p.retryOn)
}

// Retryable reports whether failures of kind k are retried.
func (p RetryPolicy) Retryable(k Kind) bool {
	return slices.Contains(p.retryOn, k)
}

// Delay returns the wait before retry number attempt (0-indexed):
// min(base * multiplier^attempt, max).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(p.multiplier, float64(attempt))
	if delay > float64(p.maxDelay) {
		return p.maxDelay
	}
	return time.Duration(delay)
}
