package resilience

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Operation is a unit of work against the remote service.
type Operation[T any] func(ctx context.Context) (T, error)

// RetryEvent is emitted before each backoff wait.
type RetryEvent struct {
	Attempt int // 0-indexed retry number
	Delay   time.Duration
	Kind    Kind
	Err     error
}

// RetryHook observes scheduled retries.
type RetryHook func(RetryEvent)

// WithRetry returns an Operation that runs op and retries it while it fails
// with a kind the policy retries. The wait before retry i is policy.Delay(i)
// and is abandoned if ctx is done. After MaxRetries retries the last error is
// returned as is. Non-retryable and final errors return at once.
func WithRetry[T any](policy RetryPolicy, op Operation[T], hooks ...RetryHook) Operation[T] {
	return func(ctx context.Context) (T, error) {
		var (
			result  T
			attempt int
			lastErr error
		)

		backoff := retry.BackoffFunc(func() (time.Duration, bool) {
			if attempt >= policy.maxRetries {
				return 0, true
			}
			delay := policy.Delay(attempt)
			ev := RetryEvent{Attempt: attempt, Delay: delay, Kind: KindOf(lastErr), Err: lastErr}
			for _, h := range hooks {
				h(ev)
			}
			attempt++
			return delay, false
		})

		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			v, err := op(ctx)
			if err != nil {
				lastErr = err
				if policy.Retryable(KindOf(err)) && !IsFinal(err) {
					return retry.RetryableError(err)
				}
				return err
			}
			result = v
			return nil
		})
		if err != nil {
			var zero T
			return zero, err
		}
		return result, nil
	}
}

// WithTally returns an Operation that records every error op raises in
// tally before handing it back unchanged. onError, if set, sees each
// classified error.
func WithTally[T any](tally *ErrorTally, op Operation[T], onError func(Kind, error)) Operation[T] {
	return func(ctx context.Context) (T, error) {
		v, err := op(ctx)
		if err != nil {
			k := tally.Record(err)
			if onError != nil {
				onError(k, err)
			}
		}
		return v, err
	}
}

// WithBreaker returns an Operation guarded by b. A rejected call returns
// *BreakerOpenError without running op.
func WithBreaker[T any](b *Breaker, op Operation[T]) Operation[T] {
	return func(ctx context.Context) (T, error) {
		var result T
		err := b.Execute(func() error {
			v, err := op(ctx)
			if err != nil {
				return err
			}
			result = v
			return nil
		})
		if err != nil {
			var zero T
			return zero, err
		}
		return result, nil
	}
}
