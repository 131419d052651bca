package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Outcome labels a finished guarded call.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeRejected Outcome = "rejected"
)

// Observer receives telemetry from a Guard.
type Observer interface {
	CallFinished(op string, outcome Outcome, took time.Duration)
	ErrorRecorded(op string, kind Kind)
	RetryScheduled(op string, attempt int, delay time.Duration)
	BreakerStateChanged(name string, from, to State)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) CallFinished(string, Outcome, time.Duration) {}
func (NopObserver) ErrorRecorded(string, Kind)                  {}
func (NopObserver) RetryScheduled(string, int, time.Duration)   {}
func (NopObserver) BreakerStateChanged(string, State, State)    {}

type guardConfig struct {
	policy   RetryPolicy
	breaker  BreakerSettings
	logger   *slog.Logger
	observer Observer
}

// GuardOption configures a Guard.
type GuardOption func(*guardConfig)

// WithPolicy sets the retry policy.
func WithPolicy(p RetryPolicy) GuardOption {
	return func(c *guardConfig) {
		c.policy = p
	}
}

// WithBreakerSettings sets the failure threshold and cool-down.
func WithBreakerSettings(threshold int, cooldown time.Duration) GuardOption {
	return func(c *guardConfig) {
		c.breaker.FailureThreshold = threshold
		c.breaker.Cooldown = cooldown
	}
}

// WithLogger sets the logger. Defaults to a logger that discards output.
func WithLogger(l *slog.Logger) GuardOption {
	return func(c *guardConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver sets the telemetry sink.
func WithObserver(o Observer) GuardOption {
	return func(c *guardConfig) {
		if o != nil {
			c.observer = o
		}
	}
}

// Guard owns one retry policy, one error tally and one circuit breaker, and
// composes them around every call made through Call.
type Guard struct {
	name     string
	policy   RetryPolicy
	tally    *ErrorTally
	breaker  *Breaker
	log      *slog.Logger
	observer Observer
}

// NewGuard builds a Guard named name.
func NewGuard(name string, opts ...GuardOption) (*Guard, error) {
	cfg := guardConfig{
		policy:   DefaultRetryPolicy(),
		breaker:  DefaultBreakerSettings(name),
		logger:   slog.New(slog.DiscardHandler),
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	g := &Guard{
		name:     name,
		policy:   cfg.policy,
		tally:    &ErrorTally{},
		log:      cfg.logger.With("guard", name),
		observer: cfg.observer,
	}

	cfg.breaker.Name = name
	cfg.breaker.OnStateChange = func(name string, from, to State) {
		g.log.Info("Circuit breaker state changed", "from", from, "to", to)
		g.observer.BreakerStateChanged(name, from, to)
	}

	b, err := NewBreaker(cfg.breaker)
	if err != nil {
		return nil, err
	}
	g.breaker = b

	return g, nil
}

// Name returns the guard name.
func (g *Guard) Name() string { return g.name }

// Policy returns the retry policy.
func (g *Guard) Policy() RetryPolicy { return g.policy }

// Tally returns a snapshot of the error counters.
func (g *Guard) Tally() TallySnapshot { return g.tally.Snapshot() }

// Breaker returns a snapshot of the circuit breaker.
func (g *Guard) Breaker() BreakerSnapshot { return g.breaker.Snapshot() }

// BreakerState returns the current breaker state.
func (g *Guard) BreakerState() State { return g.breaker.State() }

// Reject records a failure detected before dispatch, such as invalid input,
// and returns err unchanged. The breaker is not involved.
func (g *Guard) Reject(op string, err error) error {
	k := g.tally.Record(err)
	g.observer.ErrorRecorded(op, k)
	g.observer.CallFinished(op, OutcomeFailure, 0)
	g.log.Warn("Operation rejected", "op", op, "kind", k, "error", err)
	return err
}

// Call runs fn through the guard: the breaker wraps the whole retry sequence
// and every error fn raises is tallied, including ones a later attempt
// recovers from.
func Call[T any](ctx context.Context, g *Guard, op string, fn Operation[T]) (T, error) {
	start := time.Now()

	tallied := WithTally(g.tally, fn, func(k Kind, err error) {
		g.observer.ErrorRecorded(op, k)
		g.log.Debug("Operation failed", "op", op, "kind", k, "error", err)
	})
	retried := WithRetry(g.policy, tallied, func(ev RetryEvent) {
		g.observer.RetryScheduled(op, ev.Attempt, ev.Delay)
		g.log.Warn("Retrying operation",
			"op", op,
			"attempt", ev.Attempt+1,
			"max_retries", g.policy.MaxRetries(),
			"delay", ev.Delay,
			"kind", ev.Kind,
		)
	})

	result, err := WithBreaker(g.breaker, retried)(ctx)
	took := time.Since(start)

	switch {
	case err == nil:
		g.observer.CallFinished(op, OutcomeSuccess, took)
	case errors.Is(err, ErrBreakerOpen):
		g.observer.CallFinished(op, OutcomeRejected, took)
		g.log.Warn("Circuit breaker rejected call", "op", op, "state", g.breaker.State())
	default:
		g.observer.CallFinished(op, OutcomeFailure, took)
		g.log.Error("Operation failed", "op", op, "kind", KindOf(err), "error", err)
	}

	return result, err
}
