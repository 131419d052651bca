package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	}
	return StateClosed
}

// BreakerSettings configures a Breaker.
type BreakerSettings struct {
	Name             string
	FailureThreshold int
	Cooldown         time.Duration
	// OnStateChange is called on every transition. It must not call back
	// into the breaker.
	OnStateChange func(name string, from, to State)
}

// DefaultBreakerSettings opens after 5 consecutive failures and probes again
// after 60s.
func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{
		Name:             name,
		FailureThreshold: 5,
		Cooldown:         60 * time.Second,
	}
}

// BreakerSnapshot describes the breaker at a point in time.
type BreakerSnapshot struct {
	Name             string        `json:"name"`
	State            string        `json:"state"`
	Failures         int           `json:"failures"`
	FailureThreshold int           `json:"failure_threshold"`
	Cooldown         time.Duration `json:"cooldown"`
	LastFailure      time.Time     `json:"last_failure,omitzero"`
}

// Breaker is a consecutive-failure circuit breaker.
//
// CLOSED lets calls through and opens once FailureThreshold calls in a row
// have failed. OPEN rejects every call with *BreakerOpenError until Cooldown
// has passed since the last failure. HALF_OPEN lets exactly one probe through:
// success closes the breaker, failure opens it again with a fresh cool-down.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	cb        *gobreaker.CircuitBreaker

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
}

// NewBreaker validates settings and builds a closed breaker.
func NewBreaker(s BreakerSettings) (*Breaker, error) {
	if s.FailureThreshold < 1 {
		return nil, fmt.Errorf("failure threshold must be >= 1, got %d", s.FailureThreshold)
	}
	if s.Cooldown <= 0 {
		return nil, fmt.Errorf("cooldown must be positive, got %s", s.Cooldown)
	}

	b := &Breaker{
		name:      s.Name,
		threshold: s.FailureThreshold,
		cooldown:  s.Cooldown,
	}

	threshold := uint32(s.FailureThreshold)
	onChange := s.OnStateChange
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if onChange != nil {
				onChange(name, fromGobreaker(from), fromGobreaker(to))
			}
		},
	})

	return b, nil
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state. An OPEN breaker whose cool-down has
// elapsed reports HALF_OPEN.
func (b *Breaker) State() State {
	return fromGobreaker(b.cb.State())
}

// Execute runs fn unless the breaker rejects the call. Every non-nil error
// from fn counts as a failure.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		err := fn()
		b.record(err)
		return nil, err
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &BreakerOpenError{Name: b.name, State: b.State()}
	}
	return err
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		return
	}
	b.failures++
	b.lastFailure = time.Now()
}

// Snapshot returns the current state and counters.
func (b *Breaker) Snapshot() BreakerSnapshot {
	state := b.State()

	b.mu.Lock()
	defer b.mu.Unlock()

	return BreakerSnapshot{
		Name:             b.name,
		State:            state.String(),
		Failures:         b.failures,
		FailureThreshold: b.threshold,
		Cooldown:         b.cooldown,
		LastFailure:      b.lastFailure,
	}
}
