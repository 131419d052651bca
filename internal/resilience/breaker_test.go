package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCooldown = 60 * time.Millisecond

func newTestBreaker(t *testing.T, threshold int) *Breaker {
	t.Helper()
	b, err := NewBreaker(BreakerSettings{
		Name:             "test",
		FailureThreshold: threshold,
		Cooldown:         testCooldown,
	})
	require.NoError(t, err)
	return b
}

func TestNewBreaker_RejectsBadSettings(t *testing.T) {
	_, err := NewBreaker(BreakerSettings{Name: "x", FailureThreshold: 0, Cooldown: time.Second})
	assert.Error(t, err)

	_, err = NewBreaker(BreakerSettings{Name: "x", FailureThreshold: 1})
	assert.Error(t, err)
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := newTestBreaker(t, 3)
	boom := APIFailure("get_lists", 500, "boom")

	calls := 0
	fail := func() error {
		calls++
		return boom
	}

	for i := 0; i < 3; i++ {
		err := b.Execute(fail)
		assert.Same(t, boom, err)
	}
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, 3, b.Snapshot().Failures)

	err := b.Execute(fail)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, 3, calls, "open breaker must not invoke the operation")

	var openErr *BreakerOpenError
	require.True(t, errors.As(err, &openErr))
	assert.Equal(t, "test", openErr.Name)

	// Breaker rejections are not service errors.
	assert.False(t, errors.Is(err, ErrAPI))
	assert.False(t, errors.Is(err, ErrRateLimited))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrUnclassified))
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := newTestBreaker(t, 3)
	boom := errors.New("boom")

	_ = b.Execute(func() error { return boom })
	_ = b.Execute(func() error { return boom })
	assert.Equal(t, 2, b.Snapshot().Failures)

	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, 0, b.Snapshot().Failures)

	// Two more failures do not trip a threshold of three.
	_ = b.Execute(func() error { return boom })
	_ = b.Execute(func() error { return boom })
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenTrialCloses(t *testing.T) {
	b := newTestBreaker(t, 2)
	boom := errors.New("boom")

	_ = b.Execute(func() error { return boom })
	_ = b.Execute(func() error { return boom })
	require.Equal(t, StateOpen, b.State())

	time.Sleep(testCooldown + 20*time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	calls := 0
	err := b.Execute(func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Snapshot().Failures)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker(t, 1)
	boom := errors.New("boom")

	_ = b.Execute(func() error { return boom })
	require.Equal(t, StateOpen, b.State())

	time.Sleep(testCooldown + 20*time.Millisecond)

	err := b.Execute(func() error { return boom })
	assert.Same(t, boom, err)
	assert.Equal(t, StateOpen, b.State())

	// The cool-down restarted with the half-open failure.
	err = b.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestBreaker_HalfOpenAllowsSingleTrial(t *testing.T) {
	b := newTestBreaker(t, 1)

	_ = b.Execute(func() error { return errors.New("boom") })
	time.Sleep(testCooldown + 20*time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	trials := 0
	err := b.Execute(func() error {
		trials++
		return nil
	})
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, 0, trials)

	close(release)
	wg.Wait()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	var mu sync.Mutex
	var transitions []string

	b, err := NewBreaker(BreakerSettings{
		Name:             "cb",
		FailureThreshold: 1,
		Cooldown:         testCooldown,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	require.NoError(t, err)

	_ = b.Execute(func() error { return errors.New("boom") })
	time.Sleep(testCooldown + 20*time.Millisecond)
	require.NoError(t, b.Execute(func() error { return nil }))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}, transitions)
}
