package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vietddude/acumba/internal/core/domain"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "acumba:dlq:pending", pendingKey())
	assert.Equal(t, "acumba:dlq:abandoned", abandonedKey())
	assert.Equal(t, "acumba:dlq:op:abc", operationKey("abc"))
	assert.Equal(t, "acumba:stats:42", statsKey(42))
	assert.Equal(t, "acumba:lock:dlq-replay", lockKey("dlq-replay"))
}

func TestNewStatsCache_DefaultTTL(t *testing.T) {
	c := NewStatsCache(&Client{}, 0)
	assert.Equal(t, DefaultStatsTTL, c.ttl)

	c = NewStatsCache(&Client{}, time.Minute)
	assert.Equal(t, time.Minute, c.ttl)
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(Config{URL: "not a url"})
	assert.Error(t, err)
}

func TestPendingScore(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	fresh := &domain.FailedOperation{CreatedAt: now}
	older := &domain.FailedOperation{CreatedAt: now.Add(-time.Hour)}
	retried := &domain.FailedOperation{CreatedAt: now.Add(-24 * time.Hour), RetryCount: 1}

	assert.Less(t, pendingScore(older), pendingScore(fresh))
	assert.Less(t, pendingScore(fresh), pendingScore(retried))
}
