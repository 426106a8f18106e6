package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"storeledger/internal/core/id"
)

func TestOutboxRelay_Backoff(t *testing.T) {
	r := NewOutboxRelay(nil, nil, RelayConfig{BaseBackoff: time.Second, MaxBackoff: 10 * time.Second, MaxAttempts: 5})

	assert.Equal(t, time.Second, r.backoff(1))
	assert.Equal(t, 2*time.Second, r.backoff(2))
	assert.Equal(t, 8*time.Second, r.backoff(4))
	assert.Equal(t, 10*time.Second, r.backoff(5))
	assert.Equal(t, 10*time.Second, r.backoff(80))
}

func TestOutboxRelay_FailureMarksFailedAfterMaxAttempts(t *testing.T) {
	r := NewOutboxRelay(nil, nil, DefaultRelayConfig())
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	retry := r.failure(&OutboxMessage{ID: id.New(), RetryCount: 0}, errors.New("broker down"), now)
	assert.Equal(t, 1, retry.Args[0])
	assert.Equal(t, "broker down", retry.Args[1])
	assert.Equal(t, now.Add(5*time.Second), retry.Args[2])
	assert.Equal(t, OutboxStatusPending, retry.Args[3])

	last := r.failure(&OutboxMessage{ID: id.New(), RetryCount: 4}, errors.New("broker down"), now)
	assert.Equal(t, OutboxStatusFailed, last.Args[3])
}
