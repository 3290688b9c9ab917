package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3, 10*time.Millisecond, 100*time.Millisecond)
	conn := &PersistError{Kind: PersistConnection, URL: "https://a.com/", Err: errors.New("refused")}

	assert.False(t, p.ShouldRetry(nil, 1))
	assert.True(t, p.ShouldRetry(conn, 1))
	assert.True(t, p.ShouldRetry(conn, 2))
	assert.False(t, p.ShouldRetry(conn, 3), "attempts are bounded")
	assert.False(t, p.ShouldRetry(&PersistError{Kind: PersistQuery, Err: errors.New("syntax")}, 1))
	assert.False(t, p.ShouldRetry(&PersistError{Kind: PersistConflict, Err: errors.New("dup")}, 1))
	assert.False(t, p.ShouldRetry(&PersistError{Kind: PersistConnection, Err: context.Canceled}, 1))
}

func TestExponentialRetryPolicyBackoffBounds(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(5, 10*time.Millisecond, 40*time.Millisecond)
	for attempt := 0; attempt < 6; attempt++ {
		d := p.Backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 40*time.Millisecond)
	}
}

func TestNewExponentialRetryPolicyDefaults(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(0, 0, 0)
	assert.Equal(t, 3, p.maxAttempts)
	assert.Equal(t, 100*time.Millisecond, p.baseDelay)
	assert.Equal(t, 2*time.Second, p.maxDelay)
}
