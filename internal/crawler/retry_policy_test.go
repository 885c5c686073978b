package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialRetryPolicyBackoff(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(5, 100*time.Millisecond, 500*time.Millisecond).WithJitter(0)
	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 500*time.Millisecond, p.Backoff(4))
}

func TestExponentialRetryPolicyJitterBounded(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3, 10*time.Millisecond, time.Second).WithJitter(5 * time.Millisecond)
	for i := 0; i < 20; i++ {
		d := p.Backoff(1)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 15*time.Millisecond)
	}
}

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewFixedRetryPolicy(3, time.Millisecond)
	boom := errors.New("boom")

	assert.False(t, p.ShouldRetry(nil, 1))
	assert.True(t, p.ShouldRetry(boom, 1))
	assert.True(t, p.ShouldRetry(&HTTPStatusError{StatusCode: 503}, 2))
	assert.False(t, p.ShouldRetry(boom, 3))
	assert.False(t, p.ShouldRetry(context.Canceled, 1))
	assert.Equal(t, time.Millisecond, p.Backoff(7))
}

func TestNewRetryPolicy(t *testing.T) {
	t.Parallel()

	p, err := NewRetryPolicy(RetryFixed, 4, time.Second, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, p.MaxAttempts())

	p, err = NewRetryPolicy("", 2, time.Second, 10*time.Second)
	require.NoError(t, err)
	assert.IsType(t, &ExponentialRetryPolicy{}, p)

	_, err = NewRetryPolicy("linear", 1, 0, 0)
	require.Error(t, err)
}
