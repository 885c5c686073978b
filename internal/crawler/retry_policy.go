package crawler

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"
)

// Retry strategies accepted by NewRetryPolicy.
const (
	RetryExponential = "exponential"
	RetryFixed       = "fixed"
)

// NewRetryPolicy builds the named strategy.
func NewRetryPolicy(strategy string, maxAttempts int, initial, maxDelay time.Duration) (RetryPolicy, error) {
	switch strategy {
	case RetryExponential, "":
		return NewExponentialRetryPolicy(maxAttempts, initial, maxDelay), nil
	case RetryFixed:
		return NewFixedRetryPolicy(maxAttempts, initial), nil
	default:
		return nil, fmt.Errorf("unknown retry strategy %q", strategy)
	}
}

// ExponentialRetryPolicy implements RetryPolicy with jittered backoff.
// The n-th wait is initial*2^(n-1) capped at maxDelay, plus up to one second of jitter.
type ExponentialRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      time.Duration
}

// NewExponentialRetryPolicy builds a policy. Non-positive values fall back to defaults.
func NewExponentialRetryPolicy(maxAttempts int, initial, maxDelay time.Duration) *ExponentialRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if initial <= 0 {
		initial = time.Second
	}
	if maxDelay < initial {
		maxDelay = 30 * time.Second
	}
	return &ExponentialRetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   initial,
		maxDelay:    maxDelay,
		jitter:      time.Second,
	}
}

// WithJitter overrides the jitter bound; zero disables it.
func (p *ExponentialRetryPolicy) WithJitter(limit time.Duration) *ExponentialRetryPolicy {
	p.jitter = limit
	return p
}

// MaxAttempts returns the total number of attempts allowed.
func (p *ExponentialRetryPolicy) MaxAttempts() int { return p.maxAttempts }

// ShouldRetry decides whether the error is retryable. attempt is 1-based.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	return shouldRetry(err, attempt, p.maxAttempts)
}

// Backoff returns the wait duration after the given failed attempt.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	return time.Duration(delay) + randomJitter(p.jitter)
}

// FixedRetryPolicy waits the same delay between every attempt.
type FixedRetryPolicy struct {
	maxAttempts int
	delay       time.Duration
}

// NewFixedRetryPolicy builds a policy with a constant delay.
func NewFixedRetryPolicy(maxAttempts int, delay time.Duration) *FixedRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if delay < 0 {
		delay = 0
	}
	return &FixedRetryPolicy{maxAttempts: maxAttempts, delay: delay}
}

// MaxAttempts returns the total number of attempts allowed.
func (p *FixedRetryPolicy) MaxAttempts() int { return p.maxAttempts }

// ShouldRetry decides whether the error is retryable. attempt is 1-based.
func (p *FixedRetryPolicy) ShouldRetry(err error, attempt int) bool {
	return shouldRetry(err, attempt, p.maxAttempts)
}

// Backoff returns the constant delay.
func (p *FixedRetryPolicy) Backoff(int) time.Duration { return p.delay }

func shouldRetry(err error, attempt, maxAttempts int) bool {
	if err == nil {
		return false
	}
	if attempt >= maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
