package crawler

import (
	"context"
	"io"
	"time"
)

// Transport performs a single HTTP GET and returns the raw response.
type Transport interface {
	Get(ctx context.Context, rawURL string) (FetchResponse, error)
}

// RetryPolicy decides whether a failed attempt is retried and how long to wait.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
	MaxAttempts() int
}

// Pacer spaces out requests that must respect upstream rate limits.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
