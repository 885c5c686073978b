package crawler

import "sync/atomic"

// CancelToken is a cooperative stop flag. It is polled at page and batch
// boundaries; requests already in flight are never interrupted by it.
type CancelToken struct {
	cancelled atomic.Bool
}

// NewCancelToken returns an unset token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel sets the flag. It reports whether this call was the one that set it.
func (t *CancelToken) Cancel() bool {
	return t.cancelled.CompareAndSwap(false, true)
}

// Cancelled reports whether Cancel has been called. A nil token never cancels.
func (t *CancelToken) Cancelled() bool {
	if t == nil {
		return false
	}
	return t.cancelled.Load()
}
