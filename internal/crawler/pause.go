package crawler

import (
	"context"
	"time"
)

// Sleeper abstracts how the pipeline waits between retries.
type Sleeper interface {
	Pause(ctx context.Context, delay time.Duration)
}

// TimerSleeper waits on a timer and returns early when ctx is done.
type TimerSleeper struct{}

// Pause blocks for delay or until ctx is done.
func (TimerSleeper) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
