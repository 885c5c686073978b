// Package interrupt turns operator input into cooperative cancellation of a
// running crawl.
package interrupt

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
)

// CancelKey is the line an operator types to stop a crawl.
const CancelKey = "q"

// WatchKeys reads lines from r and cancels token when one equals CancelKey.
// The returned channel closes when watching stops. A read blocked on a
// terminal is not interrupted by ctx; the goroutine exits on the next line.
func WatchKeys(ctx context.Context, r io.Reader, token *crawler.CancelToken, logger *zap.Logger) <-chan struct{} {
	if logger == nil {
		logger = zap.NewNop()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			if !strings.EqualFold(strings.TrimSpace(scanner.Text()), CancelKey) {
				continue
			}
			if token.Cancel() {
				logger.Warn("cancel requested from keyboard, waiting for in-flight work")
			}
			return
		}
	}()
	return done
}

// WatchSignals cancels token on the first signal and calls hard on the
// second. Call the returned func to stop watching.
func WatchSignals(ctx context.Context, token *crawler.CancelToken, hard context.CancelFunc, logger *zap.Logger, sigs ...os.Signal) func() {
	if logger == nil {
		logger = zap.NewNop()
	}
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, sigs...)
	stop := make(chan struct{})
	go func() {
		received := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case sig := <-ch:
				received++
				if received == 1 {
					token.Cancel()
					logger.Warn("signal received, finishing in-flight work; repeat to abort",
						zap.String("signal", sig.String()))
					continue
				}
				logger.Error("second signal received, aborting", zap.String("signal", sig.String()))
				if hard != nil {
					hard()
				}
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(stop)
	}
}
