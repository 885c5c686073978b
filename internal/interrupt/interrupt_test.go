package interrupt

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
)

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchKeysCancelsOnKey(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	token := crawler.NewCancelToken()

	done := WatchKeys(context.Background(), strings.NewReader("x\n Q \nq\n"), token, zap.New(core))
	waitDone(t, done)

	assert.True(t, token.Cancelled())
	assert.Equal(t, 1, logs.Len())
}

func TestWatchKeysIgnoresOtherInput(t *testing.T) {
	token := crawler.NewCancelToken()

	waitDone(t, WatchKeys(context.Background(), strings.NewReader("quit\nstop\n"), token, nil))
	assert.False(t, token.Cancelled())
}

func TestWatchKeysStopsAfterContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()
	token := crawler.NewCancelToken()

	done := WatchKeys(ctx, pr, token, nil)
	cancel()
	_, err := pw.Write([]byte("q\n"))
	require.NoError(t, err)
	waitDone(t, done)
	_ = pw.Close()

	assert.False(t, token.Cancelled())
}
