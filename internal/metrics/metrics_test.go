package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, upstreamRequestsTotal)
	require.NotNil(t, recordsTotal)
	require.NotNil(t, httpRequestsTotal)
}

func TestObserveUpstream(t *testing.T) {
	Init()
	c := upstreamRequestsTotal.WithLabelValues("search", OutcomeRetry)
	before := testutil.ToFloat64(c)

	ObserveUpstream("search", OutcomeRetry, 20*time.Millisecond)
	assert.InDelta(t, before+1, testutil.ToFloat64(c), 0.001)
	assert.Positive(t, testutil.CollectAndCount(upstreamRequestDurationSeconds))
}

func TestObserveRecordsIgnoresNonPositive(t *testing.T) {
	Init()
	c := recordsTotal.WithLabelValues("listings", "new")
	before := testutil.ToFloat64(c)

	ObserveRecords("listings", "new", 0)
	ObserveRecords("listings", "new", 3)
	assert.InDelta(t, before+3, testutil.ToFloat64(c), 0.001)
}

func TestActiveWorkersGauge(t *testing.T) {
	Init()
	before := testutil.ToFloat64(activeWorkers)
	IncActiveWorkers()
	assert.InDelta(t, before+1, testutil.ToFloat64(activeWorkers), 0.001)
	DecActiveWorkers()
	assert.InDelta(t, before, testutil.ToFloat64(activeWorkers), 0.001)
}
