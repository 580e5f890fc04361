package allocation

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/busalloc/core/oracle"
)

func TestEngineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	ResetMetrics(reg)
	t.Cleanup(func() { ResetMetrics(nil) })

	h := newHarness(t, cfgWith(2, 1, ResolutionGroup), oracle.RuleRanker{})
	h.submit(t, "F001", 0, 12, 30)
	h.engine.RunBatch(context.Background())
	h.submit(t, "F001", 0, 18, 20)
	h.engine.RunBatch(context.Background())

	assert.Equal(t, 1.0, testutil.ToFloat64(batchPasses.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(batchPasses.WithLabelValues("processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(decisionsCreated.WithLabelValues("auto_approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reallocations.WithLabelValues("agent")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pendingRequests))
	assert.Equal(t, 1, testutil.CollectAndCount(oracleLatency))

	n, err := testutil.GatherAndCount(reg, "busalloc_decisions_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
