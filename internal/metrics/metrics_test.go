package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.EventApplied("created", ResultApplied)
	m.EventApplied("created", ResultApplied)
	m.EventApplied("deleted", ResultBlocked)
	m.Rollback("mark_read")
	m.MalformedPayload()
	m.Reconnected()
	m.Fetch("full", true)
	m.Fetch("incremental", false)
	m.SetStoreSize(3, 7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("created", ResultApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("deleted", ResultBlocked)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rollbacks.WithLabelValues("mark_read")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.malformed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("full", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("incremental", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.unread))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.visible))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EventApplied("created", ResultApplied)
		m.Rollback("remove")
		m.MalformedPayload()
		m.Reconnected()
		m.Fetch("full", true)
		m.SetStoreSize(1, 1)
	})
}

func TestMetrics_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
