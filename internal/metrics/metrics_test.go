package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Expansion("imgur", "ok")
	m.Expansion("imgur", "ok")
	m.Records("reprocess-messages", "processed", 25)
	m.Records("reprocess-messages", "processed", 0)
	m.Conflict()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.expansions.WithLabelValues("imgur", "ok")))
	assert.Equal(t, 25.0, testutil.ToFloat64(m.records.WithLabelValues("reprocess-messages", "processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflicts))
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.Expansion("link", "failed")
	m.Page("process-messages", "ok")
	m.Records("process-messages", "skipped", 1)
	m.Conflict()
}
