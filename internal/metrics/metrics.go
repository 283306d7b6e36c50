package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the counters exported on /metrics. A nil *Metrics is a no-op.
type Metrics struct {
	expansions *prometheus.CounterVec
	pages      *prometheus.CounterVec
	records    *prometheus.CounterVec
	conflicts  prometheus.Counter
}

// New registers the forum collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		expansions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forum",
			Name:      "url_expansions_total",
			Help:      "URL expansions by handler and outcome (ok, failed, cached, suppressed, fallback).",
		}, []string{"handler", "outcome"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forum",
			Name:      "batch_pages_total",
			Help:      "Batch pages by stage and result.",
		}, []string{"stage", "result"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forum",
			Name:      "batch_records_total",
			Help:      "Batch records by stage and result (processed, skipped, invalid).",
		}, []string{"stage", "result"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forum",
			Name:      "save_conflicts_total",
			Help:      "Optimistic concurrency conflicts seen while saving messages.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.expansions, m.pages, m.records, m.conflicts)
	}
	return m
}

func (m *Metrics) Expansion(handler, outcome string) {
	if m == nil {
		return
	}
	m.expansions.WithLabelValues(handler, outcome).Inc()
}

func (m *Metrics) Page(stage, result string) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(stage, result).Inc()
}

func (m *Metrics) Records(stage, result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.records.WithLabelValues(stage, result).Add(float64(n))
}

func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}
