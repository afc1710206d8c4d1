package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics counts business events, postings and reversals.
// A nil *LedgerMetrics records nothing.
type LedgerMetrics struct {
	events    *prometheus.CounterVec
	failures  *prometheus.CounterVec
	posting   prometheus.Histogram
	reversals *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger collectors on registerer.
func NewLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &LedgerMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finledger_events_total",
			Help: "Business events handled by event type and result.",
		}, []string{"event_type", "result"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finledger_event_failures_total",
			Help: "Rejected events and reversals by error kind.",
		}, []string{"kind"}),
		posting: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "finledger_posting_duration_seconds",
			Help:    "Time spent posting one journal to the ledger.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		reversals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finledger_reversals_total",
			Help: "Posted reversals by source module.",
		}, []string{"source_module"}),
	}
	registerer.MustRegister(m.events, m.failures, m.posting, m.reversals)
	return m
}

func (m *LedgerMetrics) ObserveEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType, result).Inc()
}

func (m *LedgerMetrics) ObserveFailure(kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind).Inc()
}

func (m *LedgerMetrics) ObserveReversal(sourceModule string) {
	if m == nil {
		return
	}
	m.reversals.WithLabelValues(sourceModule).Inc()
}

func (m *LedgerMetrics) ObservePosting(d time.Duration) {
	if m == nil {
		return
	}
	m.posting.Observe(d.Seconds())
}
