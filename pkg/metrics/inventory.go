package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// InventoryMetrics covers catalog imports and the classified lot population.
type InventoryMetrics struct {
	sessions       *prometheus.CounterVec
	rows           *prometheus.CounterVec
	commitDuration prometheus.Histogram
	lotsByState    *prometheus.GaugeVec
}

// NewInventoryMetrics registers the inventory metrics on the provided registerer.
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "medsupply_import_sessions_total",
		Help: "Catalog import sessions by outcome.",
	}, []string{"outcome"})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "medsupply_import_rows_total",
		Help: "Catalog rows validated, by result.",
	}, []string{"result"})
	commitDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "medsupply_import_commit_duration_seconds",
		Help:    "Duration of catalog commits in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	lotsByState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "medsupply_lots_by_state",
		Help: "Sellable lots by expiry classification state at the last sweep.",
	}, []string{"state"})
	reg.MustRegister(sessions, rows, commitDuration, lotsByState)
	return &InventoryMetrics{
		sessions:       sessions,
		rows:           rows,
		commitDuration: commitDuration,
		lotsByState:    lotsByState,
	}
}

// IncSession counts a session reaching outcome (done, failed, cancelled, rejected).
func (m *InventoryMetrics) IncSession(outcome string) {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// AddRows counts validated rows.
func (m *InventoryMetrics) AddRows(valid, invalid int) {
	if m == nil || m.rows == nil {
		return
	}
	m.rows.WithLabelValues("valid").Add(float64(valid))
	m.rows.WithLabelValues("invalid").Add(float64(invalid))
}

// ObserveCommit records the duration of a commit.
func (m *InventoryMetrics) ObserveCommit(d time.Duration) {
	if m == nil || m.commitDuration == nil {
		return
	}
	m.commitDuration.Observe(d.Seconds())
}

// SetLotsByState replaces the per-state lot gauges.
func (m *InventoryMetrics) SetLotsByState(counts map[string]int) {
	if m == nil || m.lotsByState == nil {
		return
	}
	m.lotsByState.Reset()
	for state, n := range counts {
		m.lotsByState.WithLabelValues(normalizeLabel(state)).Set(float64(n))
	}
}
