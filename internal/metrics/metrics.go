package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/suspectuso/ton-presale/internal/storage"
)

// Metrics holds all presale collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	mu       sync.Mutex
	observed *storage.Stats

	PurchasesRecorded    prometheus.Counter
	RecordFailures       prometheus.Counter
	DuplicatePurchases   prometheus.Counter
	ValidationRejections *prometheus.CounterVec
	TotalRaisedTON       prometheus.Gauge
	UniqueBuyers         prometheus.Gauge
	RecordDuration       prometheus.Histogram
}

// New creates and registers the presale metrics
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		PurchasesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "presale",
			Name:      "purchases_recorded_total",
			Help:      "Total number of purchases written to the ledger",
		}),
		RecordFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "presale",
			Name:      "record_failures_total",
			Help:      "Purchases whose transfer succeeded but ledger write failed",
		}),
		DuplicatePurchases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "presale",
			Name:      "duplicate_purchases_total",
			Help:      "Record attempts rejected because the transaction hash was already recorded",
		}),
		ValidationRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "presale",
			Name:      "validation_rejections_total",
			Help:      "Rejected contribution amounts by reason",
		}, []string{"reason"}),
		TotalRaisedTON: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "presale",
			Name:      "total_raised_ton",
			Help:      "Total TON raised as of the last recorded purchase",
		}),
		UniqueBuyers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "presale",
			Name:      "unique_buyers",
			Help:      "Distinct buyer wallets as of the last recorded purchase",
		}),
		RecordDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "presale",
			Name:      "record_duration_seconds",
			Help:      "Latency of ledger record transactions",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.PurchasesRecorded,
		m.RecordFailures,
		m.DuplicatePurchases,
		m.ValidationRejections,
		m.TotalRaisedTON,
		m.UniqueBuyers,
		m.RecordDuration,
	)

	return m
}

// ObserveStats updates the gauges from a stats snapshot. Totals only grow,
// so a snapshot older than the last one observed is ignored.
func (m *Metrics) ObserveStats(st *storage.Stats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev := m.observed; prev != nil &&
		(st.TotalRaised.LessThan(prev.TotalRaised) || st.UniqueBuyers < prev.UniqueBuyers) {
		return
	}
	snapshot := *st
	m.observed = &snapshot

	raised, _ := st.TotalRaised.Float64()
	m.TotalRaisedTON.Set(raised)
	m.UniqueBuyers.Set(float64(st.UniqueBuyers))
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
