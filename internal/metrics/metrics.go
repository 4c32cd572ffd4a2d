package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the indexer collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	EventsProcessed *prometheus.CounterVec
	EventErrors     *prometheus.CounterVec
	Duplicates      prometheus.Counter
	LastBlock       prometheus.Gauge
	ChainHead       prometheus.Gauge
	BatchDuration   prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EventsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_events_processed_total",
				Help: "Total number of logs handled, by topic0.",
			},
			[]string{"topic"},
		),
		EventErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_event_errors_total",
				Help: "Total number of logs whose handler failed, by topic0.",
			},
			[]string{"topic"},
		),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexer_duplicate_logs_total",
			Help: "Total number of redelivered logs skipped by the dedupe guard.",
		}),
		LastBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indexer_last_block",
			Help: "Last block fully processed and checkpointed.",
		}),
		ChainHead: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indexer_chain_head",
			Help: "Latest block reported by the RPC node.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indexer_batch_duration_seconds",
			Help:    "Time taken to fetch and handle one block range.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}

	m.registry.MustRegister(
		m.EventsProcessed,
		m.EventErrors,
		m.Duplicates,
		m.LastBlock,
		m.ChainHead,
		m.BatchDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveBatch records how long a block range took
func (m *Metrics) ObserveBatch(start time.Time) {
	m.BatchDuration.Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
