package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricFetchTotal       = "otxsubs_fetch_total"
	MetricFetchDuration    = "otxsubs_fetch_duration_seconds"
	MetricRateLimitedTotal = "otxsubs_rate_limited_total"
	MetricSubdomainsTotal  = "otxsubs_subdomains_found_total"
	MetricBatchDomains     = "otxsubs_batch_domains"
)

// FetchMetrics holds the counters of one run on a private registry, so a
// run can be exported as a node_exporter textfile without global state.
type FetchMetrics struct {
	registry    *prometheus.Registry
	fetches     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	rateLimited prometheus.Counter
	subdomains  prometheus.Counter
	batch       *prometheus.GaugeVec
}

func NewFetchMetrics() (*FetchMetrics, error) {
	m := &FetchMetrics{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricFetchTotal,
			Help: "Domain fetches by final status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricFetchDuration,
			Help:    "Wall time of one domain fetch including rate-limit waits.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300, 900},
		}, []string{"status"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRateLimitedTotal,
			Help: "429 responses received from OTX.",
		}),
		subdomains: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSubdomainsTotal,
			Help: "Matching subdomains written to disk.",
		}),
		batch: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricBatchDomains,
			Help: "Domains in the most recent batch.",
		}, []string{"source"}),
	}

	for _, c := range []prometheus.Collector{m.fetches, m.duration, m.rateLimited, m.subdomains, m.batch} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

// FetchDone records the final status of one domain. saved is the number of
// hosts written, zero unless the fetch saved a file.
func (m *FetchMetrics) FetchDone(status string, took time.Duration, saved int) {
	m.fetches.WithLabelValues(status).Inc()
	m.duration.WithLabelValues(status).Observe(took.Seconds())
	if saved > 0 {
		m.subdomains.Add(float64(saved))
	}
}

func (m *FetchMetrics) RateLimited() {
	m.rateLimited.Inc()
}

func (m *FetchMetrics) BatchSize(source string, n int) {
	m.batch.WithLabelValues(source).Set(float64(n))
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (m *FetchMetrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func (m *FetchMetrics) Registry() *prometheus.Registry {
	return m.registry
}
