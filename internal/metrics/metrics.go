// Package metrics exposes quote pipeline metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Simplici0/printquote/internal/dfm"
	"github.com/Simplici0/printquote/internal/quote"
)

const namespace = "printquote"

// Metrics holds the collectors. It satisfies dfm.Observer, slicer.Observer
// and quote.Observer.
type Metrics struct {
	registry *prometheus.Registry

	quotes        *prometheus.CounterVec
	quoteDuration *prometheus.HistogramVec
	checkDuration *prometheus.HistogramVec
	checkDegraded *prometheus.CounterVec
	slices        *prometheus.CounterVec
	sliceDuration prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Quotes generated, by process, DFM status and final state.",
		}, []string{"process", "status", "state"}),
		quoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_duration_seconds",
			Help:      "Wall time to generate a quote.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"process"}),
		checkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dfm_check_duration_seconds",
			Help:      "Wall time of individual DFM checks.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"check"}),
		checkDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dfm_check_degraded_total",
			Help:      "DFM checks that failed or panicked and were reported as degraded.",
		}, []string{"check"}),
		slices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slicer_runs_total",
			Help:      "Slicer invocations by outcome.",
		}, []string{"outcome"}),
		sliceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slicer_duration_seconds",
			Help:      "Wall time of slicer invocations.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 180, 240, 300},
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.quotes, m.quoteDuration, m.checkDuration, m.checkDegraded, m.slices, m.sliceDuration,
	)
	return m
}

func (m *Metrics) ObserveCheck(name string, d time.Duration, degraded bool) {
	m.checkDuration.WithLabelValues(name).Observe(d.Seconds())
	if degraded {
		m.checkDegraded.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) ObserveSlice(d time.Duration, outcome string) {
	m.slices.WithLabelValues(outcome).Inc()
	m.sliceDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveQuote(process string, status dfm.Status, state quote.State, d time.Duration) {
	if process == "" {
		process = "unknown"
	}
	m.quotes.WithLabelValues(process, string(status), string(state)).Inc()
	m.quoteDuration.WithLabelValues(process).Observe(d.Seconds())
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
