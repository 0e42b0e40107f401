// Package metrics exposes pipeline counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/padron/pkg/cache"
)

// Metrics holds the collectors of one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reg *prometheus.Registry

	// Dataset loads by dataset and outcome (ok, structural, normalization, io)
	DatasetLoads *prometheus.CounterVec

	// Reshape latency by dataset kind, cache misses only
	LoadDuration *prometheus.HistogramVec

	// Period columns dropped because their label did not parse
	DroppedColumns *prometheus.CounterVec

	// Source availability checks by dataset and result (up, down)
	SourceChecks *prometheus.CounterVec

	// HTTP requests by route pattern and status code
	Requests *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered on a fresh
// registry, plus the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,

		DatasetLoads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "padron_dataset_loads_total",
			Help: "Dataset reshapes by dataset and outcome",
		}, []string{"dataset", "status"}),

		LoadDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "padron_dataset_load_duration_seconds",
			Help:    "Duration of reading and reshaping one dataset",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"kind"}),

		DroppedColumns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "padron_dropped_columns_total",
			Help: "Period columns left out because their header did not parse",
		}, []string{"dataset"}),

		SourceChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "padron_source_checks_total",
			Help: "Source URL availability checks by dataset and result",
		}, []string{"dataset", "result"}),

		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "padron_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}
}

// WatchCache exports the lookup counters of c.
func (m *Metrics) WatchCache(c *cache.Cache) {
	if m == nil || c == nil {
		return
	}
	f := promauto.With(m.reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "padron_cache_entries",
		Help: "Entries held in the in-memory cache",
	}, func() float64 { return float64(c.Stats().Entries) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "padron_cache_hits_total",
		Help: "Cache lookups served from memory",
	}, func() float64 { return float64(c.Stats().Hits) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "padron_cache_disk_hits_total",
		Help: "Cache lookups served from gob files",
	}, func() float64 { return float64(c.Stats().DiskHits) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "padron_cache_misses_total",
		Help: "Cache lookups that rebuilt the value",
	}, func() float64 { return float64(c.Stats().Misses) })
}

// ObserveLoad records the outcome of one dataset reshape.
func (m *Metrics) ObserveLoad(dataset, kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.DatasetLoads.WithLabelValues(dataset, status).Inc()
	m.LoadDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// AddDropped counts unparsable period columns of a dataset.
func (m *Metrics) AddDropped(dataset string, n int) {
	if m != nil && n > 0 {
		m.DroppedColumns.WithLabelValues(dataset).Add(float64(n))
	}
}

// ObserveCheck records one availability check.
func (m *Metrics) ObserveCheck(dataset string, up bool) {
	if m == nil {
		return
	}
	result := "down"
	if up {
		result = "up"
	}
	m.SourceChecks.WithLabelValues(dataset, result).Inc()
}

// ObserveRequest counts one HTTP response.
func (m *Metrics) ObserveRequest(route string, code int) {
	if m != nil {
		m.Requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
