package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ExporterType selects a metrics exporter implementation.
type ExporterType string

const (
	// StandardExporter uses the in-process counters
	StandardExporter ExporterType = "standard"
	// PrometheusExporterType publishes through a Prometheus registerer
	PrometheusExporterType ExporterType = "prometheus"
)

// Exporter receives engine events. EngineMetrics is the standard
// implementation; PrometheusExporter mirrors events into a registry.
type Exporter interface {
	// RecordHit records a successful lookup
	RecordHit()
	// RecordMiss records a lookup that found no entry
	RecordMiss()
	// RecordInsert records one insert of the given payload size
	RecordInsert(bytes int64)
	// RecordCacheOpen records a backend being opened
	RecordCacheOpen()
	// RecordCacheEviction records an open handle displaced from the collection
	RecordCacheEviction()
	// RecordFootprintReduction records one footprint reduction pass
	RecordFootprintReduction()
	// UpdateOpenCaches sets the open-handle gauge
	UpdateOpenCaches(n int64)
	// GetSnapshot returns a thread-safe copy of current metrics
	GetSnapshot() Snapshot
	// Reset resets all metrics to zero
	Reset()
}

// PrometheusExporter implements Exporter against a Prometheus registry.
// Internal counters back GetSnapshot because Prometheus counters are
// write-only from the application's side.
type PrometheusExporter struct {
	hits       *prometheus.CounterVec
	misses     *prometheus.CounterVec
	inserts    *prometheus.CounterVec
	bytes      *prometheus.CounterVec
	opens      *prometheus.CounterVec
	evictions  *prometheus.CounterVec
	reductions *prometheus.CounterVec
	openCaches *prometheus.GaugeVec

	internal EngineMetrics

	labels prometheus.Labels
}

var promLabelNames = []string{"service", "collection"}

// NewPrometheusExporter creates an exporter registered with reg. A nil reg
// selects the default registerer; tests pass their own registry so repeated
// construction never collides.
func NewPrometheusExporter(reg prometheus.Registerer, service, collection string) *PrometheusExporter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if service == "" {
		service = "pcache"
	}

	e := &PrometheusExporter{
		labels: prometheus.Labels{"service": service, "collection": collection},
	}
	e.internal.LastOperationTime.Store(time.Time{})

	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, promLabelNames)
	}

	e.hits = counter("pcache_hits_total", "Total number of cache hits")
	e.misses = counter("pcache_misses_total", "Total number of cache misses")
	e.inserts = counter("pcache_inserts_total", "Total number of entry inserts")
	e.bytes = counter("pcache_inserted_bytes_total", "Total bytes accepted by inserts")
	e.opens = counter("pcache_backend_opens_total", "Total number of backends opened")
	e.evictions = counter("pcache_handle_evictions_total", "Total open handles displaced from the collection")
	e.reductions = counter("pcache_footprint_reductions_total", "Total footprint reduction passes")
	e.openCaches = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pcache_open_caches",
		Help: "Current number of open cache backends",
	}, promLabelNames)

	reg.MustRegister(
		e.hits,
		e.misses,
		e.inserts,
		e.bytes,
		e.opens,
		e.evictions,
		e.reductions,
		e.openCaches,
	)
	return e
}

// RecordHit implements Exporter
func (e *PrometheusExporter) RecordHit() {
	e.hits.With(e.labels).Inc()
	e.internal.RecordHit()
}

// RecordMiss implements Exporter
func (e *PrometheusExporter) RecordMiss() {
	e.misses.With(e.labels).Inc()
	e.internal.RecordMiss()
}

// RecordInsert implements Exporter
func (e *PrometheusExporter) RecordInsert(bytes int64) {
	e.inserts.With(e.labels).Inc()
	e.bytes.With(e.labels).Add(float64(bytes))
	e.internal.RecordInsert(bytes)
}

// RecordCacheOpen implements Exporter
func (e *PrometheusExporter) RecordCacheOpen() {
	e.opens.With(e.labels).Inc()
	e.internal.RecordCacheOpen()
}

// RecordCacheEviction implements Exporter
func (e *PrometheusExporter) RecordCacheEviction() {
	e.evictions.With(e.labels).Inc()
	e.internal.RecordCacheEviction()
}

// RecordFootprintReduction implements Exporter
func (e *PrometheusExporter) RecordFootprintReduction() {
	e.reductions.With(e.labels).Inc()
	e.internal.RecordFootprintReduction()
}

// UpdateOpenCaches implements Exporter
func (e *PrometheusExporter) UpdateOpenCaches(n int64) {
	e.openCaches.With(e.labels).Set(float64(n))
	e.internal.UpdateOpenCaches(n)
}

// GetSnapshot implements Exporter
func (e *PrometheusExporter) GetSnapshot() Snapshot {
	return e.internal.GetSnapshot()
}

// Reset clears the internal counters. Registered Prometheus series stay
// cumulative.
func (e *PrometheusExporter) Reset() {
	e.internal.Reset()
}

// NewExporter creates an exporter of the requested type. The Prometheus
// variant registers with the default registerer.
func NewExporter(exporterType ExporterType, service, collection string) Exporter {
	switch exporterType {
	case PrometheusExporterType:
		return NewPrometheusExporter(nil, service, collection)
	default:
		return NewEngineMetrics()
	}
}

var _ Exporter = (*EngineMetrics)(nil)
var _ Exporter = (*PrometheusExporter)(nil)
