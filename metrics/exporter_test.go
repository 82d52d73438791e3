package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusExporter(t *testing.T) {
	registry := prometheus.NewRegistry()
	exporter := NewPrometheusExporter(registry, "test-service", "assets")
	labels := prometheus.Labels{"service": "test-service", "collection": "assets"}

	t.Run("events mirror into the registry", func(t *testing.T) {
		exporter.RecordHit()
		exporter.RecordMiss()
		exporter.RecordInsert(256)
		exporter.RecordCacheOpen()
		exporter.RecordCacheEviction()
		exporter.RecordFootprintReduction()
		exporter.UpdateOpenCaches(2)

		require.Equal(t, 1.0, testutil.ToFloat64(exporter.hits.With(labels)))
		require.Equal(t, 1.0, testutil.ToFloat64(exporter.misses.With(labels)))
		require.Equal(t, 1.0, testutil.ToFloat64(exporter.inserts.With(labels)))
		require.Equal(t, 256.0, testutil.ToFloat64(exporter.bytes.With(labels)))
		require.Equal(t, 1.0, testutil.ToFloat64(exporter.evictions.With(labels)))
		require.Equal(t, 1.0, testutil.ToFloat64(exporter.reductions.With(labels)))
		require.Equal(t, 2.0, testutil.ToFloat64(exporter.openCaches.With(labels)))
	})

	t.Run("snapshot matches recorded events", func(t *testing.T) {
		snap := exporter.GetSnapshot()
		require.Equal(t, int64(1), snap.Hits)
		require.Equal(t, int64(1), snap.Misses)
		require.Equal(t, int64(256), snap.InsertedBytes)
		require.Equal(t, int64(2), snap.OpenCaches)
	})

	t.Run("reset clears internal counters only", func(t *testing.T) {
		exporter.Reset()
		require.Zero(t, exporter.GetSnapshot().Hits)

		// Registered series stay cumulative.
		require.Equal(t, 1.0, testutil.ToFloat64(exporter.hits.With(labels)))
	})
}

func TestNewExporterSelectsType(t *testing.T) {
	require.IsType(t, &EngineMetrics{}, NewExporter(StandardExporter, "svc", "c1"))

	orig := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	defer func() { prometheus.DefaultRegisterer = orig }()
	require.IsType(t, &PrometheusExporter{}, NewExporter(PrometheusExporterType, "svc", "c2"))
}
