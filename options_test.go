package pcache

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gozephyr/pcache/metrics"
	"github.com/gozephyr/pcache/sandbox"
	"github.com/gozephyr/pcache/storage"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	require.Equal(t, DefaultTargetFootprint, opts.TargetFootprint)
	require.Equal(t, DefaultMaxOpenCaches, opts.MaxOpenCaches)
	require.Equal(t, "oldest-first", opts.TrimStrategy.Name())
	require.NotNil(t, opts.MetricsExporter)
	require.NotNil(t, opts.Logger)
	require.NotNil(t, opts.Registry)
	require.Nil(t, opts.LatencyTracker)
	require.NoError(t, opts.Validate())
}

func TestOptionsApply(t *testing.T) {
	reg := sandbox.NewRegistry()
	logger := slog.Default()
	exporter := metrics.NewEngineMetrics()
	tracker := metrics.NewLatencyTracker(0.02)

	opts := DefaultOptions()
	for _, opt := range []Option{
		WithTargetFootprint(1 << 20),
		WithMaxOpenCaches(7),
		WithTrimStrategy(storage.LargestFirst{}),
		WithMetricsExporter(exporter),
		WithLatencyTracker(tracker),
		WithLogger(logger),
		WithRegistry(reg),
	} {
		opt(opts)
	}

	require.Equal(t, int64(1<<20), opts.TargetFootprint)
	require.Equal(t, 7, opts.MaxOpenCaches)
	require.Equal(t, "largest-first", opts.TrimStrategy.Name())
	require.Same(t, exporter, opts.MetricsExporter.(*metrics.EngineMetrics))
	require.Same(t, tracker, opts.LatencyTracker)
	require.Same(t, reg, opts.Registry)
	require.NoError(t, opts.Validate())
}

func TestOptionsValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate Option
	}{
		{"zero target footprint", WithTargetFootprint(0)},
		{"negative target footprint", WithTargetFootprint(-4096)},
		{"zero max open caches", WithMaxOpenCaches(0)},
		{"negative max open caches", WithMaxOpenCaches(-1)},
		{"nil trim strategy", WithTrimStrategy(nil)},
		{"nil exporter", WithMetricsExporter(nil)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.mutate(opts)
			require.Error(t, opts.Validate())
		})
	}
}
