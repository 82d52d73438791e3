package pcache

import (
	"fmt"
	"log/slog"

	"github.com/gozephyr/pcache/metrics"
	"github.com/gozephyr/pcache/policy"
	"github.com/gozephyr/pcache/sandbox"
	"github.com/gozephyr/pcache/storage"
)

// Default collection limits.
const (
	// DefaultTargetFootprint bounds total on-disk bytes under the top
	// directory.
	DefaultTargetFootprint int64 = 256 << 20

	// DefaultMaxOpenCaches caps simultaneously open backends.
	DefaultMaxOpenCaches = policy.DefaultCapacity
)

// Options represents collection configuration options
type Options struct {
	// TargetFootprint is the on-disk byte budget that drives footprint
	// reduction
	TargetFootprint int64

	// MaxOpenCaches is the maximum number of simultaneously open backends
	MaxOpenCaches int

	// TrimStrategy orders file groups for deletion under footprint pressure
	TrimStrategy storage.TrimStrategy

	// MetricsExporter receives engine events
	MetricsExporter metrics.Exporter

	// LatencyTracker records per-operation latency quantiles when set
	LatencyTracker *metrics.LatencyTracker

	// Logger receives structured engine logs
	Logger *slog.Logger

	// Registry is the sandbox registry backends register their files with
	Registry *sandbox.Registry
}

// Option is a function that configures collection options
type Option func(*Options)

// WithTargetFootprint sets the on-disk byte budget
func WithTargetFootprint(bytes int64) Option {
	return func(o *Options) {
		o.TargetFootprint = bytes
	}
}

// WithMaxOpenCaches sets the open-backend cap
func WithMaxOpenCaches(n int) Option {
	return func(o *Options) {
		o.MaxOpenCaches = n
	}
}

// WithTrimStrategy sets the file-group deletion order used under pressure
func WithTrimStrategy(s storage.TrimStrategy) Option {
	return func(o *Options) {
		o.TrimStrategy = s
	}
}

// WithMetricsExporter sets the metrics exporter
func WithMetricsExporter(e metrics.Exporter) Option {
	return func(o *Options) {
		o.MetricsExporter = e
	}
}

// WithLatencyTracker enables per-operation latency quantile tracking
func WithLatencyTracker(lt *metrics.LatencyTracker) Option {
	return func(o *Options) {
		o.LatencyTracker = lt
	}
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithRegistry sets the sandbox registry, letting tests stay isolated from
// the process-wide instance
func WithRegistry(r *sandbox.Registry) Option {
	return func(o *Options) {
		o.Registry = r
	}
}

// DefaultOptions returns the default collection options
func DefaultOptions() *Options {
	return &Options{
		TargetFootprint: DefaultTargetFootprint,
		MaxOpenCaches:   DefaultMaxOpenCaches,
		TrimStrategy:    storage.OldestFirst{},
		MetricsExporter: metrics.NewEngineMetrics(),
		Logger:          slog.Default(),
		Registry:        sandbox.Default(),
	}
}

// Validate reports configuration errors
func (o *Options) Validate() error {
	if o.TargetFootprint <= 0 {
		return fmt.Errorf("target footprint must be positive, got %d", o.TargetFootprint)
	}
	if o.MaxOpenCaches <= 0 {
		return fmt.Errorf("max open caches must be positive, got %d", o.MaxOpenCaches)
	}
	if o.TrimStrategy == nil {
		return fmt.Errorf("trim strategy must not be nil")
	}
	if o.MetricsExporter == nil {
		return fmt.Errorf("metrics exporter must not be nil")
	}
	return nil
}
