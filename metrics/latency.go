package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// Operation names recorded by the engine.
const (
	OpFind            = "find"
	OpInsert          = "insert"
	OpReduceFootprint = "reduce_footprint"
	OpCreateFiles     = "create_files"
)

// LatencyTracker tracks per-operation latency quantiles using DDSketch.
// Values are recorded in milliseconds.
type LatencyTracker struct {
	mu               sync.Mutex
	sketches         map[string]*ddsketch.DDSketch
	relativeAccuracy float64
}

// NewLatencyTracker creates a tracker with the given relative accuracy for
// quantile estimates (0.01 = 1% accuracy).
func NewLatencyTracker(relativeAccuracy float64) *LatencyTracker {
	return &LatencyTracker{
		sketches:         make(map[string]*ddsketch.DDSketch),
		relativeAccuracy: relativeAccuracy,
	}
}

// Record records a duration for the given operation.
func (lt *LatencyTracker) Record(operation string, duration time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	sketch, exists := lt.sketches[operation]
	if !exists {
		var err error
		sketch, err = ddsketch.LogUnboundedDenseDDSketch(lt.relativeAccuracy)
		if err != nil {
			sketch, _ = ddsketch.NewDefaultDDSketch(lt.relativeAccuracy)
		}
		lt.sketches[operation] = sketch
	}

	_ = sketch.Add(float64(duration.Microseconds()) / 1000.0)
}

// RecordFunc wraps a function and records its execution time.
func (lt *LatencyTracker) RecordFunc(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	lt.Record(operation, time.Since(start))
	return err
}

// Quantile returns the value at the given quantile for the operation,
// in milliseconds. quantile is in (0, 1), e.g. 0.99 for p99.
func (lt *LatencyTracker) Quantile(operation string, quantile float64) (float64, error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	sketch, exists := lt.sketches[operation]
	if !exists {
		return 0, fmt.Errorf("no data for operation: %s", operation)
	}
	return sketch.GetValueAtQuantile(quantile)
}

// LatencyStats summarizes one operation's recorded latencies.
type LatencyStats struct {
	Operation string
	Count     int64
	Min       float64
	P50       float64
	P90       float64
	P99       float64
	Max       float64
}

// String returns the stats in a human-readable line
func (s LatencyStats) String() string {
	if s.Count == 0 {
		return fmt.Sprintf("  %s: no data", s.Operation)
	}
	return fmt.Sprintf("  %s (n=%d): min=%.2fms p50=%.2fms p90=%.2fms p99=%.2fms max=%.2fms",
		s.Operation, s.Count, s.Min, s.P50, s.P90, s.P99, s.Max)
}

// Stats returns statistics for the given operation.
func (lt *LatencyTracker) Stats(operation string) (LatencyStats, error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	sketch, exists := lt.sketches[operation]
	if !exists {
		return LatencyStats{}, fmt.Errorf("no data for operation: %s", operation)
	}
	return statsLocked(operation, sketch), nil
}

// AllStats returns statistics for every tracked operation, ordered by name.
func (lt *LatencyTracker) AllStats() []LatencyStats {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	stats := make([]LatencyStats, 0, len(lt.sketches))
	for operation, sketch := range lt.sketches {
		stats = append(stats, statsLocked(operation, sketch))
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Operation < stats[j].Operation })
	return stats
}

func statsLocked(operation string, sketch *ddsketch.DDSketch) LatencyStats {
	count := sketch.GetCount()
	if count == 0 {
		return LatencyStats{Operation: operation}
	}

	min, _ := sketch.GetMinValue()
	p50, _ := sketch.GetValueAtQuantile(0.50)
	p90, _ := sketch.GetValueAtQuantile(0.90)
	p99, _ := sketch.GetValueAtQuantile(0.99)
	max, _ := sketch.GetMaxValue()

	return LatencyStats{
		Operation: operation,
		Count:     int64(count),
		Min:       min,
		P50:       p50,
		P90:       p90,
		P99:       p99,
		Max:       max,
	}
}
