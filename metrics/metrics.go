// Package metrics collects engine performance counters: lookup outcomes,
// insert volume, open-handle churn and footprint reductions, with optional
// Prometheus export and latency quantile tracking.
package metrics

import (
	"sync/atomic"
	"time"
)

// EngineMetrics tracks counters for one cache collection.
type EngineMetrics struct {
	// Lookup outcomes
	Hits   atomic.Int64
	Misses atomic.Int64

	// Write volume
	Inserts       atomic.Int64
	InsertedBytes atomic.Int64

	// Open-handle churn
	CacheOpens     atomic.Int64
	CacheEvictions atomic.Int64
	OpenCaches     atomic.Int64

	// Disk pressure
	FootprintReductions atomic.Int64

	LastOperationTime atomic.Value // time.Time
}

// Snapshot is a point-in-time copy of engine metrics.
type Snapshot struct {
	Hits   int64
	Misses int64

	Inserts       int64
	InsertedBytes int64

	CacheOpens     int64
	CacheEvictions int64
	OpenCaches     int64

	FootprintReductions int64

	LastOperationTime time.Time
}

// HitRatio returns the fraction of lookups that hit
func (s Snapshot) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// NewEngineMetrics creates a zeroed metrics instance
func NewEngineMetrics() *EngineMetrics {
	m := &EngineMetrics{}
	m.LastOperationTime.Store(time.Time{})
	return m
}

// RecordHit records a successful lookup
func (m *EngineMetrics) RecordHit() {
	m.Hits.Add(1)
	m.LastOperationTime.Store(time.Now())
}

// RecordMiss records a lookup that found no entry
func (m *EngineMetrics) RecordMiss() {
	m.Misses.Add(1)
	m.LastOperationTime.Store(time.Now())
}

// RecordInsert records one insert of the given payload size
func (m *EngineMetrics) RecordInsert(bytes int64) {
	m.Inserts.Add(1)
	m.InsertedBytes.Add(bytes)
	m.LastOperationTime.Store(time.Now())
}

// RecordCacheOpen records a backend being opened
func (m *EngineMetrics) RecordCacheOpen() {
	m.CacheOpens.Add(1)
}

// RecordCacheEviction records an open handle displaced from the collection
func (m *EngineMetrics) RecordCacheEviction() {
	m.CacheEvictions.Add(1)
}

// RecordFootprintReduction records one footprint reduction pass
func (m *EngineMetrics) RecordFootprintReduction() {
	m.FootprintReductions.Add(1)
}

// UpdateOpenCaches sets the open-handle gauge
func (m *EngineMetrics) UpdateOpenCaches(n int64) {
	m.OpenCaches.Store(n)
}

// GetSnapshot returns a thread-safe copy of current metrics
func (m *EngineMetrics) GetSnapshot() Snapshot {
	return Snapshot{
		Hits:                m.Hits.Load(),
		Misses:              m.Misses.Load(),
		Inserts:             m.Inserts.Load(),
		InsertedBytes:       m.InsertedBytes.Load(),
		CacheOpens:          m.CacheOpens.Load(),
		CacheEvictions:      m.CacheEvictions.Load(),
		OpenCaches:          m.OpenCaches.Load(),
		FootprintReductions: m.FootprintReductions.Load(),
		LastOperationTime:   m.LastOperationTime.Load().(time.Time),
	}
}

// Reset resets all metrics to zero
func (m *EngineMetrics) Reset() {
	m.Hits.Store(0)
	m.Misses.Store(0)
	m.Inserts.Store(0)
	m.InsertedBytes.Store(0)
	m.CacheOpens.Store(0)
	m.CacheEvictions.Store(0)
	m.OpenCaches.Store(0)
	m.FootprintReductions.Store(0)
	m.LastOperationTime.Store(time.Time{})
}
