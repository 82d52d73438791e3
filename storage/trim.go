package storage

import (
	"sort"
	"time"
)

// GroupInfo describes one cache's file group as seen on disk.
type GroupInfo struct {
	BaseName string
	Size     int64
	ModTime  time.Time
}

// TrimStrategy orders file groups for deletion when the directory exceeds
// its footprint target. Groups are deleted from the front of the ordered
// slice until the target is met.
type TrimStrategy interface {
	// Name identifies the strategy in logs and diagnostics
	Name() string
	// Order sorts groups into deletion order, most expendable first
	Order(groups []GroupInfo)
}

// OldestFirst deletes the groups whose files were written longest ago.
// A group's age is the newest modification time among its files, so one
// recent write protects the whole group.
type OldestFirst struct{}

// Name implements TrimStrategy
func (OldestFirst) Name() string { return "oldest-first" }

// Order implements TrimStrategy
func (OldestFirst) Order(groups []GroupInfo) {
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].ModTime.Before(groups[j].ModTime)
	})
}

// LargestFirst deletes the groups occupying the most bytes, reclaiming the
// target with the fewest cache losses.
type LargestFirst struct{}

// Name implements TrimStrategy
func (LargestFirst) Name() string { return "largest-first" }

// Order implements TrimStrategy
func (LargestFirst) Order(groups []GroupInfo) {
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Size > groups[j].Size
	})
}
