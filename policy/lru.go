// Package policy provides the bounded recency container the collection uses
// to manage open cache handles. Evicting an entry surfaces its value so the
// owner can close it; eviction never touches anything on disk.
package policy

import (
	"container/list"
	"sync"
)

// DefaultCapacity is the open-handle bound used when none is configured.
const DefaultCapacity = 100

// LRU is a fixed-capacity least-recently-used container. All methods are
// safe for concurrent use.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	items    map[K]*list.Element
	order    *list.List
	capacity int
}

type lruItem[K comparable, V any] struct {
	key   K
	value V
}

// NewLRU creates an LRU holding at most capacity entries. A non-positive
// capacity falls back to DefaultCapacity.
func NewLRU[K comparable, V any](capacity int) *LRU[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LRU[K, V]{
		items:    make(map[K]*list.Element),
		order:    list.New(),
		capacity: capacity,
	}
}

// Get returns the value stored under key and marks it most recently used.
func (l *LRU[K, V]) Get(key K) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	element, exists := l.items[key]
	if !exists {
		var zero V
		return zero, false
	}
	l.order.MoveToFront(element)
	return element.Value.(*lruItem[K, V]).value, true
}

// Peek returns the value stored under key without refreshing recency.
func (l *LRU[K, V]) Peek(key K) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	element, exists := l.items[key]
	if !exists {
		var zero V
		return zero, false
	}
	return element.Value.(*lruItem[K, V]).value, true
}

// Put inserts or refreshes key and reports the entry that was evicted to
// make room, if any. The caller owns the evicted value.
func (l *LRU[K, V]) Put(key K, value V) (evictedKey K, evictedValue V, evicted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if element, exists := l.items[key]; exists {
		element.Value.(*lruItem[K, V]).value = value
		l.order.MoveToFront(element)
		return
	}

	if len(l.items) >= l.capacity {
		if back := l.order.Back(); back != nil {
			item := back.Value.(*lruItem[K, V])
			l.order.Remove(back)
			delete(l.items, item.key)
			evictedKey, evictedValue, evicted = item.key, item.value, true
		}
	}

	l.items[key] = l.order.PushFront(&lruItem[K, V]{key: key, value: value})
	return
}

// Remove deletes key and returns the value it held.
func (l *LRU[K, V]) Remove(key K) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	element, exists := l.items[key]
	if !exists {
		var zero V
		return zero, false
	}
	item := element.Value.(*lruItem[K, V])
	l.order.Remove(element)
	delete(l.items, key)
	return item.value, true
}

// RemoveOldest evicts the least recently used entry and returns it.
func (l *LRU[K, V]) RemoveOldest() (K, V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	back := l.order.Back()
	if back == nil {
		var zeroK K
		var zeroV V
		return zeroK, zeroV, false
	}
	item := back.Value.(*lruItem[K, V])
	l.order.Remove(back)
	delete(l.items, item.key)
	return item.key, item.value, true
}

// Drain removes every entry and returns the values, oldest first. The
// caller owns them all.
func (l *LRU[K, V]) Drain() []V {
	l.mu.Lock()
	defer l.mu.Unlock()

	values := make([]V, 0, len(l.items))
	for element := l.order.Back(); element != nil; element = element.Prev() {
		values = append(values, element.Value.(*lruItem[K, V]).value)
	}
	l.items = make(map[K]*list.Element)
	l.order = list.New()
	return values
}

// Len returns the number of held entries
func (l *LRU[K, V]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

// Capacity returns the maximum number of entries the container holds
func (l *LRU[K, V]) Capacity() int {
	return l.capacity
}
