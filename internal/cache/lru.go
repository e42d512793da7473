// Package cache provides a generic LRU cache bounded by both total byte
// cost and entry count, plus a Manager composing the three caches snapgloss
// keeps hot (images, documents, thumbnails) and a MemoryWatcher that clears
// them in tiers under heap pressure.
package cache

import (
	"container/list"
	"sync"
)

// Config bounds a single cache. A zero or negative budget disables that
// axis; the Manager always sets both.
type Config struct {
	// MaxBytes is the total cost budget across all live entries.
	MaxBytes int64

	// MaxEntries is the live entry count budget.
	MaxEntries int
}

// Stats is a point-in-time snapshot of cache occupancy and traffic.
type Stats struct {
	Entries    int    `json:"entries"`
	Bytes      int64  `json:"bytes"`
	MaxEntries int    `json:"max_entries"`
	MaxBytes   int64  `json:"max_bytes"`
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Evictions  uint64 `json:"evictions"`
}

type entry[K comparable, V any] struct {
	key   K
	value V
	cost  int64
}

// Cache is a key/value store with least-recently-used eviction under dual
// budgets: eviction runs after every Set while either the byte budget or
// the entry budget is exceeded, dropping the coldest entry each round.
// Get refreshes an entry's recency. Recency is a strict total order (the
// access list), so eviction never has to break a tie.
//
// Cached values are treated as immutable by convention; callers that need
// to mutate must copy first.
type Cache[K comparable, V any] struct {
	mu    sync.Mutex
	cfg   Config
	items map[K]*list.Element
	order *list.List // front is most recently used
	bytes int64

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates an empty cache with the given budgets.
func New[K comparable, V any](cfg Config) *Cache[K, V] {
	return &Cache[K, V]{
		cfg:   cfg,
		items: make(map[K]*list.Element),
		order: list.New(),
	}
}

// Get returns the value for key and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return el.Value.(*entry[K, V]).value, true
}

// Set stores value under key at the given byte cost, replacing any existing
// entry (its old cost is retired first, never double counted), then evicts
// cold entries until both budgets are satisfied.
//
// A value whose cost alone exceeds the byte budget is not cached: storing
// it would only evict every other entry and then itself. Any existing entry
// under that key is dropped rather than left stale.
func (c *Cache[K, V]) Set(key K, value V, cost int64) {
	if cost < 0 {
		cost = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.MaxBytes > 0 && cost > c.cfg.MaxBytes {
		if el, ok := c.items[key]; ok {
			c.removeElementLocked(el)
		}
		return
	}

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry[K, V])
		c.bytes -= ent.cost
		ent.value = value
		ent.cost = cost
		c.bytes += cost
		c.order.MoveToFront(el)
	} else {
		el := c.order.PushFront(&entry[K, V]{key: key, value: value, cost: cost})
		c.items[key] = el
		c.bytes += cost
	}

	for c.overBudgetLocked() {
		back := c.order.Back()
		if back == nil {
			return
		}
		c.removeElementLocked(back)
		c.evictions++
	}
}

// Remove drops the entry for key if present.
func (c *Cache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElementLocked(el)
	}
}

// Resize replaces the budgets and immediately evicts cold entries until the
// new budgets are satisfied. Shrinking a budget below current occupancy
// evicts; growing never does.
func (c *Cache[K, V]) Resize(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg = cfg
	for c.overBudgetLocked() {
		back := c.order.Back()
		if back == nil {
			return
		}
		c.removeElementLocked(back)
		c.evictions++
	}
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element)
	c.order.Init()
	c.bytes = 0
}

// Len returns the live entry count.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Bytes returns the summed cost of live entries.
func (c *Cache[K, V]) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Stats returns a snapshot of occupancy and hit/miss/eviction counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:    c.order.Len(),
		Bytes:      c.bytes,
		MaxEntries: c.cfg.MaxEntries,
		MaxBytes:   c.cfg.MaxBytes,
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
	}
}

func (c *Cache[K, V]) overBudgetLocked() bool {
	if c.cfg.MaxEntries > 0 && c.order.Len() > c.cfg.MaxEntries {
		return true
	}
	if c.cfg.MaxBytes > 0 && c.bytes > c.cfg.MaxBytes {
		return true
	}
	return false
}

func (c *Cache[K, V]) removeElementLocked(el *list.Element) {
	ent := el.Value.(*entry[K, V])
	c.order.Remove(el)
	delete(c.items, ent.key)
	c.bytes -= ent.cost
}
