package exo

import (
	"container/list"
	"sync"
)

// PlanCache caches parsed operation documents keyed by the query hash supplied
// in the request payload. A hit skips parsing of the document; arguments are
// still validated on every request. The cached value is immutable and shared
// across requests.
//
// Implementations must be safe for concurrent use.
type PlanCache interface {
	// Get retrieves a plan from the cache. Returns nil if the key is absent.
	Get(key string) any

	// Set stores a plan in the cache.
	Set(key string, plan any)
}

// NewLRUPlanCache returns an in-memory PlanCache bounded to size entries with
// least-recently-used eviction. A size of zero disables caching.
func NewLRUPlanCache(size int) PlanCache {
	return &lruPlanCache{
		size:    size,
		entries: make(map[string]*list.Element, size),
		order:   list.New(),
	}
}

type lruPlanCache struct {
	mu      sync.Mutex
	size    int
	entries map[string]*list.Element
	order   *list.List
}

type lruEntry struct {
	key  string
	plan any
}

func (c *lruPlanCache) Get(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry).plan
}

func (c *lruPlanCache) Set(key string, plan any) {
	if c.size == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*lruEntry).plan = plan
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&lruEntry{key: key, plan: plan})
	for c.order.Len() > c.size {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.entries, last.Value.(*lruEntry).key)
	}
}
