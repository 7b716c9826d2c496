package fetch

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Memory cache defaults.
const (
	DefaultCacheEntries = 500
	DefaultCacheTTL     = time.Hour
)

type cacheEntry struct {
	key     string
	resp    *Response
	expires time.Time
}

// MemoryCache is an LRU response cache with a per-entry TTL.
// It is safe for concurrent use.
type MemoryCache struct {
	mu      sync.Mutex
	max     int
	ttl     time.Duration
	ll      *list.List
	entries map[string]*list.Element
	now     func() time.Time
}

// NewMemoryCache creates a cache holding at most maxEntries responses for ttl.
// Non-positive arguments select the defaults.
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		max:     maxEntries,
		ttl:     ttl,
		ll:      list.New(),
		entries: make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Get implements Cache.
func (m *MemoryCache) Get(_ context.Context, rawURL string) (*Response, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[rawURL]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*cacheEntry) //nolint:forcetypeassert // only *cacheEntry is stored
	if m.now().After(ent.expires) {
		m.ll.Remove(el)
		delete(m.entries, rawURL)
		return nil, false
	}
	m.ll.MoveToFront(el)
	return ent.resp, true
}

// Put implements Cache.
func (m *MemoryCache) Put(_ context.Context, rawURL string, resp *Response) {
	if resp == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[rawURL]; ok {
		ent := el.Value.(*cacheEntry) //nolint:forcetypeassert // only *cacheEntry is stored
		ent.resp = resp
		ent.expires = m.now().Add(m.ttl)
		m.ll.MoveToFront(el)
		return
	}

	el := m.ll.PushFront(&cacheEntry{key: rawURL, resp: resp, expires: m.now().Add(m.ttl)})
	m.entries[rawURL] = el
	for m.ll.Len() > m.max {
		oldest := m.ll.Back()
		m.ll.Remove(oldest)
		delete(m.entries, oldest.Value.(*cacheEntry).key) //nolint:forcetypeassert // only *cacheEntry is stored
	}
}

// Len returns the number of cached entries, including expired ones not yet evicted.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}
