package brain

import (
	"container/list"
	"sync"
	"time"
)

// Web-search cache limits.
const (
	MaxWebCacheEntries = 50
	WebCacheTTL        = 5 * time.Minute
)

// WebCache is a small LRU of formatted search-result text keyed by the
// raw query. Entries expire after WebCacheTTL, but expired values can
// still be read as a stale fallback when the Search Provider is down.
type WebCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

type webItem struct {
	key   string
	value string
	ts    time.Time
}

// NewWebCache creates a web-search cache with the stock limits.
func NewWebCache() *WebCache {
	return &WebCache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: MaxWebCacheEntries,
		ttl:        WebCacheTTL,
		now:        time.Now,
	}
}

// Get returns a fresh cached result for the query, or "" on miss or
// expiry. Expired entries are kept so GetStale can still serve them;
// only the size cap evicts.
func (c *WebCache) Get(query string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[query]
	if !ok {
		return ""
	}
	item := el.Value.(*webItem)
	if c.now().Sub(item.ts) > c.ttl {
		return ""
	}
	c.order.MoveToFront(el)
	return item.value
}

// GetStale returns a cached result regardless of expiry, for use as a
// fallback when the provider fails. The second return reports presence.
func (c *WebCache) GetStale(query string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[query]
	if !ok {
		return "", false
	}
	return el.Value.(*webItem).value, true
}

// Put stores a formatted search result.
func (c *WebCache) Put(query, value string) {
	if value == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[query]; ok {
		item := el.Value.(*webItem)
		item.value = value
		item.ts = c.now()
		c.order.MoveToFront(el)
		return
	}

	c.entries[query] = c.order.PushFront(&webItem{key: query, value: value, ts: c.now()})

	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*webItem).key)
	}
}
