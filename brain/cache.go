package brain

import (
	"container/list"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"
)

// Response cache limits. Oversized replies (typically large generated
// code) are never cached.
const (
	MaxCacheEntries = 500
	MaxReplyLen     = 15000
)

// ResponseCache is an in-memory LRU of final reply text keyed by
// (user, message, context summary). Repeated questions cost zero tokens.
// No TTL; eviction is by capacity only.
type ResponseCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = most recent
	maxEntries int
}

type cacheItem struct {
	key   string
	value string
}

// NewResponseCache creates a cache bounded at MaxCacheEntries.
func NewResponseCache() *ResponseCache {
	return &ResponseCache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: MaxCacheEntries,
	}
}

// CacheKey derives the cache identity from user, message, and the
// context summary. Any of them differing produces a different key.
func CacheKey(userID, message, summary string) string {
	combined := userID + "|" + strings.TrimSpace(message) + "|" + strings.TrimSpace(summary)
	sum := md5.Sum([]byte(combined))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached reply for the key, or "" on miss.
func (c *ResponseCache) Get(userID, message, summary string) string {
	key := CacheKey(userID, message, summary)

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return ""
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheItem).value
}

// Put stores a reply. Empty or oversized replies are ignored.
func (c *ResponseCache) Put(userID, message, summary, reply string) {
	if reply == "" || len(reply) > MaxReplyLen {
		return
	}
	key := CacheKey(userID, message, summary)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheItem).value = reply
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&cacheItem{key: key, value: reply})

	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheItem).key)
	}
}

// Len returns the number of cached entries.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear empties the cache.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}
