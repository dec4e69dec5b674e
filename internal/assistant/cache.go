package assistant

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

const (
	DefaultCacheTTL        = time.Hour
	DefaultCacheMaxEntries = 256
)

type resultCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	maxEntries int
	ttl        time.Duration
}

type cachedResult struct {
	result       json.RawMessage
	totalChunks  int
	failedChunks []int
}

type resultCacheEntry struct {
	key       string
	value     cachedResult
	expiresAt time.Time
}

func newResultCache(maxEntries int, ttl time.Duration) *resultCache {
	if maxEntries <= 0 || ttl <= 0 {
		return nil
	}

	return &resultCache{
		entries:    make(map[string]*list.Element, maxEntries),
		order:      list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

func resultCacheKey(presetName string, text string) string {
	h := sha256.New()
	h.Write([]byte(presetName))
	h.Write([]byte{0})
	h.Write([]byte(text))

	return hex.EncodeToString(h.Sum(nil))
}

func (c *resultCache) get(key string, now time.Time) (cachedResult, bool) {
	if c == nil || key == "" {
		return cachedResult{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return cachedResult{}, false
	}

	entry, ok := elem.Value.(*resultCacheEntry)
	if !ok {
		return cachedResult{}, false
	}

	if now.After(entry.expiresAt) {
		c.removeElement(elem)

		return cachedResult{}, false
	}

	c.order.MoveToFront(elem)

	return entry.value, true
}

func (c *resultCache) set(key string, value cachedResult, now time.Time) {
	if c == nil || key == "" || len(value.result) == 0 {
		return
	}

	expiresAt := now.Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry, castOk := elem.Value.(*resultCacheEntry)
		if !castOk {
			return
		}

		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)

		return
	}

	elem := c.order.PushFront(&resultCacheEntry{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
	})
	c.entries[key] = elem

	c.evictExpiredLocked(now)
	c.enforceSizeLimitLocked()
}

func (c *resultCache) evictExpiredLocked(now time.Time) {
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()

		if entry, ok := elem.Value.(*resultCacheEntry); ok && now.After(entry.expiresAt) {
			c.removeElement(elem)
		}
		elem = prev
	}
}

func (c *resultCache) enforceSizeLimitLocked() {
	for len(c.entries) > c.maxEntries {
		elem := c.order.Back()
		if elem == nil {
			return
		}
		c.removeElement(elem)
	}
}

func (c *resultCache) removeElement(elem *list.Element) {
	entry, ok := elem.Value.(*resultCacheEntry)
	if !ok {
		return
	}

	delete(c.entries, entry.key)
	c.order.Remove(elem)
}
