package capture

import (
	"sync"
	"time"

	"meetscribe/internal/page"
)

// elementCache memoizes resolved region elements for a short TTL. The host
// page re-renders aggressively, so entries are cheap to rebuild but
// expensive to look up on every change burst.
type elementCache struct {
	mu      sync.Mutex
	doc     page.Document
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cachedElement
}

type cachedElement struct {
	el *page.Element
	at time.Time
}

func newElementCache(doc page.Document, ttl time.Duration) *elementCache {
	return &elementCache{
		doc:     doc,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cachedElement),
	}
}

// lookup returns the cached element while fresh, querying the document on
// miss or expiry. A nil result is not cached so a region appearing later
// is picked up immediately.
func (c *elementCache) lookup(selector string) *page.Element {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[selector]; ok && c.now().Sub(entry.at) < c.ttl {
		return entry.el
	}
	el := c.doc.Query(selector)
	if el != nil {
		c.entries[selector] = cachedElement{el: el, at: c.now()}
	} else {
		delete(c.entries, selector)
	}
	return el
}

// invalidate drops one cached selector.
func (c *elementCache) invalidate(selector string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, selector)
}

// clear drops every cached entry.
func (c *elementCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cachedElement)
}
