package dedup

import (
	"sync"
	"time"
)

// Cache is a time-windowed set of recently processed message IDs. Push
// delivery is at-least-once, so every background job asks the cache before
// touching a message; the cache answers at most once per ID per window.
//
// State is process-local only. A restart forgets everything, which is
// acceptable because the provider's notifications are not reliably idempotent
// either way.
type Cache struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

// New creates a cache that suppresses repeats within the given window.
func New(window time.Duration) *Cache {
	return &Cache{
		seen:   make(map[string]time.Time),
		window: window,
		now:    time.Now,
	}
}

// ShouldProcess reports whether messageID has not been seen within the window,
// marking it as seen when it answers true. Purge, check and insert happen
// under one lock so two concurrent jobs can never both observe "absent".
func (c *Cache) ShouldProcess(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, firstSeen := range c.seen {
		if now.Sub(firstSeen) > c.window {
			delete(c.seen, id)
		}
	}

	if _, ok := c.seen[messageID]; ok {
		return false
	}
	c.seen[messageID] = now
	return true
}

// Len returns the number of IDs currently tracked.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
