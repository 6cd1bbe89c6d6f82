// ABOUTME: Thread-safe TTL cache of webhook event ids
// ABOUTME: Drops platform redeliveries so one chat message never counts twice

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// DefaultTTL covers the platform's redelivery window with room to spare.
const DefaultTTL = 10 * time.Minute

// DefaultMaxSize bounds memory when a burst of events arrives.
const DefaultMaxSize = 100_000

type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache remembers event ids for a TTL. Insertion order is kept in a linked
// list so the oldest id is evicted in O(1) when the cache is full.
type Cache struct {
	mu      sync.Mutex
	ids     map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache and starts its background sweeper.
// Non-positive arguments fall back to DefaultTTL and DefaultMaxSize.
func New(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	c := &Cache{
		ids:     make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop(sweepInterval(ttl))
	return c
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl < time.Minute {
		return ttl
	}
	return time.Minute
}

// Seen reports whether id was already recorded within the TTL, and records it
// if not. An empty id is never considered seen.
func (c *Cache) Seen(id string) bool {
	if id == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.ids[id]; ok {
		if now.Sub(e.seenAt) < c.ttl {
			return true
		}
		// Expired: treat as new and refresh its position.
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return false
	}

	if len(c.ids) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.ids[id] = &entry{seenAt: now, element: c.order.PushBack(id)}
	return false
}

// Len returns the number of ids currently remembered, expired ones included
// until the next sweep.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	id, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.ids, id)
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep drops expired ids. The list is in insertion order, so it stops at the
// first id that is still fresh.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for el := c.order.Front(); el != nil; {
		id, _ := el.Value.(string)
		e := c.ids[id]
		if e != nil && now.Sub(e.seenAt) < c.ttl {
			return
		}
		next := el.Next()
		c.order.Remove(el)
		delete(c.ids, id)
		el = next
	}
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
