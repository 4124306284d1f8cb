package ttscache

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultMaxEntries bounds memory: synthesized audio clips are a few
	// hundred KB each.
	DefaultMaxEntries = 100
	// DefaultEvictBatch entries are dropped, oldest first, when full.
	DefaultEvictBatch = 20
	// DefaultTTL after which an entry is considered stale.
	DefaultTTL = 15 * time.Minute
)

type entry struct {
	audio    []byte
	storedAt time.Time
}

// Cache is a bounded in-memory store for synthesized audio, keyed by
// (text, voice). TTL is checked lazily on Get; Purge sweeps eagerly.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxEntries int
	evictBatch int
	ttl        time.Duration
	now        func() time.Time
}

func New() *Cache {
	return &Cache{
		entries:    map[string]*entry{},
		maxEntries: DefaultMaxEntries,
		evictBatch: DefaultEvictBatch,
		ttl:        DefaultTTL,
		now:        time.Now,
	}
}

// Key derives the cache key for a (text, voice) pair.
func Key(text, voiceID string) string {
	sum := md5.Sum([]byte(voiceID + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.audio, true
}

func (c *Cache) Put(key string, audio []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxEntries {
		c.evictOldest(c.evictBatch)
	}
	c.entries[key] = &entry{audio: audio, storedAt: c.now()}
}

// Purge drops all expired entries and returns how many were removed.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	cutoff := c.now().Add(-c.ttl)
	for k, e := range c.entries {
		if e.storedAt.Before(cutoff) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes the n oldest entries. Callers hold the lock.
func (c *Cache) evictOldest(n int) {
	type aged struct {
		key      string
		storedAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{k, e.storedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].storedAt.Before(all[j].storedAt) })
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
}
