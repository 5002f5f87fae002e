// Package imgcache keeps a bounded number of decoded sprites in memory.
//
// Validation looks sprites up repeatedly (signatures, pairing geometry) and
// preview cycling re-reads the same files; decoding a large animated GIF
// each time would dominate the run. The cache is keyed by source path and
// evicts least-recently-used entries, bounding memory over collections of
// 1000+ files. Lookups are safe from concurrent workers.
package imgcache

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"badc0de.net/pkg/go-bullseye/sprite"
)

// DefaultCapacity bounds the cache at 50 decoded images.
const DefaultCapacity = 50

type Cache struct {
	lru *lru.Cache[string, *sprite.Sprite]

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache bounded at capacity decoded sprites. capacity <= 0
// selects DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l, err := lru.New[string, *sprite.Sprite](capacity)
	if err != nil {
		// Only reachable with capacity <= 0, excluded above.
		panic(err)
	}
	return &Cache{lru: l}
}

// Get returns the decoded sprite for path, decoding on miss. The returned
// sprite is shared: callers must treat it as read-only and Clone before
// mutating.
func (c *Cache) Get(path string) (*sprite.Sprite, error) {
	if s, ok := c.lru.Get(path); ok {
		c.hits.Add(1)
		return s, nil
	}
	c.misses.Add(1)

	s, err := sprite.DecodeFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cache decode of %s", path)
	}
	c.lru.Add(path, s)
	return s, nil
}

// Invalidate drops the entry for path, if cached. Reconciliation calls
// this after renaming or rewriting a file.
func (c *Cache) Invalidate(path string) {
	c.lru.Remove(path)
}

// Purge empties the cache.
func (c *Cache) Purge() {
	c.lru.Purge()
}

// Len returns the number of cached sprites.
func (c *Cache) Len() int { return c.lru.Len() }

// Stats returns hit and miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
