// seehuhn.de/go/pdfscrub - forensic scanning and cleaning of PDF files
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package cache implements an in-memory cache for encoded results.
//
// Entries expire after a fixed time to live.  When the total size of the
// stored values exceeds the byte budget, the least recently accessed
// entries are evicted first.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"seehuhn.de/go/pdfscrub/internal/digest"
)

type entry struct {
	data       []byte
	expires    time.Time
	lastAccess atomic.Int64 // UnixNano
}

// Stats summarizes the state of a cache.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
	Bytes     int64
}

// Cache maps digests to byte slices.  A Cache is safe for concurrent use.
type Cache struct {
	ttl    time.Duration
	budget int64
	now    func() time.Time

	mu    sync.RWMutex
	items map[digest.Sum]*entry
	bytes int64

	hits, misses, evictions atomic.Int64
}

// New creates a cache.  A ttl of 0 disables expiry, a budget of 0 disables
// the size limit.
func New(ttl time.Duration, budget int64) *Cache {
	return &Cache{
		ttl:    ttl,
		budget: budget,
		now:    time.Now,
		items:  make(map[digest.Sum]*entry),
	}
}

// Get returns the value stored under key.
func (c *Cache) Get(key digest.Sum) ([]byte, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if !e.expires.IsZero() && !now.Before(e.expires) {
		c.mu.Lock()
		if c.items[key] == e {
			c.remove(key, e)
		}
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}

	e.lastAccess.Store(now.UnixNano())
	c.hits.Add(1)
	return e.data, true
}

// Put stores data under key, replacing any previous value.  Values larger
// than the whole budget are not stored.  The cache keeps a reference to
// data, which must not be modified afterwards.
func (c *Cache) Put(key digest.Sum, data []byte) {
	size := int64(len(data))
	if c.budget > 0 && size > c.budget {
		return
	}

	now := c.now()
	e := &entry{data: data}
	if c.ttl > 0 {
		e.expires = now.Add(c.ttl)
	}
	e.lastAccess.Store(now.UnixNano())

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.items[key]; ok {
		c.remove(key, old)
	}
	c.purgeExpired(now)
	for c.budget > 0 && c.bytes+size > c.budget && len(c.items) > 0 {
		c.evictOldest()
	}
	c.items[key] = e
	c.bytes += size
}

// Remove deletes the value stored under key.
func (c *Cache) Remove(key digest.Sum) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		c.remove(key, e)
	}
}

// Stats returns the current cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n, b := len(c.items), c.bytes
	c.mu.RUnlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   n,
		Bytes:     b,
	}
}

// The following methods require c.mu to be held for writing.

func (c *Cache) remove(key digest.Sum, e *entry) {
	delete(c.items, key)
	c.bytes -= int64(len(e.data))
}

func (c *Cache) purgeExpired(now time.Time) {
	for key, e := range c.items {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			c.remove(key, e)
		}
	}
}

func (c *Cache) evictOldest() {
	var oldestKey digest.Sum
	var oldest *entry
	for key, e := range c.items {
		if oldest == nil || e.lastAccess.Load() < oldest.lastAccess.Load() {
			oldestKey, oldest = key, e
		}
	}
	if oldest != nil {
		c.remove(oldestKey, oldest)
		c.evictions.Add(1)
	}
}
