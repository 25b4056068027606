// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// blockCacheKey identifies a decompressed block by the table it came from
// (cacheID, assigned per open Reader) and its offset within that table
// (spec §4.6's "{cache_id, offset}" key).
type blockCacheKey struct {
	id     uint64
	offset uint64
}

// BlockCache caches decompressed data and index blocks across every table
// a Reader opens it for, bounding re-decompression of hot blocks the same
// way tableCache bounds open file handles (spec §5's "table cache, block
// cache (sharded LRU)"; a single mutex-protected LRU stands in for the
// sharding here, the same simplification tableCache already makes).
type BlockCache struct {
	mu  sync.Mutex
	lru *lru.Cache[blockCacheKey, block]

	nextID uint64
	hits   uint64
	misses uint64
}

// NewBlockCache returns a block cache holding up to capacity decompressed
// blocks.
func NewBlockCache(capacity int) *BlockCache {
	c, err := lru.New[blockCacheKey, block](capacity)
	if err != nil {
		// capacity is always a positive int from Options.EnsureDefaults; this
		// cannot happen outside a misconfigured size argument.
		panic(err)
	}
	return &BlockCache{lru: c}
}

// newCacheID returns a fresh id distinguishing one open Reader's blocks
// from every other table's, including a prior Reader for the same
// FileNum that has since been evicted and reopened.
func (c *BlockCache) newCacheID() uint64 {
	return atomic.AddUint64(&c.nextID, 1)
}

func (c *BlockCache) get(key blockCacheKey) (block, bool) {
	c.mu.Lock()
	b, ok := c.lru.Get(key)
	c.mu.Unlock()
	if ok {
		atomic.AddUint64(&c.hits, 1)
	} else {
		atomic.AddUint64(&c.misses, 1)
	}
	return b, ok
}

func (c *BlockCache) insert(key blockCacheKey, b block) {
	c.mu.Lock()
	c.lru.Add(key, b)
	c.mu.Unlock()
}

// Hits returns the number of lookups the cache satisfied without reading
// the table file.
func (c *BlockCache) Hits() uint64 { return atomic.LoadUint64(&c.hits) }

// Misses returns the number of lookups that had to read (and decompress)
// the block from the table file. A filter-rejected point lookup never
// reaches the cache at all, so it is provably absent from both Hits and
// Misses (spec §8's negative-lookup-never-touches-a-block property).
func (c *BlockCache) Misses() uint64 { return atomic.LoadUint64(&c.misses) }
