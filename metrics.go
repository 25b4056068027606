// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cockroachdb/redact"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/student-go/lsmkv/sstable"
)

// Metrics reports a snapshot of a DB's internal counters: flush and
// compaction counts (compactions also per level), table cache and block
// cache hit rates, and commit latency (spec §9's observability surface).
// Every exported method except SafeFormat is safe for concurrent use;
// SafeFormat reads the counters without locking, and String calls it with
// the lock held.
type Metrics struct {
	mu sync.Mutex

	flushes      int64
	flushedBytes uint64

	compactions      int64
	compactedByLevel [7]int64

	cacheHits   int64
	cacheMisses int64

	blockCache *sstable.BlockCache

	commitLatency *hdrhistogram.Histogram

	promFlushes          prometheus.Counter
	promCompactions      prometheus.Counter
	promCacheHits        prometheus.Counter
	promCacheMisses      prometheus.Counter
	promCommitNanos      prometheus.Histogram
	promBlockCacheHits   prometheus.CounterFunc
	promBlockCacheMisses prometheus.CounterFunc
}

// newMetrics allocates a Metrics with fresh, unregistered prometheus
// collectors; a caller that exposes a registry calls Registry to obtain
// them for registration.
func newMetrics() *Metrics {
	return &Metrics{
		// 1 microsecond to 10 seconds, matching the range the teacher's own
		// request-latency histograms use.
		commitLatency: hdrhistogram.New(1, 10e6, 3),

		promFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lsmkv_flushes_total",
			Help: "Number of memtables flushed to level 0.",
		}),
		promCompactions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lsmkv_compactions_total",
			Help: "Number of compactions run.",
		}),
		promCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lsmkv_table_cache_hits_total",
			Help: "Number of table cache lookups that found an open reader.",
		}),
		promCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lsmkv_table_cache_misses_total",
			Help: "Number of table cache lookups that had to open a reader.",
		}),
		promCommitNanos: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lsmkv_commit_latency_seconds",
			Help:    "Latency of Apply, from WAL append through memtable insert.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// setBlockCache wires the DB's shared block cache in so its hit/miss
// counters are exposed as prometheus CounterFuncs and included in String.
// Called once from Open, before the cache sees any traffic.
func (m *Metrics) setBlockCache(bc *sstable.BlockCache) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockCache = bc
	m.promBlockCacheHits = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "lsmkv_block_cache_hits_total",
		Help: "Number of block reads satisfied from the block cache.",
	}, func() float64 { return float64(bc.Hits()) })
	m.promBlockCacheMisses = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "lsmkv_block_cache_misses_total",
		Help: "Number of block reads that missed the block cache and hit disk.",
	}, func() float64 { return float64(bc.Misses()) })
}

// Registry returns every collector so a caller can register them with its
// own *prometheus.Registry; newMetrics deliberately doesn't register against
// the global default registry, since an embedded engine may be opened more
// than once in the same process.
func (m *Metrics) Registry() []prometheus.Collector {
	m.mu.Lock()
	defer m.mu.Unlock()
	collectors := []prometheus.Collector{
		m.promFlushes, m.promCompactions, m.promCacheHits, m.promCacheMisses, m.promCommitNanos,
	}
	if m.promBlockCacheHits != nil {
		collectors = append(collectors, m.promBlockCacheHits, m.promBlockCacheMisses)
	}
	return collectors
}

// BlockCacheHits and BlockCacheMisses report the block cache's lifetime
// hit/miss counts (spec §8's testable property that a filter-rejected
// negative lookup never touches the block cache: such a lookup leaves both
// unchanged).
func (m *Metrics) BlockCacheHits() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blockCache == nil {
		return 0
	}
	return m.blockCache.Hits()
}

func (m *Metrics) BlockCacheMisses() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blockCache == nil {
		return 0
	}
	return m.blockCache.Misses()
}

func (m *Metrics) recordFlush(size uint64) {
	m.mu.Lock()
	m.flushes++
	m.flushedBytes += size
	m.mu.Unlock()
	m.promFlushes.Inc()
}

func (m *Metrics) recordCompaction(startLevel, outputLevel int) {
	m.mu.Lock()
	m.compactions++
	m.compactedByLevel[outputLevel]++
	m.mu.Unlock()
	m.promCompactions.Inc()
}

func (m *Metrics) recordCacheHit() {
	m.mu.Lock()
	m.cacheHits++
	m.mu.Unlock()
	m.promCacheHits.Inc()
}

func (m *Metrics) recordCacheMiss() {
	m.mu.Lock()
	m.cacheMisses++
	m.mu.Unlock()
	m.promCacheMisses.Inc()
}

func (m *Metrics) recordCommit(d time.Duration) {
	m.mu.Lock()
	_ = m.commitLatency.RecordValue(d.Microseconds())
	m.mu.Unlock()
	m.promCommitNanos.Observe(d.Seconds())
}

var _ redact.SafeFormatter = (*Metrics)(nil)

// SafeFormat implements redact.SafeFormatter. Every field Metrics reports is
// an internal operational counter or latency, never user key/value bytes,
// so each is marked redact.Safe and survives unredacted through a
// redaction-aware log sink (mirrors the teacher's own Metrics.SafeFormat,
// which marks its per-level counts and scores safe the same way).
func (m *Metrics) SafeFormat(w redact.SafePrinter, _ rune) {
	hitRate := 0.0
	if total := m.cacheHits + m.cacheMisses; total > 0 {
		hitRate = 100 * float64(m.cacheHits) / float64(total)
	}
	blockHitRate := 0.0
	if m.blockCache != nil {
		if h, miss := m.blockCache.Hits(), m.blockCache.Misses(); h+miss > 0 {
			blockHitRate = 100 * float64(h) / float64(h+miss)
		}
	}
	w.Printf("flushes %d (%d bytes)  compactions %d  table cache %.1f%% hit  block cache %.1f%% hit  commit p50/p99 %d/%dus",
		redact.Safe(m.flushes), redact.Safe(m.flushedBytes), redact.Safe(m.compactions),
		redact.Safe(hitRate), redact.Safe(blockHitRate),
		redact.Safe(m.commitLatency.ValueAtQuantile(50)), redact.Safe(m.commitLatency.ValueAtQuantile(99)))
}

// String formats a human-readable summary, in the compact table style the
// teacher's own Metrics.String uses for operational dashboards.
func (m *Metrics) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return redact.StringWithoutMarkers(m)
}
