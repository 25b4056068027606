// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"github.com/student-go/lsmkv/filter"
	"github.com/student-go/lsmkv/internal/base"
	"github.com/student-go/lsmkv/internal/compaction"
	"github.com/student-go/lsmkv/sstable"
	"github.com/student-go/lsmkv/vfs"
)

// Options configures the behavior of Open (spec §6's recognized option
// set).
type Options struct {
	// CreateIfMissing allows Open to create the directory and an empty DB
	// when none exists.
	CreateIfMissing bool
	// ErrorIfExists makes Open fail if a DB already exists at the
	// directory.
	ErrorIfExists bool
	// ReadOnly makes Open skip acquiring the LOCK file and makes Ingest
	// fail. It does not reject Apply, Set or Delete, and Open still replays
	// the WAL and starts the background flush and compaction goroutines.
	ReadOnly bool
	// ParanoidChecks enables extra validation of on-disk state during
	// recovery (WAL batch header counts are cross-checked against the
	// entries actually decoded) at the cost of slower startup.
	ParanoidChecks bool

	// FS is the filesystem the engine reads and writes through; defaults
	// to vfs.Default.
	FS vfs.FS
	// Logger receives informational and error messages; defaults to
	// base.DefaultLogger.
	Logger base.Logger

	// Comparer orders user keys; defaults to base.DefaultComparer.
	Comparer *base.Comparer
	// FilterPolicy builds and probes per-table bloom filters; nil disables
	// filtering, and the engine remains correct (spec §1).
	FilterPolicy sstable.FilterPolicy

	// WriteBufferSize is the memtable size threshold that triggers a
	// rotation to an immutable memtable (default 4 MiB).
	WriteBufferSize int
	// MemTableStopWritesThreshold bounds how many queued (immutable +
	// mutable) memtables may exist before writes block for a flush.
	MemTableStopWritesThreshold int

	// BlockSize is the target uncompressed size of a data block (default
	// 4 KiB).
	BlockSize int
	// BlockRestartInterval is the number of entries between restart
	// points in a block (default 16).
	BlockRestartInterval int
	// Compression selects the block compressor; defaults to
	// sstable.NoCompression.
	Compression sstable.CompressionType
	// MaxFileSize bounds a compaction output table's size (default 2 MiB).
	MaxFileSize uint64

	// L0CompactionThreshold is defaulted by EnsureDefaults but not read:
	// the compaction picker scores level 0 against the fixed
	// compaction.L0CompactionTrigger, so setting this has no effect.
	L0CompactionThreshold int
	// L0SlowdownWritesThreshold throttles writers once level 0 grows past
	// this many files.
	L0SlowdownWritesThreshold int
	// L0StopWritesThreshold blocks writers entirely once level 0 grows
	// past this many files, until a compaction relieves it.
	L0StopWritesThreshold int

	// MaxOpenFiles bounds the table cache's file handle count (default
	// 1000).
	MaxOpenFiles int
	// BlockCacheSize bounds the number of decompressed data/index blocks
	// held in the block cache (default 8192), keyed per spec §4.6 by
	// {cache_id, offset} so blocks from different tables never collide.
	BlockCacheSize int
	// BytesPerSync is accepted but not used: no periodic background fsync
	// is performed, whatever its value.
	BytesPerSync int
}

// WriteOptions configures a single write.
type WriteOptions struct {
	// Sync requires the write to be fsynced to the log before returning.
	Sync bool
}

// Sync is the commonly used WriteOptions requesting a synchronous write.
var Sync = &WriteOptions{Sync: true}

// NoSync is the commonly used WriteOptions requesting an unsynchronized
// write.
var NoSync = &WriteOptions{Sync: false}

func (o *WriteOptions) sync() bool { return o != nil && o.Sync }

// ReadOptions configures a single read.
type ReadOptions struct {
	// VerifyChecksums forces every block read during this operation to be
	// checksum-verified even outside paranoid mode (block reads are
	// always verified in this engine, so this is accepted for API
	// compatibility with the spec's recognized option set but has no
	// additional effect).
	VerifyChecksums bool
	// Snapshot bounds reads to a sequence number captured earlier; nil
	// reads at the engine's current sequence number.
	Snapshot *Snapshot
}

// EnsureDefaults fills in zero-valued fields with their defaults. It
// returns o for chaining; a nil receiver allocates a fresh Options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.FS == nil {
		o.FS = vfs.Default
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger
	}
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
	if o.WriteBufferSize <= 0 {
		o.WriteBufferSize = 4 << 20
	}
	if o.MemTableStopWritesThreshold <= 0 {
		o.MemTableStopWritesThreshold = 2
	}
	if o.BlockSize <= 0 {
		o.BlockSize = 4096
	}
	if o.BlockRestartInterval <= 0 {
		o.BlockRestartInterval = 16
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = 2 << 20
	}
	if o.L0CompactionThreshold <= 0 {
		o.L0CompactionThreshold = compaction.L0CompactionTrigger
	}
	if o.L0SlowdownWritesThreshold <= 0 {
		o.L0SlowdownWritesThreshold = 8
	}
	if o.L0StopWritesThreshold <= 0 {
		o.L0StopWritesThreshold = 12
	}
	if o.MaxOpenFiles <= 0 {
		o.MaxOpenFiles = 1000
	}
	if o.BlockCacheSize <= 0 {
		o.BlockCacheSize = 8192
	}
	return o
}

func (o *Options) writerOptions() sstable.WriterOptions {
	return sstable.WriterOptions{
		BlockSize:        o.BlockSize,
		RestartInterval:  o.BlockRestartInterval,
		Compression:      o.Compression,
		Comparer:         o.Comparer,
		FilterPolicy:     o.FilterPolicy,
	}
}

func (o *Options) readerOptions(blockCache *sstable.BlockCache) sstable.ReaderOptions {
	return sstable.ReaderOptions{
		Comparer:     o.Comparer,
		FilterPolicy: o.FilterPolicy,
		BlockCache:   blockCache,
	}
}

// defaultFilterPolicy is offered for callers who want filtering without
// picking a policy themselves.
func defaultFilterPolicy() sstable.FilterPolicy {
	return filter.NewBloomPolicy()
}
