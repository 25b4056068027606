// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package manifest implements the version-set metadata state machine of
// spec §4.8: FileMetadata, Version, VersionEdit, and VersionSet, including
// the log-and-apply protocol that durably records incremental edits.
package manifest

import (
	"sync/atomic"

	"github.com/student-go/lsmkv/internal/base"
)

// FileMetadata describes one table file referenced by a Version.
type FileMetadata struct {
	FileNum  base.FileNum
	Size     uint64
	Smallest base.InternalKey
	Largest  base.InternalKey

	// refs counts Version references; a file with refs == 0 that is not
	// open for build is eligible for deletion (spec §3 invariant).
	refs int32

	// AllowedSeeks drives the seek-based compaction trigger (spec §4.9): a
	// point lookup that probes this file without finding the key
	// decrements it; at zero the file is a compaction candidate.
	AllowedSeeks int64
}

// Ref increments the file's reference count.
func (f *FileMetadata) Ref() { atomic.AddInt32(&f.refs, 1) }

// Unref decrements the file's reference count, returning the count after
// the decrement.
func (f *FileMetadata) Unref() int32 { return atomic.AddInt32(&f.refs, -1) }

// Refs returns the current reference count.
func (f *FileMetadata) Refs() int32 { return atomic.LoadInt32(&f.refs) }

// InitAllowedSeeks sets AllowedSeeks to max(100, size/16KiB), the seek
// budget a freshly created L0 file starts with (spec §4.9).
func (f *FileMetadata) InitAllowedSeeks() {
	seeks := int64(f.Size / (16 * 1024))
	if seeks < 100 {
		seeks = 100
	}
	atomic.StoreInt64(&f.AllowedSeeks, seeks)
}

// RecordSeekMiss decrements AllowedSeeks for a point lookup that probed this
// file and found nothing, returning the post-decrement value. A live
// Version is shared by every concurrent reader, so the decrement must be
// atomic rather than a plain f.AllowedSeeks--.
func (f *FileMetadata) RecordSeekMiss() int64 {
	return atomic.AddInt64(&f.AllowedSeeks, -1)
}

// SeeksRemaining reads AllowedSeeks; like RecordSeekMiss, it must go through
// atomic since the field is mutated concurrently by reader goroutines.
func (f *FileMetadata) SeeksRemaining() int64 {
	return atomic.LoadInt64(&f.AllowedSeeks)
}
