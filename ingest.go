// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/student-go/lsmkv/internal/base"
	"github.com/student-go/lsmkv/internal/manifest"
	"github.com/student-go/lsmkv/internal/memtable"
	"github.com/student-go/lsmkv/sstable"
	"github.com/student-go/lsmkv/vfs"
)

// Ingest moves a set of existing sstables into the DB, assigning them a
// single run of new sequence numbers and installing them at the lowest
// level each doesn't overlap (spec §4's bulk-load path, scoped down from
// the teacher's range-key/range-deletion-aware version to this engine's
// Value/Delete-only model). Ingestion is atomic: either every table is
// installed or none is, and on success every input path is removed.
//
// The steps, in order: load each table's metadata, sort by smallest key and
// verify the inputs don't overlap each other, link (or copy) them into the
// DB directory, flush the mutable/immutable memtables if any input
// overlaps one of them, assign sequence numbers, and install the tables
// with a single VersionEdit.
func (d *DB) Ingest(paths []string) error {
	d.mu.Lock()
	if d.mu.closed {
		d.mu.Unlock()
		return base.ErrClosed
	}
	if d.opts.ReadOnly {
		d.mu.Unlock()
		return errors.New("lsmkv: Ingest called on a read-only DB")
	}
	fileNums := make([]base.FileNum, len(paths))
	for i := range paths {
		fileNums[i] = d.versions.NextFileNum()
	}
	d.mu.Unlock()

	meta := make([]*manifest.FileMetadata, len(paths))
	for i, path := range paths {
		m, err := ingestLoad1(d.fs, d.opts, path, fileNums[i])
		if err != nil {
			return errors.Wrapf(err, "lsmkv: loading %s for ingestion", path)
		}
		meta[i] = m
	}

	if err := ingestSortAndVerify(d.cmp, meta, paths); err != nil {
		return err
	}

	if err := ingestLink(d.fs, d.dirname, paths, meta); err != nil {
		return err
	}

	if err := d.ingestFlushOverlapping(meta); err != nil {
		return err
	}

	d.mu.Lock()
	seqNum := d.versions.LastSeqNum() + 1
	d.versions.SetLastSeqNum(seqNum + base.SeqNum(len(meta)) - 1)
	d.mu.Unlock()
	ingestUpdateSeqNum(seqNum, meta)

	v := d.versions.Current()
	ve := &manifest.VersionEdit{}
	for _, m := range meta {
		ve.AddFile(ingestTargetLevel(v, m), m)
	}
	d.versions.Unref(v)
	if err := d.versions.LogAndApply(ve); err != nil {
		return err
	}

	for _, path := range paths {
		if err := d.fs.Remove(path); err != nil {
			d.opts.Logger.Errorf("lsmkv: ingest: removing original file %s: %v", path, err)
		}
	}
	d.compactCond.Signal()
	return nil
}

// ingestLoad1 opens path as an sstable under fileNum's identity and derives
// the FileMetadata needed to install it: its size and key bounds, read off
// the table's first and last entries since sstable.Reader exposes no
// direct accessor for them (mirrors repair.go's readTableMetadata).
func ingestLoad1(fs vfs.FS, opts *Options, path string, fileNum base.FileNum) (*manifest.FileMetadata, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	r, err := sstable.NewReader(f, stat.Size(), opts.readerOptions(nil))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	it, err := r.NewIter()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	it.First()
	if !it.Valid() {
		return nil, errors.New("lsmkv: empty sstable")
	}
	smallest := it.Key()
	if err := ingestValidateKey(smallest); err != nil {
		return nil, err
	}

	it.Last()
	if !it.Valid() {
		return nil, errors.New("lsmkv: empty sstable")
	}
	largest := it.Key()
	if err := ingestValidateKey(largest); err != nil {
		return nil, err
	}

	meta := &manifest.FileMetadata{
		FileNum:  fileNum,
		Size:     uint64(stat.Size()),
		Smallest: smallest,
		Largest:  largest,
	}
	meta.InitAllowedSeeks()
	return meta, nil
}

// ingestValidateKey requires an ingested table's keys to carry sequence
// number 0, the convention sstable.Writer uses for externally-built tables
// since their final sequence number isn't known until ingestion time.
func ingestValidateKey(key base.InternalKey) error {
	if key.SeqNum() != 0 {
		return base.CorruptionErrorf("lsmkv: external sstable has non-zero seqnum")
	}
	return nil
}

// ingestSortAndVerify orders meta (and the matching paths, kept in step) by
// smallest user key and confirms no two input tables' ranges overlap;
// ingested tables all receive sequence numbers from the same contiguous
// run, so overlapping ranges would leave two entries for the same key with
// no defined precedence.
func ingestSortAndVerify(cmp base.Compare, meta []*manifest.FileMetadata, paths []string) error {
	if len(meta) <= 1 {
		return nil
	}
	idx := make([]int, len(meta))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		return cmp(meta[idx[i]].Smallest.UserKey, meta[idx[j]].Smallest.UserKey) < 0
	})
	sortedMeta := make([]*manifest.FileMetadata, len(meta))
	sortedPaths := make([]string, len(paths))
	for i, j := range idx {
		sortedMeta[i], sortedPaths[i] = meta[j], paths[j]
	}
	copy(meta, sortedMeta)
	copy(paths, sortedPaths)

	for i := 1; i < len(meta); i++ {
		if cmp(meta[i-1].Largest.UserKey, meta[i].Smallest.UserKey) >= 0 {
			return errors.New("lsmkv: ingested sstables have overlapping ranges")
		}
	}
	return nil
}

// ingestLink moves each ingested table into the DB directory under its
// assigned file number, preferring a hard link (so the source filesystem
// location can be removed independently) and falling back to ReuseForWrite
// when the filesystem refuses to link (e.g. across devices).
func ingestLink(fs vfs.FS, dirname string, paths []string, meta []*manifest.FileMetadata) error {
	for i, path := range paths {
		name := fs.PathJoin(dirname, base.MakeFilename(base.FileTypeTable, meta[i].FileNum))
		if err := fs.Link(path, name); err != nil {
			if _, err2 := fs.ReuseForWrite(path, name); err2 != nil {
				return errors.Wrapf(err, "lsmkv: linking %s into DB directory", path)
			}
		}
	}
	return nil
}

// ingestUpdateSeqNum assigns meta[i] the sequence number seqNum+i and fixes
// up its bounds to carry that sequence number; the on-disk table itself is
// left untouched, since sstable.Reader.Get/NewIter read the trailer off the
// FileMetadata-independent block contents, not these bounds.
func ingestUpdateSeqNum(seqNum base.SeqNum, meta []*manifest.FileMetadata) {
	for _, m := range meta {
		m.Smallest = base.MakeInternalKey(m.Smallest.UserKey, seqNum, m.Smallest.Kind())
		m.Largest = base.MakeInternalKey(m.Largest.UserKey, seqNum, m.Largest.Kind())
		seqNum++
	}
}

// memtableOverlaps reports whether any key in mem falls within m's bounds.
func memtableOverlaps(mem *memtable.Memtable, cmp base.Compare, m *manifest.FileMetadata) bool {
	it := mem.NewIter()
	it.SeekGE(base.MakeInternalKey(m.Smallest.UserKey, base.SeqNumMax, base.InternalKeyKindMax))
	return it.Valid() && cmp(it.Key().UserKey, m.Largest.UserKey) <= 0
}

// ingestFlushOverlapping forces a synchronous flush if any queued or
// mutable memtable holds a key within any ingested table's range, so the
// ingested data (which receives a higher sequence number than anything
// already applied) is never shadowed by stale placement ordering.
func (d *DB) ingestFlushOverlapping(meta []*manifest.FileMetadata) error {
	d.mu.Lock()
	overlaps := false
outer:
	for _, m := range meta {
		if memtableOverlaps(d.mu.mem.mutable, d.cmp, m) {
			overlaps = true
			break
		}
		for _, im := range d.mu.mem.queue {
			if memtableOverlaps(im, d.cmp, m) {
				overlaps = true
				break outer
			}
		}
	}
	d.mu.Unlock()
	if !overlaps {
		return nil
	}
	return d.Flush()
}

// ingestTargetLevel returns the lowest level (0 meaning L0) at which m can
// be installed without overlapping any file already there. The search is
// contiguous from level 1 upward: the first level with an overlap stops
// the search, and the deepest overlap-free level reached is the answer.
// This is simpler than the teacher's version (which also checks for data
// overlap against range-deletion tombstones), but is exact here since this
// engine's tables hold only point keys.
func ingestTargetLevel(v *manifest.Version, m *manifest.FileMetadata) int {
	if len(v.Overlaps(0, m.Smallest.UserKey, m.Largest.UserKey)) > 0 {
		return 0
	}
	target := 0
	for level := 1; level < manifest.NumLevels; level++ {
		if len(v.Overlaps(level, m.Smallest.UserKey, m.Largest.UserKey)) > 0 {
			break
		}
		target = level
	}
	return target
}
