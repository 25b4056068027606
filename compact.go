// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"github.com/cockroachdb/errors"
	"github.com/student-go/lsmkv/internal/base"
	"github.com/student-go/lsmkv/internal/compaction"
	"github.com/student-go/lsmkv/internal/manifest"
	"github.com/student-go/lsmkv/sstable"
	"github.com/student-go/lsmkv/vfs"
)

// compactLoop is the single background compaction worker: it asks the
// picker for the next compaction against the current Version, runs it, and
// installs the resulting VersionEdit, looping until the picker reports
// nothing left to do, then waits to be signaled again (spec §4.9, §9).
func (d *DB) compactLoop() {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if d.mu.closed {
			d.mu.Unlock()
			return
		}
		v := d.versions.Current()
		seekFile, seekLevel := findSeekCompactionFile(v)
		c, ok := d.picker.Pick(v, seekFile, seekLevel)
		d.versions.Unref(v)
		if !ok {
			d.compactCond.Wait()
			d.mu.Unlock()
			continue
		}
		d.mu.Unlock()

		if err := d.runCompaction(c); err != nil {
			d.opts.Logger.Errorf("lsmkv: compaction L%d->L%d failed: %v", c.StartLevel, c.OutputLevel, err)
		}
	}
}

// findSeekCompactionFile returns the first file in v, scanned level by
// level, whose seek budget (FileMetadata.AllowedSeeks) has been exhausted
// by repeated point lookups that probed it and found nothing (spec §4.9's
// seek-driven compaction trigger), or nil if none has.
func findSeekCompactionFile(v *manifest.Version) (*manifest.FileMetadata, int) {
	// The bottommost level has no output level below it to compact into, so
	// it is never a seek-compaction candidate (mirroring pickLevel's same
	// NumLevels-1 bound for size-driven picks).
	for level := 0; level < manifest.NumLevels-1; level++ {
		for _, f := range v.Files[level] {
			if f.SeeksRemaining() <= 0 {
				return f, level
			}
		}
	}
	return nil, 0
}

// runCompaction executes c: a trivial move relinks a single file without
// rewriting it; otherwise every input file is merged via
// internal/compaction.Run and the results installed as one VersionEdit.
func (d *DB) runCompaction(c *compaction.Compaction) error {
	if c.IsTrivialMove() {
		return d.applyTrivialMove(c)
	}

	var allInputs []*manifest.FileMetadata
	allInputs = append(allInputs, c.Inputs[0]...)
	allInputs = append(allInputs, c.Inputs[1]...)

	iters := make([]compaction.InputIterator, 0, len(allInputs))
	for _, f := range allInputs {
		r, err := d.tableCache.get(f.FileNum)
		if err != nil {
			return err
		}
		it, err := r.NewIter()
		if err != nil {
			return err
		}
		iters = append(iters, it)
	}

	var curFile vfs.File
	newOutput := func() (base.FileNum, *sstable.Writer, error) {
		fileNum := d.versions.NextFileNum()
		name := d.fs.PathJoin(d.dirname, base.MakeFilename(base.FileTypeTable, fileNum))
		f, err := d.fs.Create(name)
		if err != nil {
			return 0, nil, errors.Wrapf(err, "lsmkv: creating compaction output %s", fileNum)
		}
		curFile = f
		return fileNum, sstable.NewWriter(f, d.opts.writerOptions()), nil
	}
	finishOutput := func(w *sstable.Writer) (uint64, error) {
		if err := w.Finish(); err != nil {
			curFile.Close()
			return 0, err
		}
		size := w.FileSize()
		if err := curFile.Sync(); err != nil {
			curFile.Close()
			return 0, err
		}
		return size, curFile.Close()
	}

	outputs, err := compaction.Run(
		d.cmp, iters, d.oldestSnapshotSeq(), d.elideFunc(c), d.opts.MaxFileSize, newOutput, finishOutput)
	if err != nil {
		return err
	}

	ve := &manifest.VersionEdit{}
	for _, f := range c.Inputs[0] {
		ve.DeleteFile(c.StartLevel, f.FileNum)
	}
	for _, f := range c.Inputs[1] {
		ve.DeleteFile(c.OutputLevel, f.FileNum)
	}
	for _, o := range outputs {
		meta := &manifest.FileMetadata{FileNum: o.FileNum, Size: o.Size, Smallest: o.Smallest, Largest: o.Largest}
		meta.InitAllowedSeeks()
		ve.AddFile(c.OutputLevel, meta)
	}
	if err := d.versions.LogAndApply(ve); err != nil {
		return err
	}
	d.metrics.recordCompaction(c.StartLevel, c.OutputLevel)

	d.mu.Lock()
	d.deleteObsoleteTablesLocked()
	d.mu.Unlock()
	return nil
}

// applyTrivialMove relinks c's single input file into the output level
// without rewriting it, when it has no overlap worth merging.
func (d *DB) applyTrivialMove(c *compaction.Compaction) error {
	f := c.Inputs[0][0]
	ve := &manifest.VersionEdit{}
	ve.DeleteFile(c.StartLevel, f.FileNum)
	ve.AddFile(c.OutputLevel, f)
	if err := d.versions.LogAndApply(ve); err != nil {
		return err
	}
	return nil
}

// elideFunc reports, for a Delete entry's sequence number, whether the
// compaction may drop it outright instead of carrying it forward. A
// tombstone is only safe to drop once nothing below the output level could
// still hold an older version it needs to keep shadowed — i.e. the output
// level is the bottommost one — and no live snapshot still needs to observe
// it (spec §4.9, §8's "compaction never resurrects a deleted key").
func (d *DB) elideFunc(c *compaction.Compaction) func(base.SeqNum) bool {
	if c.OutputLevel != manifest.NumLevels-1 {
		return func(base.SeqNum) bool { return false }
	}
	oldest := d.oldestSnapshotSeq()
	return func(seq base.SeqNum) bool { return seq < oldest }
}

func (d *DB) oldestSnapshotSeq() base.SeqNum {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mu.snapshots.oldest()
}

// CompactRange forces every file overlapping [start, end] at each level,
// from 0 down to the second-to-last, to compact into the level below, in
// order, until no more overlapping files remain above the bottom level
// (spec §4.9's manual compaction, exercised by the "delete then CompactRange
// must not resurrect keys" regression scenario).
func (d *DB) CompactRange(start, end []byte) error {
	for level := 0; level < manifest.NumLevels-1; level++ {
		for {
			v := d.versions.Current()
			files := v.Overlaps(level, start, end)
			if len(files) == 0 {
				d.versions.Unref(v)
				break
			}
			c := compaction.NewManual(d.cmp, v, level, files)
			d.versions.Unref(v)
			if err := d.runCompaction(c); err != nil {
				return err
			}
		}
	}
	return nil
}
