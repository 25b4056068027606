// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"github.com/cockroachdb/errors"
	"github.com/student-go/lsmkv/internal/base"
	"github.com/student-go/lsmkv/internal/manifest"
	"github.com/student-go/lsmkv/internal/memtable"
	"github.com/student-go/lsmkv/sstable"
)

// flushLoop is the single background flush worker: it waits for an
// immutable memtable to appear at the head of the queue, writes it out as a
// level-0 table, installs the table via a VersionEdit, and removes the WAL
// it backed (spec §4.3, §9's "one flush worker, one compaction worker").
func (d *DB) flushLoop() {
	defer d.wg.Done()
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		for len(d.mu.mem.queue) == 0 {
			if d.mu.closed {
				return
			}
			d.flushCond.Wait()
			if d.mu.closed {
				return
			}
		}

		mem := d.mu.mem.queue[0]
		d.mu.Unlock()
		meta, err := d.writeLevel0Table(mem)
		d.mu.Lock()

		if err != nil {
			d.opts.Logger.Errorf("lsmkv: flush of log %s failed: %v", mem.LogNum(), err)
			d.flushCond.Wait()
			continue
		}

		var nextLog base.FileNum
		if len(d.mu.mem.queue) > 1 {
			nextLog = d.mu.mem.queue[1].LogNum()
		} else {
			nextLog = d.mu.log.number
		}

		ve := &manifest.VersionEdit{}
		ve.AddFile(0, meta)
		ve.SetLogNumber(nextLog)

		// LogAndApply syncs a manifest record to disk; run it without d.mu
		// held so a flush's I/O never blocks unrelated readers/writers
		// (matching runCompaction's identical unlock-around-LogAndApply
		// pattern in compact.go).
		d.mu.Unlock()
		err = d.versions.LogAndApply(ve)
		d.mu.Lock()
		if err != nil {
			d.opts.Logger.Errorf("lsmkv: installing flushed table %s failed: %v", meta.FileNum, err)
			d.flushCond.Wait()
			continue
		}

		d.mu.mem.queue = d.mu.mem.queue[1:]
		logName := d.fs.PathJoin(d.dirname, base.MakeFilename(base.FileTypeLog, mem.LogNum()))
		if err := d.fs.Remove(logName); err != nil {
			d.opts.Logger.Errorf("lsmkv: removing flushed log %s: %v", mem.LogNum(), err)
		}

		d.metrics.recordFlush(meta.Size)
		d.memAvailCond.Broadcast()
		d.deleteObsoleteTablesLocked()
		d.compactCond.Signal()
	}
}

// writeLevel0Table drains mem's entries into a fresh sstable, returning the
// FileMetadata that describes it. Called without d.mu held.
func (d *DB) writeLevel0Table(mem *memtable.Memtable) (*manifest.FileMetadata, error) {
	fileNum := d.versions.NextFileNum()
	name := d.fs.PathJoin(d.dirname, base.MakeFilename(base.FileTypeTable, fileNum))
	f, err := d.fs.Create(name)
	if err != nil {
		return nil, errors.Wrapf(err, "lsmkv: creating table %s", fileNum)
	}

	w := sstable.NewWriter(f, d.opts.writerOptions())
	it := mem.NewIter()
	for it.First(); it.Valid(); it.Next() {
		if err := w.Add(it.Key(), it.Value()); err != nil {
			f.Close()
			return nil, err
		}
	}
	if err := w.Finish(); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "lsmkv: syncing table %s", fileNum)
	}
	if err := f.Close(); err != nil {
		return nil, errors.Wrapf(err, "lsmkv: closing table %s", fileNum)
	}

	meta := &manifest.FileMetadata{FileNum: fileNum, Size: w.FileSize(), Smallest: w.Smallest(), Largest: w.Largest()}
	meta.InitAllowedSeeks()
	return meta, nil
}
