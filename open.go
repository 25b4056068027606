// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"encoding/binary"
	"io"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/student-go/lsmkv/internal/base"
	"github.com/student-go/lsmkv/internal/compaction"
	"github.com/student-go/lsmkv/internal/manifest"
	"github.com/student-go/lsmkv/internal/memtable"
	"github.com/student-go/lsmkv/internal/record"
	"github.com/student-go/lsmkv/sstable"
)

// Open opens (or creates, per Options.CreateIfMissing) the DB at dirname
// (spec §4.1). Any WAL left behind by an unclean shutdown is replayed
// before Open returns.
func Open(dirname string, opts *Options) (*DB, error) {
	opts = opts.EnsureDefaults()
	fs := opts.FS
	cmp := opts.Comparer.Compare

	currentName := fs.PathJoin(dirname, base.MakeFilename(base.FileTypeCurrent, 0))
	_, statErr := fs.Stat(currentName)
	exists := statErr == nil

	if !exists {
		if !opts.CreateIfMissing {
			return nil, errors.Newf("lsmkv: no DB at %q (CreateIfMissing is false)", dirname)
		}
		if err := fs.MkdirAll(dirname, 0755); err != nil {
			return nil, errors.Wrapf(err, "lsmkv: creating directory %q", dirname)
		}
	} else if opts.ErrorIfExists {
		return nil, errors.Newf("lsmkv: DB already exists at %q", dirname)
	}

	var fileLock io.Closer
	if !opts.ReadOnly {
		lock, err := fs.Lock(fs.PathJoin(dirname, base.MakeFilename(base.FileTypeLock, 0)))
		if err != nil {
			return nil, errors.Wrapf(err, "lsmkv: locking %q", dirname)
		}
		fileLock = lock
	}

	d := &DB{
		dirname:    dirname,
		opts:       opts,
		fs:         fs,
		cmp:        cmp,
		instanceID: uuid.New(),
		fileLock:   fileLock,
		closedCh:   make(chan struct{}),
	}
	d.memAvailCond = sync.NewCond(&d.mu)
	d.flushCond = sync.NewCond(&d.mu)
	d.compactCond = sync.NewCond(&d.mu)
	d.metrics = newMetrics()
	d.blockCache = sstable.NewBlockCache(opts.BlockCacheSize)
	d.metrics.setBlockCache(d.blockCache)
	d.tableCache = newTableCache(dirname, fs, opts.readerOptions(d.blockCache), opts.MaxOpenFiles, d.metrics)
	d.picker = compaction.NewPicker(cmp)

	closeAndErr := func(err error) (*DB, error) {
		if fileLock != nil {
			fileLock.Close()
		}
		return nil, err
	}

	if !exists {
		vs := manifest.NewVersionSet(dirname, fs, cmp, opts.Comparer.Name, opts.Logger)
		logNum := vs.NextFileNum()
		ve := &manifest.VersionEdit{}
		ve.SetLogNumber(logNum)
		if err := vs.Create(ve); err != nil {
			return closeAndErr(err)
		}
		d.versions = vs

		logName := fs.PathJoin(dirname, base.MakeFilename(base.FileTypeLog, logNum))
		f, err := fs.Create(logName)
		if err != nil {
			return closeAndErr(err)
		}
		d.mu.log.file = f
		d.mu.log.writer = record.NewWriter(f)
		d.mu.log.number = logNum
		d.mu.mem.mutable = memtable.New(cmp, logNum)
	} else {
		vs, err := manifest.Recover(dirname, fs, cmp, opts.Comparer.Name, opts.Logger)
		if err != nil {
			return closeAndErr(err)
		}
		d.versions = vs
		if err := d.replayWALs(); err != nil {
			return closeAndErr(err)
		}
	}

	opts.Logger.Infof("lsmkv: opened %q, instance %s", dirname, d.instanceID)

	d.wg.Add(2)
	go d.flushLoop()
	go d.compactLoop()
	return d, nil
}

// replayWALs recovers every WAL at or after the manifest's recorded log
// number, each into its own memtable (mirroring how it was originally
// written), flushes each as a level-0 table in log order, and opens a fresh
// WAL for subsequent writes (spec §4.1's crash recovery property: every
// acknowledged write survives a restart).
func (d *DB) replayWALs() error {
	names, err := d.fs.List(d.dirname)
	if err != nil {
		return errors.Wrapf(err, "lsmkv: listing %s", d.dirname)
	}

	type walFile struct {
		num  base.FileNum
		name string
	}
	var wals []walFile
	minLog := d.versions.LogNum()
	for _, name := range names {
		fileType, fileNum, ok := base.ParseFilename(name)
		if !ok || fileType != base.FileTypeLog || fileNum < minLog {
			continue
		}
		wals = append(wals, walFile{num: fileNum, name: name})
	}
	sort.Slice(wals, func(i, j int) bool { return wals[i].num < wals[j].num })

	var maxSeq base.SeqNum
	for _, w := range wals {
		d.versions.MarkFileNumUsed(w.num)
		mem := memtable.New(d.cmp, w.num)

		f, err := d.fs.Open(d.fs.PathJoin(d.dirname, w.name))
		if err != nil {
			return errors.Wrapf(err, "lsmkv: opening log %s", w.num)
		}
		rr := record.NewReader(f, record.LogReporter{Logger: d.opts.Logger}, d.opts.ParanoidChecks)
		for {
			rec, err := rr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				f.Close()
				return errors.Wrapf(err, "lsmkv: reading log %s", w.num)
			}
			if len(rec) < batchHeaderLen {
				f.Close()
				return base.CorruptionErrorf("lsmkv: truncated batch in log %s", w.num)
			}
			seq := base.SeqNum(binary.LittleEndian.Uint64(rec[:8]))
			count := binary.LittleEndian.Uint32(rec[8:12])
			b := &Batch{data: rec, count: count}
			if d.opts.ParanoidChecks {
				n, err := countEntries(rec)
				if err != nil {
					f.Close()
					return err
				}
				if uint32(n) != count {
					f.Close()
					return base.CorruptionErrorf(
						"lsmkv: log %s batch header claims %d entries, decoded %d", w.num, count, n)
				}
			}
			if err := applyBatchToMemtable(mem, b, seq); err != nil {
				f.Close()
				return err
			}
			if last := seq + base.SeqNum(count) - 1; last > maxSeq {
				maxSeq = last
			}
		}
		f.Close()

		meta, err := d.writeLevel0Table(mem)
		if err != nil {
			return err
		}
		ve := &manifest.VersionEdit{}
		ve.AddFile(0, meta)
		if err := d.versions.LogAndApply(ve); err != nil {
			return err
		}
		if err := d.fs.Remove(d.fs.PathJoin(d.dirname, w.name)); err != nil {
			d.opts.Logger.Errorf("lsmkv: removing replayed log %s: %v", w.num, err)
		}
	}

	if maxSeq > d.versions.LastSeqNum() {
		d.versions.SetLastSeqNum(maxSeq)
	}

	newLogNum := d.versions.NextFileNum()
	logName := d.fs.PathJoin(d.dirname, base.MakeFilename(base.FileTypeLog, newLogNum))
	f, err := d.fs.Create(logName)
	if err != nil {
		return errors.Wrapf(err, "lsmkv: creating log %s", newLogNum)
	}
	d.mu.log.file = f
	d.mu.log.writer = record.NewWriter(f)
	d.mu.log.number = newLogNum
	d.mu.mem.mutable = memtable.New(d.cmp, newLogNum)

	ve := &manifest.VersionEdit{}
	ve.SetLogNumber(newLogNum)
	return d.versions.LogAndApply(ve)
}
