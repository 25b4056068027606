// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"github.com/cockroachdb/errors"

	"github.com/student-go/lsmkv/internal/base"
	"github.com/student-go/lsmkv/internal/manifest"
	"github.com/student-go/lsmkv/sstable"
	"github.com/student-go/lsmkv/vfs"
)

// Destroy removes every file belonging to the DB at dirname, including the
// directory itself. It first takes the directory's LOCK file, so it fails
// while another handle holds the DB open.
func Destroy(dirname string, opts *Options) error {
	opts = opts.EnsureDefaults()
	lock, err := opts.FS.Lock(opts.FS.PathJoin(dirname, base.MakeFilename(base.FileTypeLock, 0)))
	if err != nil {
		return errors.Wrapf(err, "lsmkv: locking %q", dirname)
	}
	defer lock.Close()
	if err := opts.FS.RemoveAll(dirname); err != nil {
		return errors.Wrapf(err, "lsmkv: destroying %q", dirname)
	}
	return nil
}

// Repair rebuilds a DB's MANIFEST from the tables still present in dirname,
// dropping every table that fails to open (spec §9's "repair" Open
// Question: favor maximal data recovery over strict consistency). Every
// surviving table is re-registered at level 0, since Repair has no record of
// which level it originally belonged to and level 0 tolerates overlapping
// ranges. WAL files are left in place and the new MANIFEST records log
// number 0, so the next Open replays every WAL found in the directory.
func Repair(dirname string, opts *Options) error {
	opts = opts.EnsureDefaults()
	fs := opts.FS
	cmp := opts.Comparer.Compare

	names, err := fs.List(dirname)
	if err != nil {
		return errors.Wrapf(err, "lsmkv: listing %q", dirname)
	}

	var tableNums []base.FileNum
	var maxFileNum base.FileNum
	for _, name := range names {
		fileType, fileNum, ok := base.ParseFilename(name)
		if !ok {
			continue
		}
		if fileNum > maxFileNum {
			maxFileNum = fileNum
		}
		if fileType == base.FileTypeTable {
			tableNums = append(tableNums, fileNum)
		}
		if fileType == base.FileTypeManifest {
			_ = fs.Remove(fs.PathJoin(dirname, name))
		}
	}

	vs := manifest.NewVersionSet(dirname, fs, cmp, opts.Comparer.Name, opts.Logger)
	vs.MarkFileNumUsed(maxFileNum)

	ve := &manifest.VersionEdit{}
	for _, fileNum := range tableNums {
		meta, err := readTableMetadata(fs, dirname, fileNum, opts)
		if err != nil {
			opts.Logger.Errorf("lsmkv: repair: dropping table %s: %v", fileNum, err)
			continue
		}
		ve.AddFile(0, meta)
	}

	logNum := vs.NextFileNum()
	ve.SetLogNumber(0)
	if err := vs.Create(ve); err != nil {
		return err
	}

	logName := fs.PathJoin(dirname, base.MakeFilename(base.FileTypeLog, logNum))
	f, err := fs.Create(logName)
	if err != nil {
		return errors.Wrapf(err, "lsmkv: creating log %s", logNum)
	}
	return f.Close()
}

// readTableMetadata opens fileNum as an sstable and derives the
// FileMetadata Repair needs (size, smallest/largest key) by reading its
// first and last entries; a table that fails to open or parse is reported
// as an error so the caller can skip it.
func readTableMetadata(
	fs vfs.FS, dirname string, fileNum base.FileNum, opts *Options,
) (*manifest.FileMetadata, error) {
	name := fs.PathJoin(dirname, base.MakeFilename(base.FileTypeTable, fileNum))
	f, err := fs.Open(name)
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
		return nil, errors.New("lsmkv: empty table")
	}
	smallest := it.Key()

	it.Last()
	if !it.Valid() {
		return nil, errors.New("lsmkv: empty table")
	}
	largest := it.Key()

	meta := &manifest.FileMetadata{
		FileNum:  fileNum,
		Size:     uint64(stat.Size()),
		Smallest: smallest,
		Largest:  largest,
	}
	meta.InitAllowedSeeks()
	return meta, nil
}

// GetApproximateSizes estimates the total size, in bytes, of the tables
// overlapping [start, end) across every level (spec §9's size-estimation
// Open Question). A table is counted in full if any part of its key range
// falls within [start, end); this over-counts a table only partially
// inside the range rather than reading its block index to interpolate, a
// deliberate precision-for-simplicity tradeoff.
func (d *DB) GetApproximateSizes(start, end []byte) (uint64, error) {
	v := d.versions.Current()
	defer d.versions.Unref(v)

	var total uint64
	for level := 0; level < manifest.NumLevels; level++ {
		for _, f := range v.Files[level] {
			if d.cmp(f.Largest.UserKey, start) < 0 || d.cmp(f.Smallest.UserKey, end) >= 0 {
				continue
			}
			total += f.Size
		}
	}
	return total, nil
}
