// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import "github.com/student-go/lsmkv/internal/base"

// deleteObsoleteTablesLocked removes every table file on disk that no
// version still reachable from a live iterator, snapshot, or the current
// version references (spec §4.8's "a file is deleted once nothing can
// observe it"). Called with d.mu held.
func (d *DB) deleteObsoleteTablesLocked() {
	retained := d.versions.RetainedFileNums()
	names, err := d.fs.List(d.dirname)
	if err != nil {
		d.opts.Logger.Errorf("lsmkv: listing %s for cleanup: %v", d.dirname, err)
		return
	}
	for _, name := range names {
		fileType, fileNum, ok := base.ParseFilename(name)
		if !ok || fileType != base.FileTypeTable || retained[fileNum] {
			continue
		}
		d.tableCache.evict(fileNum)
		if err := d.fs.Remove(d.fs.PathJoin(d.dirname, name)); err != nil {
			d.opts.Logger.Errorf("lsmkv: removing obsolete table %s: %v", fileNum, err)
		}
	}
}
