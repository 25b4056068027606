// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"sort"
	"sync/atomic"

	"github.com/student-go/lsmkv/internal/base"
)

// NumLevels is the number of levels in the LSM tree, level 0 through
// NumLevels-1.
const NumLevels = 7

// Version is an immutable snapshot of the set of files populating every
// level (spec §3). Level 0 may overlap; levels 1..NumLevels-1 are
// disjoint and sorted by smallest key.
type Version struct {
	cmp   base.Compare
	Files [NumLevels][]*FileMetadata

	refs int32

	// list links this Version into its VersionSet's retained-version list,
	// so a Version that has been superseded at the head can still be kept
	// alive by an outstanding iterator or snapshot (spec §5).
	prev, next *Version
}

// NewVersion returns an empty version.
func NewVersion(cmp base.Compare) *Version {
	return &Version{cmp: cmp}
}

// Ref increments the version's reference count; callers ref a version
// while creating an iterator or snapshot over it.
func (v *Version) Ref() { atomic.AddInt32(&v.refs, 1) }

// Unref decrements the reference count, returning the count afterward.
func (v *Version) Unref() int32 { return atomic.AddInt32(&v.refs, -1) }

// Refs returns the current reference count.
func (v *Version) Refs() int32 { return atomic.LoadInt32(&v.refs) }

// Overlaps returns the files at level whose key range intersects
// [smallest, largest]. For level 0, every file is checked individually
// since ranges may overlap each other; for levels >= 1 a binary search
// narrows the candidate range first.
func (v *Version) Overlaps(level int, smallest, largest []byte) []*FileMetadata {
	if level == 0 {
		var out []*FileMetadata
		for _, f := range v.Files[0] {
			if v.cmp(f.Largest.UserKey, smallest) >= 0 && v.cmp(f.Smallest.UserKey, largest) <= 0 {
				out = append(out, f)
			}
		}
		return out
	}
	files := v.Files[level]
	lo := sort.Search(len(files), func(i int) bool {
		return v.cmp(files[i].Largest.UserKey, smallest) >= 0
	})
	var out []*FileMetadata
	for i := lo; i < len(files); i++ {
		if v.cmp(files[i].Smallest.UserKey, largest) > 0 {
			break
		}
		out = append(out, files[i])
	}
	return out
}

// Contains reports whether any file at level contains userKey within its
// [Smallest, Largest] range (a cheap pre-check; the caller still needs a
// real lookup to know if the key is present, only that it might be).
func (v *Version) Contains(level int, userKey []byte) bool {
	files := v.Files[level]
	if level == 0 {
		for _, f := range files {
			if v.cmp(userKey, f.Smallest.UserKey) >= 0 && v.cmp(userKey, f.Largest.UserKey) <= 0 {
				return true
			}
		}
		return false
	}
	i := sort.Search(len(files), func(i int) bool {
		return v.cmp(files[i].Largest.UserKey, userKey) >= 0
	})
	return i < len(files) && v.cmp(files[i].Smallest.UserKey, userKey) <= 0
}

// clone returns a shallow copy of v, sharing FileMetadata pointers but
// with an independent Files array so edits can be applied without
// mutating v.
func (v *Version) clone() *Version {
	nv := &Version{cmp: v.cmp}
	for l := 0; l < NumLevels; l++ {
		nv.Files[l] = append([]*FileMetadata(nil), v.Files[l]...)
	}
	return nv
}

// checkOrdering validates the spec §3 invariant that non-zero levels are
// internally disjoint and sorted by smallest key.
func (v *Version) checkOrdering() error {
	for l := 1; l < NumLevels; l++ {
		files := v.Files[l]
		for i := 1; i < len(files); i++ {
			if v.cmp(files[i-1].Largest.UserKey, files[i].Smallest.UserKey) >= 0 {
				return base.CorruptionErrorf(
					"lsmkv: level %d files out of order or overlapping: %s vs %s",
					l, files[i-1].Largest.Pretty(base.DefaultComparer.FormatKey),
					files[i].Smallest.Pretty(base.DefaultComparer.FormatKey))
			}
		}
	}
	return nil
}
