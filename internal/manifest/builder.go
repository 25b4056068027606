// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"sort"

	"github.com/student-go/lsmkv/internal/base"
)

// Builder accumulates a sequence of VersionEdits and applies them atop a
// base Version, producing a new Version without mutating the base (spec
// §4.8 step 2). A single Builder can absorb several edits read in sequence
// from a MANIFEST before Finish is called once.
type Builder struct {
	cmp     base.Compare
	added   [NumLevels]map[base.FileNum]*FileMetadata
	deleted [NumLevels]map[base.FileNum]bool
}

// NewBuilder returns an empty Builder.
func NewBuilder(cmp base.Compare) *Builder {
	b := &Builder{cmp: cmp}
	for l := 0; l < NumLevels; l++ {
		b.added[l] = make(map[base.FileNum]*FileMetadata)
		b.deleted[l] = make(map[base.FileNum]bool)
	}
	return b
}

// Apply folds edit's adds/deletes into the builder's accumulated state. A
// file added and later deleted within the same builder (a trivial move
// followed by a subsequent edit, say) nets out to deleted.
func (b *Builder) Apply(edit *VersionEdit) {
	for df := range edit.DeletedFiles {
		delete(b.added[df.Level], df.FileNum)
		b.deleted[df.Level][df.FileNum] = true
	}
	for _, nf := range edit.NewFiles {
		delete(b.deleted[nf.Level], nf.Meta.FileNum)
		b.added[nf.Level][nf.Meta.FileNum] = nf.Meta
	}
}

// Finish materializes a new Version from base plus everything the builder
// has accumulated. Levels 1..NumLevels-1 are re-sorted by smallest key and
// checked for the disjointness invariant; level 0 keeps insertion order
// (newest last), matching the teacher lineage's L0-is-a-sequence-not-a-set
// treatment.
func (b *Builder) Finish(baseVersion *Version) (*Version, error) {
	v := NewVersion(b.cmp)
	for l := 0; l < NumLevels; l++ {
		var files []*FileMetadata
		for _, f := range baseVersion.Files[l] {
			if b.deleted[l][f.FileNum] {
				continue
			}
			if _, ok := b.added[l][f.FileNum]; ok {
				continue // superseded below, avoid duplicate entries
			}
			files = append(files, f)
		}
		for _, f := range b.added[l] {
			files = append(files, f)
		}
		if l > 0 {
			sort.Slice(files, func(i, j int) bool {
				return b.cmp(files[i].Smallest.UserKey, files[j].Smallest.UserKey) < 0
			})
		}
		v.Files[l] = files
	}
	if err := v.checkOrdering(); err != nil {
		return nil, err
	}
	return v, nil
}
