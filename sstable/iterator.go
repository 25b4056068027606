// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import "github.com/student-go/lsmkv/internal/base"

// Iterator is a two-level iterator over a table: the outer level walks the
// index block's (separator key -> BlockHandle) entries; each outer
// position loads the corresponding data block (through the cache, if one
// is wired in via Reader.blockCache) and iterates it (spec §4.6).
type Iterator struct {
	r       *Reader
	index   *blockIter
	data    *blockIter
	dataErr error
}

// NewIter returns an iterator over the table's entries, unpositioned.
func (r *Reader) NewIter() (*Iterator, error) {
	idx, err := newBlockIter(r.cmp, r.index)
	if err != nil {
		return nil, err
	}
	return &Iterator{r: r, index: idx}, nil
}

func (i *Iterator) loadDataBlock() bool {
	if !i.index.Valid() {
		i.data = nil
		return false
	}
	handle, _, err := decodeBlockHandle(i.index.Value())
	if err != nil {
		i.dataErr = err
		return false
	}
	b, err := i.r.readBlock(handle)
	if err != nil {
		i.dataErr = err
		return false
	}
	d, err := newBlockIter(i.r.cmp, b)
	if err != nil {
		i.dataErr = err
		return false
	}
	i.data = d
	return true
}

// SeekGE positions the iterator at the first entry whose key is >= key.
func (i *Iterator) SeekGE(key base.InternalKey) {
	i.index.SeekGE(key)
	if !i.loadDataBlock() {
		return
	}
	i.data.SeekGE(key)
	if !i.data.Valid() {
		// key falls after every entry in this data block but before the
		// next index separator; advance to the next block.
		i.index.Next()
		if i.loadDataBlock() {
			i.data.First()
		}
	}
}

// First positions the iterator at the table's first entry.
func (i *Iterator) First() {
	i.index.First()
	if i.loadDataBlock() {
		i.data.First()
	}
}

// Last positions the iterator at the table's last entry.
func (i *Iterator) Last() {
	i.index.Last()
	if i.loadDataBlock() {
		i.data.Last()
	}
}

// Next advances to the next entry, crossing into the next data block as
// needed.
func (i *Iterator) Next() bool {
	if i.data == nil {
		return false
	}
	if i.data.Next() {
		return true
	}
	i.index.Next()
	if !i.loadDataBlock() {
		return false
	}
	i.data.First()
	return i.data.Valid()
}

// Valid reports whether the iterator is positioned at an entry.
func (i *Iterator) Valid() bool { return i.data != nil && i.data.Valid() }

// Key returns the current entry's internal key.
func (i *Iterator) Key() base.InternalKey { return i.data.Key() }

// Value returns the current entry's value.
func (i *Iterator) Value() []byte { return i.data.Value() }

// Error returns any error encountered while loading a data block.
func (i *Iterator) Error() error { return i.dataErr }

// Close releases the iterator's resources. It does not close the Reader.
func (i *Iterator) Close() error { return nil }

// Get performs a point lookup of key, consulting the filter block (if
// any) before loading the candidate data block, and returning
// base.ErrNotFound on a negative filter match or a genuine miss (spec
// §4.6).
func (r *Reader) Get(key []byte) (base.InternalKey, []byte, error) {
	idx, err := newBlockIter(r.cmp, r.index)
	if err != nil {
		return base.InternalKey{}, nil, err
	}
	searchKey := base.MakeInternalKey(key, base.SeqNumMax, base.InternalKeyKindMax)
	idx.SeekGE(searchKey)
	if !idx.Valid() {
		return base.InternalKey{}, nil, base.ErrNotFound
	}
	handle, _, err := decodeBlockHandle(idx.Value())
	if err != nil {
		return base.InternalKey{}, nil, err
	}
	if r.filter != nil && !r.filter.mayContain(handle.Offset, key) {
		return base.InternalKey{}, nil, base.ErrNotFound
	}
	b, err := r.readBlock(handle)
	if err != nil {
		return base.InternalKey{}, nil, err
	}
	data, err := newBlockIter(r.cmp, b)
	if err != nil {
		return base.InternalKey{}, nil, err
	}
	data.SeekGE(searchKey)
	if !data.Valid() || r.cmp(data.Key().UserKey, key) != 0 {
		return base.InternalKey{}, nil, base.ErrNotFound
	}
	return data.Key(), data.Value(), nil
}
