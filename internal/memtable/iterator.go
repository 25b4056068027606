// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package memtable

import "github.com/student-go/lsmkv/internal/base"

// Iterator walks a Memtable's entries in internal-key order. It is safe to
// use concurrently with Memtable.Add on a different goroutine: the tower
// pointers it follows are only ever appended to, never mutated in place.
type Iterator struct {
	m   *Memtable
	cur *node
}

// NewIter returns an unpositioned iterator; call First, Last, or SeekGE to
// position it.
func (m *Memtable) NewIter() *Iterator {
	return &Iterator{m: m}
}

func (it *Iterator) Valid() bool { return it.cur != nil }

func (it *Iterator) Key() base.InternalKey { return it.cur.key }

func (it *Iterator) Value() []byte { return it.cur.value }

// First positions the iterator at the smallest key.
func (it *Iterator) First() {
	it.cur = it.m.head.tower[0].Load()
}

// Next advances to the next key.
func (it *Iterator) Next() {
	if it.cur == nil {
		return
	}
	it.cur = it.cur.tower[0].Load()
}

// SeekGE positions the iterator at the first key >= key.
func (it *Iterator) SeekGE(key base.InternalKey) {
	x := &it.m.head
	for level := maxHeight - 1; level >= 0; level-- {
		for {
			n := x.tower[level].Load()
			if n == nil || it.m.compareKeys(n.key, key) >= 0 {
				break
			}
			x = n
		}
	}
	it.cur = x.tower[0].Load()
}
