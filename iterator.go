// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"container/heap"
	"sort"

	"github.com/student-go/lsmkv/internal/base"
	"github.com/student-go/lsmkv/internal/manifest"
	"github.com/student-go/lsmkv/internal/memtable"
	"github.com/student-go/lsmkv/sstable"
)

// iterSource is the common shape a merging Iterator needs from each of its
// inputs: the mutable memtable, every queued immutable memtable, every
// level-0 table, and one concatenating source per level below that.
// *memtable.Iterator is adapted by memSource since it has no Error method;
// *sstable.Iterator is adapted by tableSource since its Next reports a bool.
type iterSource interface {
	First()
	SeekGE(key base.InternalKey)
	Next()
	Valid() bool
	Key() base.InternalKey
	Value() []byte
	Error() error
}

type tableSource struct{ it *sstable.Iterator }

func (s *tableSource) First()                      { s.it.First() }
func (s *tableSource) SeekGE(key base.InternalKey) { s.it.SeekGE(key) }
func (s *tableSource) Next()                       { s.it.Next() }
func (s *tableSource) Valid() bool                 { return s.it.Valid() }
func (s *tableSource) Key() base.InternalKey       { return s.it.Key() }
func (s *tableSource) Value() []byte               { return s.it.Value() }
func (s *tableSource) Error() error                { return s.it.Error() }

type memSource struct{ it *memtable.Iterator }

func (s *memSource) First()                      { s.it.First() }
func (s *memSource) SeekGE(key base.InternalKey) { s.it.SeekGE(key) }
func (s *memSource) Next()                       { s.it.Next() }
func (s *memSource) Valid() bool                 { return s.it.Valid() }
func (s *memSource) Key() base.InternalKey       { return s.it.Key() }
func (s *memSource) Value() []byte               { return s.it.Value() }
func (s *memSource) Error() error                { return nil }

// levelIter concatenates the iterators of a level's files, which never
// overlap (spec §4.2), into a single source ordered by internal key.
type levelIter struct {
	cmp   base.Compare
	files []*manifest.FileMetadata
	cache *tableCache

	idx int
	cur *sstable.Iterator
	err error
}

func newLevelIter(cmp base.Compare, files []*manifest.FileMetadata, cache *tableCache) *levelIter {
	return &levelIter{cmp: cmp, files: files, cache: cache}
}

func (l *levelIter) openAt(idx int, seek func(*sstable.Iterator)) {
	for l.idx = idx; l.idx < len(l.files); l.idx++ {
		r, err := l.cache.get(l.files[l.idx].FileNum)
		if err != nil {
			l.err, l.cur = err, nil
			return
		}
		it, err := r.NewIter()
		if err != nil {
			l.err, l.cur = err, nil
			return
		}
		seek(it)
		if it.Valid() {
			l.cur = it
			return
		}
	}
	l.cur = nil
}

func (l *levelIter) First() {
	l.openAt(0, func(it *sstable.Iterator) { it.First() })
}

func (l *levelIter) SeekGE(key base.InternalKey) {
	i := sort.Search(len(l.files), func(i int) bool {
		return l.cmp(l.files[i].Largest.UserKey, key.UserKey) >= 0
	})
	l.openAt(i, func(it *sstable.Iterator) { it.SeekGE(key) })
}

func (l *levelIter) Next() {
	if l.cur == nil {
		return
	}
	if l.cur.Next() {
		return
	}
	l.openAt(l.idx+1, func(it *sstable.Iterator) { it.First() })
}

func (l *levelIter) Valid() bool           { return l.cur != nil }
func (l *levelIter) Key() base.InternalKey { return l.cur.Key() }
func (l *levelIter) Value() []byte         { return l.cur.Value() }
func (l *levelIter) Error() error {
	if l.err != nil {
		return l.err
	}
	if l.cur != nil {
		return l.cur.Error()
	}
	return nil
}

type iterHeapItem struct {
	src iterSource
	key base.InternalKey
}

type iterHeap struct {
	cmp   base.Compare
	items []*iterHeapItem
}

func (h *iterHeap) Len() int { return len(h.items) }
func (h *iterHeap) Less(i, j int) bool {
	return base.InternalCompare(h.cmp, h.items[i].key, h.items[j].key) < 0
}
func (h *iterHeap) Swap(i, j int)        { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *iterHeap) Push(x interface{})   { h.items = append(h.items, x.(*iterHeapItem)) }
func (h *iterHeap) Pop() interface{} {
	n := len(h.items)
	item := h.items[n-1]
	h.items = h.items[:n-1]
	return item
}

// historyEntry is one stop the Iterator has already visited, buffered so
// Prev can step backward without the underlying sources (each forward-only:
// memtable skiplists, sstable block iterators, levelIter) supporting reverse
// motion themselves.
type historyEntry struct {
	key   base.InternalKey
	value []byte
}

// Iterator yields a DB's live key/value pairs in ascending user-key order,
// as of the sequence number it was opened with: the newest version of each
// key at or below that bound, with deleted keys and shadowed older versions
// never surfaced (spec §4.10).
type Iterator struct {
	db      *DB
	cmp     base.Compare
	seqNum  base.SeqNum
	sources []iterSource
	heap    iterHeap
	version *manifest.Version

	key   base.InternalKey
	value []byte
	valid bool
	err   error

	// history holds every entry findNext has produced since the last First
	// or SeekGE, in ascending order, with pos indexing the current one.
	// Prev walks backward through this buffer; it cannot move before
	// position 0, the oldest entry this Iterator has visited since it was
	// last repositioned.
	history []historyEntry
	pos     int
}

// NewIter returns an Iterator positioned before the first key; call First
// or SeekGE to begin iterating. The returned Iterator must be closed.
func (d *DB) NewIter(opts *ReadOptions) (*Iterator, error) {
	d.mu.Lock()
	if d.mu.closed {
		d.mu.Unlock()
		return nil, base.ErrClosed
	}
	seqNum := d.versions.LastSeqNum()
	if opts != nil && opts.Snapshot != nil {
		seqNum = opts.Snapshot.seqNum
	}
	mem := d.mu.mem.mutable
	imms := append([]*memtable.Memtable(nil), d.mu.mem.queue...)
	v := d.versions.Current()
	d.mu.Unlock()

	it := &Iterator{db: d, cmp: d.cmp, seqNum: seqNum, version: v}
	it.sources = append(it.sources, &memSource{it: mem.NewIter()})
	for i := len(imms) - 1; i >= 0; i-- {
		it.sources = append(it.sources, &memSource{it: imms[i].NewIter()})
	}
	for _, f := range v.Files[0] {
		r, err := d.tableCache.get(f.FileNum)
		if err != nil {
			d.versions.Unref(v)
			return nil, err
		}
		sit, err := r.NewIter()
		if err != nil {
			d.versions.Unref(v)
			return nil, err
		}
		it.sources = append(it.sources, &tableSource{it: sit})
	}
	for level := 1; level < manifest.NumLevels; level++ {
		if len(v.Files[level]) == 0 {
			continue
		}
		it.sources = append(it.sources, newLevelIter(d.cmp, v.Files[level], d.tableCache))
	}
	it.heap.cmp = d.cmp
	return it, nil
}

func (it *Iterator) pushIfValid(s iterSource) {
	if s.Valid() {
		heap.Push(&it.heap, &iterHeapItem{src: s, key: s.Key()})
	}
}

// First positions the iterator at the first live key.
func (it *Iterator) First() {
	it.heap.items = it.heap.items[:0]
	for _, s := range it.sources {
		s.First()
		it.pushIfValid(s)
	}
	heap.Init(&it.heap)
	it.history = it.history[:0]
	it.pos = -1
	it.findNext()
}

// SeekGE positions the iterator at the first live key >= key.
func (it *Iterator) SeekGE(key []byte) {
	it.heap.items = it.heap.items[:0]
	target := base.MakeInternalKey(key, base.SeqNumMax, base.InternalKeyKindMax)
	for _, s := range it.sources {
		s.SeekGE(target)
		it.pushIfValid(s)
	}
	heap.Init(&it.heap)
	it.history = it.history[:0]
	it.pos = -1
	it.findNext()
}

// advanceTop pops the heap's minimum item, advances its source, and pushes
// it back if it still has data.
func (it *Iterator) advanceTop() {
	top := it.heap.items[0]
	top.src.Next()
	if err := top.src.Error(); err != nil && it.err == nil {
		it.err = err
	}
	heap.Pop(&it.heap)
	it.pushIfValid(top.src)
}

// findNext advances past every version invisible to this read's sequence
// number bound and every version shadowed by a newer one already
// considered, stopping at the next live (non-tombstone) key.
func (it *Iterator) findNext() {
	for it.heap.Len() > 0 {
		top := it.heap.items[0]
		key := top.key
		if key.SeqNum() > it.seqNum {
			it.advanceTop()
			continue
		}
		value := top.src.Value()
		kind := key.Kind()
		userKey := key.UserKey
		it.advanceTop()
		for it.heap.Len() > 0 && it.cmp(it.heap.items[0].key.UserKey, userKey) == 0 {
			it.advanceTop()
		}
		if kind == base.InternalKeyKindDelete {
			continue
		}
		it.setCurrent(key, value)
		return
	}
	it.valid = false
}

// setCurrent records a newly computed forward entry, copying its key/value
// bytes since the underlying source is free to reuse that memory on its
// next advance, and appends it to the backward buffer Prev walks.
func (it *Iterator) setCurrent(key base.InternalKey, value []byte) {
	entry := historyEntry{
		key:   base.MakeInternalKey(append([]byte(nil), key.UserKey...), key.SeqNum(), key.Kind()),
		value: append([]byte(nil), value...),
	}
	it.history = append(it.history, entry)
	it.pos = len(it.history) - 1
	it.key, it.value, it.valid = entry.key, entry.value, true
}

// Next advances to the next live key. If Prev had stepped back into the
// buffered history, Next first replays forward through it before resuming
// the underlying merge.
func (it *Iterator) Next() {
	if !it.valid {
		return
	}
	if it.pos+1 < len(it.history) {
		it.pos++
		entry := it.history[it.pos]
		it.key, it.value, it.valid = entry.key, entry.value, true
		return
	}
	it.findNext()
}

// Prev steps back to the previous live key. It only sees entries already
// visited by this Iterator since the last First or SeekGE: the underlying
// sources are forward-optimized (spec §4.10's iterators compose a forward
// merge), so Prev maintains a small backward buffer of already-produced
// entries rather than reversing them. Calling Prev on an invalid iterator,
// or while positioned on the first entry visited since the last First or
// SeekGE (e.g. immediately after SeekGE), leaves the iterator invalid.
func (it *Iterator) Prev() {
	if !it.valid || it.pos <= 0 {
		it.valid = false
		return
	}
	it.pos--
	entry := it.history[it.pos]
	it.key, it.value, it.valid = entry.key, entry.value, true
}

func (it *Iterator) Valid() bool   { return it.valid }
func (it *Iterator) Key() []byte   { return it.key.UserKey }
func (it *Iterator) Value() []byte { return it.value }
func (it *Iterator) Error() error  { return it.err }

// Close releases the Version this iterator pinned, allowing its files to
// become eligible for deletion once no other reader needs them.
func (it *Iterator) Close() error {
	if it.version != nil {
		it.db.versions.Unref(it.version)
		it.version = nil
	}
	return it.err
}
