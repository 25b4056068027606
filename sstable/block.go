// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package sstable implements the on-disk sorted table format of spec
// §4.4–§4.7: prefix-compressed data blocks with a restart array, an index
// block, an optional filter block, a metaindex block, and a fixed footer.
package sstable

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/student-go/lsmkv/internal/base"
)

// block is the raw decoded bytes of one data or index block, trailer
// already stripped.
type block []byte

// blockWriter accumulates entries for a single block: every restartInterval
// entries it forces a full key (no shared prefix) and records a restart
// offset, enabling the reader to binary search before decoding forward.
type blockWriter struct {
	restartInterval int
	nEntries        int
	buf             []byte
	restarts        []uint32
	curKey          []byte
	prevKey         []byte
	tmp             [binary.MaxVarintLen64 * 3]byte
}

func newBlockWriter(restartInterval int) *blockWriter {
	return &blockWriter{restartInterval: restartInterval}
}

func (w *blockWriter) empty() bool { return w.nEntries == 0 }

// add appends (key, value) to the block. Keys must be added in strictly
// increasing order under the block's comparator; the builder above this
// layer (Writer.Add) is responsible for enforcing that, since the
// restart-interval tie-break on equal keys is otherwise undefined (spec
// §9 open question).
func (w *blockWriter) add(key base.InternalKey, value []byte) {
	w.curKey, w.prevKey = w.prevKey, w.curKey

	size := key.Size()
	if cap(w.curKey) < size {
		w.curKey = make([]byte, 0, size*2)
	}
	w.curKey = w.curKey[:size]
	key.Encode(w.curKey)

	w.store(size, value)
}

func (w *blockWriter) store(keySize int, value []byte) {
	shared := 0
	if w.nEntries%w.restartInterval == 0 {
		w.restarts = append(w.restarts, uint32(len(w.buf)))
	} else {
		shared = base.SharedPrefixLen(w.curKey, w.prevKey)
	}

	n := binary.PutUvarint(w.tmp[0:], uint64(shared))
	n += binary.PutUvarint(w.tmp[n:], uint64(keySize-shared))
	n += binary.PutUvarint(w.tmp[n:], uint64(len(value)))
	w.buf = append(w.buf, w.tmp[:n]...)
	w.buf = append(w.buf, w.curKey[shared:]...)
	w.buf = append(w.buf, value...)

	w.nEntries++
}

func (w *blockWriter) finish() []byte {
	if w.nEntries == 0 {
		w.restarts = append(w.restarts[:0], 0)
	}
	var tmp4 [4]byte
	for _, x := range w.restarts {
		binary.LittleEndian.PutUint32(tmp4[:], x)
		w.buf = append(w.buf, tmp4[:]...)
	}
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(w.restarts)))
	w.buf = append(w.buf, tmp4[:]...)
	return w.buf
}

func (w *blockWriter) reset() {
	w.nEntries = 0
	w.buf = w.buf[:0]
	w.restarts = w.restarts[:0]
}

// estimatedSize approximates the block's on-disk size before compression,
// driving the CurrentSizeEstimate check in spec §4.7.
func (w *blockWriter) estimatedSize() int {
	return len(w.buf) + 4*(len(w.restarts)+1)
}

type blockEntry struct {
	offset int
	key    []byte
	val    []byte
}

// blockIter iterates a single decoded block, supporting forward and
// (buffered) backward iteration over the restart-array-compressed
// entries.
type blockIter struct {
	cmp         base.Compare
	offset      int
	nextOffset  int
	restarts    int
	numRestarts int
	data        []byte
	key, val    []byte
	ikey        base.InternalKey
	cached      []blockEntry
	cachedBuf   []byte
}

func newBlockIter(cmp base.Compare, b block) (*blockIter, error) {
	i := &blockIter{}
	return i, i.init(cmp, b)
}

func (i *blockIter) init(cmp base.Compare, b block) error {
	if len(b) < 4 {
		return base.CorruptionErrorf("lsmkv: block too small")
	}
	numRestarts := int(binary.LittleEndian.Uint32(b[len(b)-4:]))
	if numRestarts == 0 {
		return base.CorruptionErrorf("lsmkv: invalid table (block has no restart points)")
	}
	i.cmp = cmp
	i.restarts = len(b) - 4*(1+numRestarts)
	if i.restarts < 0 {
		return base.CorruptionErrorf("lsmkv: invalid table (restart array overruns block)")
	}
	i.numRestarts = numRestarts
	i.data = b
	i.key = i.key[:0]
	i.val = nil
	i.clearCache()
	return nil
}

func decodeEntryHeader(data []byte, offset int) (shared, unshared, valueLen, headerLen int) {
	p := offset
	u1, n1 := binary.Uvarint(data[p:])
	p += n1
	u2, n2 := binary.Uvarint(data[p:])
	p += n2
	u3, n3 := binary.Uvarint(data[p:])
	p += n3
	return int(u1), int(u2), int(u3), n1 + n2 + n3
}

func (i *blockIter) readEntry() {
	shared, unshared, valueLen, hdrLen := decodeEntryHeader(i.data, i.offset)
	keyStart := i.offset + hdrLen
	i.key = append(i.key[:shared], i.data[keyStart:keyStart+unshared]...)
	i.key = i.key[:len(i.key):len(i.key)]
	valStart := keyStart + unshared
	i.val = i.data[valStart : valStart+valueLen]
	i.nextOffset = valStart + valueLen
}

func (i *blockIter) decodeInternalKey() {
	i.ikey = base.DecodeInternalKey(i.key)
}

func (i *blockIter) loadEntry() {
	i.readEntry()
	i.decodeInternalKey()
}

func (i *blockIter) clearCache() {
	i.cached = i.cached[:0]
	i.cachedBuf = i.cachedBuf[:0]
}

func (i *blockIter) cacheEntry() {
	i.cachedBuf = append(i.cachedBuf, i.key...)
	i.cached = append(i.cached, blockEntry{
		offset: i.offset,
		key:    i.cachedBuf[len(i.cachedBuf)-len(i.key) : len(i.cachedBuf) : len(i.cachedBuf)],
		val:    i.val,
	})
}

func (i *blockIter) restartPoint(j int) int {
	return int(binary.LittleEndian.Uint32(i.data[i.restarts+4*j:]))
}

// restartKey decodes just the key of the entry at a restart point, which
// by construction has zero shared prefix.
func (i *blockIter) restartKey(j int) base.InternalKey {
	offset := i.restartPoint(j)
	_, unshared, _, hdrLen := decodeEntryHeader(i.data, offset)
	keyStart := offset + hdrLen
	return base.DecodeInternalKey(i.data[keyStart : keyStart+unshared])
}

// SeekGE positions the iterator at the first entry whose key is >= key.
func (i *blockIter) SeekGE(key base.InternalKey) {
	i.offset = 0
	index := binarySearch(i.numRestarts, func(j int) bool {
		return base.InternalCompare(i.cmp, i.restartKey(j), key) <= 0
	})
	if index > 0 {
		i.offset = i.restartPoint(index - 1)
	}
	i.loadEntry()
	for ; i.Valid(); i.Next() {
		if base.InternalCompare(i.cmp, i.ikey, key) >= 0 {
			break
		}
	}
}

// SeekLT positions the iterator at the last entry whose key is < key.
func (i *blockIter) SeekLT(key base.InternalKey) {
	i.offset = 0
	index := binarySearch(i.numRestarts, func(j int) bool {
		return base.InternalCompare(i.cmp, i.restartKey(j), key) < 0
	})
	if index == 0 {
		i.offset = -1
		i.nextOffset = 0
		return
	}
	i.offset = i.restartPoint(index - 1)

	i.clearCache()
	i.nextOffset = i.offset
	for {
		i.offset = i.nextOffset
		i.readEntry()
		i.decodeInternalKey()
		if base.InternalCompare(i.cmp, i.ikey, key) >= 0 {
			i.Prev()
			return
		}
		i.cacheEntry()
		if i.nextOffset >= i.restarts {
			break
		}
	}
}

// First positions the iterator at the first entry.
func (i *blockIter) First() {
	i.offset = 0
	i.loadEntry()
}

// Last positions the iterator at the last entry.
func (i *blockIter) Last() {
	i.offset = i.restartPoint(i.numRestarts - 1)
	i.readEntry()
	i.clearCache()
	i.cacheEntry()
	for i.nextOffset < i.restarts {
		i.offset = i.nextOffset
		i.readEntry()
		i.cacheEntry()
	}
	i.decodeInternalKey()
}

// Next advances to the next entry, returning false if none remains.
func (i *blockIter) Next() bool {
	i.offset = i.nextOffset
	if !i.Valid() {
		return false
	}
	i.loadEntry()
	return true
}

// Prev steps back to the previous entry, maintaining a cache of entries
// visited since the last restart point because the block's encoding is
// forward-only (spec §4.4).
func (i *blockIter) Prev() bool {
	if n := len(i.cached) - 1; n > 0 && i.cached[n].offset == i.offset {
		i.nextOffset = i.offset
		e := &i.cached[n-1]
		i.offset = e.offset
		i.key = e.key
		i.val = e.val
		i.decodeInternalKey()
		i.cached = i.cached[:n]
		return true
	}

	if i.offset == 0 {
		i.offset = -1
		i.nextOffset = 0
		return false
	}

	target := i.offset
	index := binarySearch(i.numRestarts, func(j int) bool {
		return i.restartPoint(j) < target
	})
	i.offset = 0
	if index > 0 {
		i.offset = i.restartPoint(index - 1)
	}

	i.readEntry()
	i.clearCache()
	i.cacheEntry()
	for i.nextOffset < target {
		i.offset = i.nextOffset
		i.readEntry()
		i.cacheEntry()
	}
	i.decodeInternalKey()
	return true
}

func (i *blockIter) Key() base.InternalKey { return i.ikey }

func (i *blockIter) Value() []byte { return i.val }

func (i *blockIter) Valid() bool { return i.offset >= 0 && i.offset < i.restarts }

func (i *blockIter) Close() error { return nil }

// binarySearch returns the smallest index in [0, n) for which pred(index)
// is false, or n if pred is true everywhere. pred must be true for a
// prefix of [0, n) and false afterward.
func binarySearch(n int, pred func(int) bool) int {
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if pred(mid) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

var errShortBlock = errors.New("lsmkv: block handle points past end of file")
