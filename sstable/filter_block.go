// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"encoding/binary"

	"github.com/student-go/lsmkv/internal/base"
)

// filterBlockBuilder partitions a table file into filterBase-sized address
// ranges and stores one filter per range, over the keys of every data
// block whose start offset falls in that range (spec §4.5).
type filterBlockBuilder struct {
	policy FilterPolicy

	keys       [][]byte
	keyData    []byte
	result     []byte
	filterOffs []uint32
}

func newFilterBlockBuilder(policy FilterPolicy) *filterBlockBuilder {
	return &filterBlockBuilder{policy: policy}
}

// startBlock is called whenever a new data block begins at offset,
// generating filters for every filterBase range boundary already passed.
func (b *filterBlockBuilder) startBlock(offset uint64) {
	index := offset / filterBase
	for index > uint64(len(b.filterOffs)) {
		b.generateFilter()
	}
}

// addKey records a key belonging to the data block currently being built,
// which starts at blockOffset in the file.
func (b *filterBlockBuilder) addKey(key []byte, blockOffset uint64) {
	b.startBlock(blockOffset)
	b.keyData = append(b.keyData, key...)
	b.keys = append(b.keys, b.keyData[len(b.keyData)-len(key):])
}

func (b *filterBlockBuilder) generateFilter() {
	if len(b.keys) == 0 {
		// No keys landed in this range; record that its filter is empty by
		// reusing the current result length (spec leaves ranges with no
		// covered block empty, and a query against an empty filter fails
		// open to a real block read).
		b.filterOffs = append(b.filterOffs, uint32(len(b.result)))
		return
	}
	b.filterOffs = append(b.filterOffs, uint32(len(b.result)))
	b.result = b.policy.CreateFilter(b.keys, b.result)
	b.keys = b.keys[:0]
	b.keyData = b.keyData[:0]
}

// finish emits the final filter block: concatenated per-range filters,
// their offsets, the 4-byte offset of the offset array, and the 1-byte
// base log.
func (b *filterBlockBuilder) finish() []byte {
	if len(b.keys) > 0 {
		b.generateFilter()
	}
	offsetArrayStart := uint32(len(b.result))
	buf := append([]byte(nil), b.result...)
	var tmp4 [4]byte
	for _, off := range b.filterOffs {
		binary.LittleEndian.PutUint32(tmp4[:], off)
		buf = append(buf, tmp4[:]...)
	}
	binary.LittleEndian.PutUint32(tmp4[:], offsetArrayStart)
	buf = append(buf, tmp4[:]...)
	buf = append(buf, filterBaseLog)
	return buf
}

// filterBlockReader answers MayContain queries against a decoded filter
// block.
type filterBlockReader struct {
	policy     FilterPolicy
	data       []byte
	offsetsPos uint32
	numFilters uint32
	baseLg     byte
}

func newFilterBlockReader(policy FilterPolicy, data []byte) (*filterBlockReader, error) {
	if len(data) < 5 {
		return nil, base.CorruptionErrorf("lsmkv: filter block too small")
	}
	baseLg := data[len(data)-1]
	offsetsPos := binary.LittleEndian.Uint32(data[len(data)-5:])
	if uint64(offsetsPos) > uint64(len(data)-5) {
		return nil, base.CorruptionErrorf("lsmkv: corrupt filter block")
	}
	numFilters := (uint32(len(data)-5) - offsetsPos) / 4
	return &filterBlockReader{
		policy:     policy,
		data:       data,
		offsetsPos: offsetsPos,
		numFilters: numFilters,
		baseLg:     baseLg,
	}, nil
}

// mayContain reports whether key might be present in the data block(s)
// starting at blockOffset.
func (r *filterBlockReader) mayContain(blockOffset uint64, key []byte) bool {
	index := blockOffset >> r.baseLg
	if uint32(index) >= r.numFilters {
		// Out of range: fail open rather than risk a false negative.
		return true
	}
	start := binary.LittleEndian.Uint32(r.data[r.offsetsPos+4*uint32(index):])
	var limit uint32
	if uint32(index)+1 < r.numFilters {
		limit = binary.LittleEndian.Uint32(r.data[r.offsetsPos+4*(uint32(index)+1):])
	} else {
		limit = r.offsetsPos
	}
	if start == limit {
		// Empty filter for this range: no data block started here.
		return false
	}
	return r.policy.MayContain(r.data[start:limit], key)
}
