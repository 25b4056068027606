// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compaction

import (
	"container/heap"

	"github.com/student-go/lsmkv/internal/base"
	"github.com/student-go/lsmkv/sstable"
)

// InputIterator is the interface Run needs from each input file's
// iterator; satisfied by *sstable.Iterator.
type InputIterator interface {
	First()
	Next() bool
	Valid() bool
	Key() base.InternalKey
	Value() []byte
	Error() error
}

// OutputFile is one table produced by a compaction run.
type OutputFile struct {
	FileNum  base.FileNum
	Size     uint64
	Smallest base.InternalKey
	Largest  base.InternalKey
}

// NewOutputFunc allocates a fresh output table, returning its file number
// and a Writer to build it.
type NewOutputFunc func() (fileNum base.FileNum, w *sstable.Writer, err error)

// FinishOutputFunc is called once a writer is full or the run is
// complete; it finishes and closes the table, returning its final size.
type FinishOutputFunc func(w *sstable.Writer) (size uint64, err error)

type heapItem struct {
	it  InputIterator
	key base.InternalKey
	val []byte
}

type mergeHeap struct {
	cmp   base.Compare
	items []*heapItem
}

func (h *mergeHeap) Len() int { return len(h.items) }
func (h *mergeHeap) Less(i, j int) bool {
	return base.InternalCompare(h.cmp, h.items[i].key, h.items[j].key) < 0
}
func (h *mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap) Push(x interface{}) { h.items = append(h.items, x.(*heapItem)) }
func (h *mergeHeap) Pop() interface{} {
	n := len(h.items)
	item := h.items[n-1]
	h.items = h.items[:n-1]
	return item
}

// Run merges iters (one per input file, already positioned at First by the
// caller or not yet positioned — Run calls First itself) in internal-key
// order. An older version of a user key is dropped only once the newest
// version already emitted for that key is itself old enough that no live
// snapshot could still need the older one (oldestSnapshot, the standard
// LevelDB/Pebble last-sequence-for-key rule); until then every version a
// snapshot might observe survives. Delete entries are additionally dropped
// once elideSeq reports no snapshot can still observe them (spec §4.9,
// §8's "compaction preserves user-visible state for every live snapshot").
//
// maxOutputFileSize bounds how large a single output table grows before
// Run finishes it and starts a new one via newOutput.
func Run(
	cmp base.Compare,
	iters []InputIterator,
	oldestSnapshot base.SeqNum,
	elideSeq func(seq base.SeqNum) bool,
	maxOutputFileSize uint64,
	newOutput NewOutputFunc,
	finishOutput FinishOutputFunc,
) ([]OutputFile, error) {
	h := &mergeHeap{cmp: cmp}
	for _, it := range iters {
		it.First()
		if it.Valid() {
			h.items = append(h.items, &heapItem{it: it, key: it.Key(), val: it.Value()})
		} else if err := it.Error(); err != nil {
			return nil, err
		}
	}
	heap.Init(h)

	var outputs []OutputFile
	var curFileNum base.FileNum
	var curWriter *sstable.Writer
	var curSmallest, curLargest base.InternalKey
	var haveCur bool

	closeOutput := func() error {
		if curWriter == nil {
			return nil
		}
		size, err := finishOutput(curWriter)
		if err != nil {
			return err
		}
		outputs = append(outputs, OutputFile{FileNum: curFileNum, Size: size, Smallest: curSmallest, Largest: curLargest})
		curWriter = nil
		haveCur = false
		return nil
	}

	var curUserKey []byte
	var haveCurUserKey bool
	var lastSeqForKey base.SeqNum

	for h.Len() > 0 {
		top := h.items[0]
		key, val := top.key, top.val

		firstForKey := false
		if !haveCurUserKey || cmp(key.UserKey, curUserKey) != 0 {
			curUserKey = key.UserKey
			haveCurUserKey = true
			lastSeqForKey = base.SeqNumMax
			firstForKey = true
		}

		skip := false
		switch {
		case !firstForKey && lastSeqForKey <= oldestSnapshot:
			// The newest version of this user key already emitted is old
			// enough that no live snapshot can still need an older one.
			skip = true
		case key.Kind() == base.InternalKeyKindDelete && elideSeq(key.SeqNum()):
			skip = true
		}
		lastSeqForKey = key.SeqNum()

		if !skip {
			if curWriter == nil {
				fn, w, err := newOutput()
				if err != nil {
					return nil, err
				}
				curFileNum, curWriter = fn, w
				curSmallest = key
				haveCur = true
			}
			if err := curWriter.Add(key, val); err != nil {
				return nil, err
			}
			curLargest = key
			if haveCur && curWriter.FileSize() >= maxOutputFileSize {
				if err := closeOutput(); err != nil {
					return nil, err
				}
			}
		}

		if top.it.Next() {
			top.key, top.val = top.it.Key(), top.it.Value()
			heap.Fix(h, 0)
		} else {
			if err := top.it.Error(); err != nil {
				return nil, err
			}
			heap.Pop(h)
		}
	}

	if err := closeOutput(); err != nil {
		return nil, err
	}
	return outputs, nil
}
