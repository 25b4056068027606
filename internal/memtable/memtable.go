// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package memtable implements the in-memory mutable table: an ordered set
// of internal keys backed by a skiplist whose nodes are ordinary Go heap
// allocations (spec §4.2). A
// single writer inserts while holding the DB mutex; readers traverse
// lock-free once they have captured a reference.
package memtable

import (
	"math/rand"
	"sync/atomic"

	"github.com/student-go/lsmkv/internal/base"
)

const maxHeight = 20
const branching = 4

// node is one skiplist entry. key and value are the slices passed to Add;
// they are not copied.
type node struct {
	key     base.InternalKey
	value   []byte
	height  int
	tower   [maxHeight]atomic.Pointer[node]
}

// Memtable is a concurrent-read skiplist over encoded internal keys. All
// mutation happens through Add, called only by the current writer holding
// the DB mutex; Get and iterators may run concurrently with no lock.
type Memtable struct {
	cmp    base.Compare
	head   node
	rnd    *rand.Rand
	size   int64 // ApproximateMemoryUsage, updated atomically
	logNum base.FileNum
}

// New returns an empty memtable ordered by cmp. logNum identifies the WAL
// this memtable's writes are being appended to, recorded so flush can
// advance the version edit's log number (VersionEdit.SetLogNumber) correctly.
func New(cmp base.Compare, logNum base.FileNum) *Memtable {
	m := &Memtable{
		cmp:    cmp,
		rnd:    rand.New(rand.NewSource(0xdeadbeef)),
		logNum: logNum,
	}
	m.head.height = maxHeight
	return m
}

// LogNum returns the WAL file number this memtable's entries were appended
// to.
func (m *Memtable) LogNum() base.FileNum { return m.logNum }

func (m *Memtable) randomHeight() int {
	h := 1
	for h < maxHeight && m.rnd.Intn(branching) == 0 {
		h++
	}
	return h
}

// compareKeys orders by internal key: user key ascending, then trailer
// descending (newest entry for a user key sorts first).
func (m *Memtable) compareKeys(a, b base.InternalKey) int {
	return base.InternalCompare(m.cmp, a, b)
}

// findSplice walks the tower from the top, returning (prev, next) at every
// level for the insertion point of key.
func (m *Memtable) findSplice(key base.InternalKey) (prev, next [maxHeight]*node) {
	x := &m.head
	for level := maxHeight - 1; level >= 0; level-- {
		for {
			n := x.tower[level].Load()
			if n == nil || m.compareKeys(n.key, key) >= 0 {
				break
			}
			x = n
		}
		prev[level] = x
		if n := x.tower[level].Load(); n != nil {
			next[level] = n
		}
	}
	return prev, next
}

// Add inserts (key, value); keys must be added in non-decreasing internal
// key order is not required (the comparator total-orders on seqnum too),
// but the caller (the DB write path) always adds in increasing sequence
// number order within a batch.
func (m *Memtable) Add(key base.InternalKey, value []byte) {
	height := m.randomHeight()
	n := &node{key: key, value: value, height: height}
	prev, _ := m.findSplice(key)
	for level := 0; level < height; level++ {
		n.tower[level].Store(prev[level].tower[level].Load())
		prev[level].tower[level].Store(n)
	}
	atomic.AddInt64(&m.size, int64(key.Size()+len(value)+nodeOverhead))
}

// nodeOverhead approximates the node bookkeeping and tower pointer cost
// per entry, used only to drive ApproximateMemoryUsage's rotation
// decision; it need not be exact.
const nodeOverhead = 48

// ApproximateMemoryUsage returns the approximate number of bytes consumed
// by the memtable's entries so far, used to trigger the mutable → immutable
// handoff once it exceeds Options.WriteBufferSize.
func (m *Memtable) ApproximateMemoryUsage() int64 {
	return atomic.LoadInt64(&m.size)
}

// LookupResult is returned by Get.
type LookupResult int

const (
	// NotFound means no entry for the user key exists at or below the
	// probed sequence number.
	NotFound LookupResult = iota
	// Found means a live Set entry was found.
	Found
	// Deleted means the newest visible entry is a tombstone.
	Deleted
)

// Get performs a seek for the first entry whose internal key is >= the
// encoded lookup key. If that entry shares the probed user key, its kind
// determines Found/Deleted; otherwise NotFound.
func (m *Memtable) Get(userKey []byte, seqNum base.SeqNum) (value []byte, result LookupResult) {
	probe := base.MakeInternalKey(userKey, seqNum, base.InternalKeyKindMax)
	x := &m.head
	for level := maxHeight - 1; level >= 0; level-- {
		for {
			n := x.tower[level].Load()
			if n == nil || m.compareKeys(n.key, probe) >= 0 {
				break
			}
			x = n
		}
	}
	n := x.tower[0].Load()
	if n == nil || m.cmp(n.key.UserKey, userKey) != 0 {
		return nil, NotFound
	}
	if n.key.Kind() == base.InternalKeyKindDelete {
		return nil, Deleted
	}
	return n.value, Found
}
