// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package memtable

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/student-go/lsmkv/internal/base"
)

func TestMemtableGetSetAndDelete(t *testing.T) {
	m := New(base.DefaultComparer.Compare, 1)

	m.Add(base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindSet), []byte("1"))
	m.Add(base.MakeInternalKey([]byte("b"), 2, base.InternalKeyKindSet), []byte("2"))

	val, res := m.Get([]byte("a"), 10)
	assert.Equal(t, Found, res)
	assert.Equal(t, []byte("1"), val)

	_, res = m.Get([]byte("missing"), 10)
	assert.Equal(t, NotFound, res)

	m.Add(base.MakeInternalKey([]byte("a"), 3, base.InternalKeyKindDelete), nil)
	_, res = m.Get([]byte("a"), 10)
	assert.Equal(t, Deleted, res)

	// A read at a seqnum below the delete must not observe it.
	val, res = m.Get([]byte("a"), 2)
	assert.Equal(t, Found, res)
	assert.Equal(t, []byte("1"), val)
}

func TestMemtableGetReturnsNewestVisibleEntry(t *testing.T) {
	m := New(base.DefaultComparer.Compare, 1)
	m.Add(base.MakeInternalKey([]byte("k"), 1, base.InternalKeyKindSet), []byte("old"))
	m.Add(base.MakeInternalKey([]byte("k"), 5, base.InternalKeyKindSet), []byte("new"))

	val, res := m.Get([]byte("k"), 100)
	assert.Equal(t, Found, res)
	assert.Equal(t, []byte("new"), val)

	val, res = m.Get([]byte("k"), 3)
	assert.Equal(t, Found, res)
	assert.Equal(t, []byte("old"), val)
}

func TestMemtableIteratorOrdersByUserKey(t *testing.T) {
	m := New(base.DefaultComparer.Compare, 1)
	for i, key := range []string{"c", "a", "b"} {
		m.Add(base.MakeInternalKey([]byte(key), base.SeqNum(i+1), base.InternalKeyKindSet), []byte(key))
	}

	it := m.NewIter()
	it.First()
	var got []string
	for it.Valid() {
		got = append(got, string(it.Key().UserKey))
		it.Next()
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestMemtableIteratorSeekGE(t *testing.T) {
	m := New(base.DefaultComparer.Compare, 1)
	for i, key := range []string{"a", "c", "e"} {
		m.Add(base.MakeInternalKey([]byte(key), base.SeqNum(i+1), base.InternalKeyKindSet), []byte(key))
	}

	it := m.NewIter()
	it.SeekGE(base.MakeInternalKey([]byte("b"), base.SeqNumMax, base.InternalKeyKindMax))
	assert.True(t, it.Valid())
	assert.Equal(t, []byte("c"), it.Key().UserKey)
}

func TestMemtableApproximateMemoryUsageGrows(t *testing.T) {
	m := New(base.DefaultComparer.Compare, 1)
	assert.Equal(t, int64(0), m.ApproximateMemoryUsage())

	for i := 0; i < 10; i++ {
		m.Add(base.MakeInternalKey([]byte(fmt.Sprintf("k%d", i)), base.SeqNum(i), base.InternalKeyKindSet), []byte("v"))
	}
	assert.True(t, m.ApproximateMemoryUsage() > 0)
}

func TestMemtableLogNum(t *testing.T) {
	m := New(base.DefaultComparer.Compare, 42)
	assert.Equal(t, base.FileNum(42), m.LogNum())
}
