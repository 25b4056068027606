// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/student-go/lsmkv/internal/base"
)

type closingBuffer struct{ bytes.Buffer }

func (c *closingBuffer) Close() error { return nil }

func (c *closingBuffer) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(c.Bytes()).ReadAt(p, off)
}

func buildTable(t *testing.T, opts WriterOptions, n int) (*closingBuffer, []string) {
	t.Helper()
	var buf closingBuffer
	w := NewWriter(&buf, opts)
	var keys []string
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("key-%04d", i)
		keys = append(keys, k)
		ik := base.MakeInternalKey([]byte(k), base.SeqNum(i+1), base.InternalKeyKindSet)
		assert.NoError(t, w.Add(ik, []byte(fmt.Sprintf("value-%d", i))))
	}
	assert.NoError(t, w.Finish())
	return &buf, keys
}

func TestWriterReaderRoundTripIteration(t *testing.T) {
	opts := WriterOptions{BlockSize: 256, RestartInterval: 4}
	buf, keys := buildTable(t, opts, 50)

	r, err := NewReader(buf, int64(buf.Len()), ReaderOptions{})
	assert.NoError(t, err)
	defer r.Close()

	it, err := r.NewIter()
	assert.NoError(t, err)
	defer it.Close()

	it.First()
	for i, want := range keys {
		assert.True(t, it.Valid(), "entry %d", i)
		assert.Equal(t, want, string(it.Key().UserKey))
		assert.Equal(t, fmt.Sprintf("value-%d", i), string(it.Value()))
		it.Next()
	}
	assert.False(t, it.Valid())
}

func TestWriterReaderGetFindsEveryKey(t *testing.T) {
	opts := WriterOptions{BlockSize: 256, RestartInterval: 4}
	buf, keys := buildTable(t, opts, 30)

	r, err := NewReader(buf, int64(buf.Len()), ReaderOptions{})
	assert.NoError(t, err)
	defer r.Close()

	for i, k := range keys {
		_, val, err := r.Get([]byte(k))
		assert.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("value-%d", i), string(val))
	}
}

func TestReaderGetMissingKeyReturnsNotFound(t *testing.T) {
	opts := WriterOptions{BlockSize: 256, RestartInterval: 4}
	buf, _ := buildTable(t, opts, 10)

	r, err := NewReader(buf, int64(buf.Len()), ReaderOptions{})
	assert.NoError(t, err)
	defer r.Close()

	_, _, err = r.Get([]byte("not-a-real-key"))
	assert.Equal(t, base.ErrNotFound, err)
}

func TestWriterReaderRoundTripWithS2Compression(t *testing.T) {
	opts := WriterOptions{BlockSize: 256, RestartInterval: 4, Compression: S2Compression}
	buf, keys := buildTable(t, opts, 50)

	r, err := NewReader(buf, int64(buf.Len()), ReaderOptions{})
	assert.NoError(t, err)
	defer r.Close()

	for i, k := range keys {
		_, val, err := r.Get([]byte(k))
		assert.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("value-%d", i), string(val))
	}
}

func TestWriterRejectsOutOfOrderKeys(t *testing.T) {
	var buf closingBuffer
	w := NewWriter(&buf, WriterOptions{})
	assert.NoError(t, w.Add(base.MakeInternalKey([]byte("b"), 1, base.InternalKeyKindSet), []byte("1")))
	err := w.Add(base.MakeInternalKey([]byte("a"), 2, base.InternalKeyKindSet), []byte("2"))
	assert.Error(t, err)
}

func TestWriterTracksSmallestAndLargest(t *testing.T) {
	var buf closingBuffer
	w := NewWriter(&buf, WriterOptions{})
	assert.NoError(t, w.Add(base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindSet), []byte("1")))
	assert.NoError(t, w.Add(base.MakeInternalKey([]byte("z"), 2, base.InternalKeyKindSet), []byte("2")))
	assert.NoError(t, w.Finish())

	assert.Equal(t, []byte("a"), w.Smallest().UserKey)
	assert.Equal(t, []byte("z"), w.Largest().UserKey)
	assert.Equal(t, 2, w.EntryCount())
	assert.True(t, w.FileSize() > 0)
}

func TestReaderWithFilterPolicyRejectsMissingKey(t *testing.T) {
	opts := WriterOptions{BlockSize: 256, RestartInterval: 4, FilterPolicy: testFilterPolicy{}}
	buf, _ := buildTable(t, opts, 20)

	r, err := NewReader(buf, int64(buf.Len()), ReaderOptions{FilterPolicy: testFilterPolicy{}})
	assert.NoError(t, err)
	defer r.Close()

	_, _, err = r.Get([]byte("definitely-absent"))
	assert.Equal(t, base.ErrNotFound, err)
}

func TestReaderWithFilterPolicyNegativeLookupNeverTouchesBlockCache(t *testing.T) {
	opts := WriterOptions{BlockSize: 256, RestartInterval: 4, FilterPolicy: testFilterPolicy{}}
	buf, _ := buildTable(t, opts, 20)

	cache := NewBlockCache(16)
	r, err := NewReader(buf, int64(buf.Len()), ReaderOptions{FilterPolicy: testFilterPolicy{}, BlockCache: cache})
	assert.NoError(t, err)
	defer r.Close()
	// NewReader's own index and metaindex reads go through the cache; only
	// the lookup itself is checked here.
	hitsBefore, missesBefore := cache.Hits(), cache.Misses()

	_, _, err = r.Get([]byte("definitely-absent"))
	assert.Equal(t, base.ErrNotFound, err)
	assert.Equal(t, hitsBefore, cache.Hits())
	assert.Equal(t, missesBefore, cache.Misses())
}

func TestReaderBlockCacheServesRepeatedReadsWithoutAMiss(t *testing.T) {
	opts := WriterOptions{BlockSize: 256, RestartInterval: 4}
	buf, keys := buildTable(t, opts, 50)

	cache := NewBlockCache(16)
	r, err := NewReader(buf, int64(buf.Len()), ReaderOptions{BlockCache: cache})
	assert.NoError(t, err)
	defer r.Close()

	for _, k := range keys {
		_, _, err := r.Get([]byte(k))
		assert.NoError(t, err)
	}
	missesAfterFirstPass := cache.Misses()
	assert.True(t, missesAfterFirstPass > 0)

	for _, k := range keys {
		_, _, err := r.Get([]byte(k))
		assert.NoError(t, err)
	}
	assert.Equal(t, missesAfterFirstPass, cache.Misses())
	assert.True(t, cache.Hits() > 0)
}

// testFilterPolicy is a minimal exact-set filter (not a real bloom filter)
// used only to exercise the reader/writer's filter-block plumbing without
// pulling in package filter, which would import sstable's sibling
// FilterPolicy interface circularly if tested from here.
type testFilterPolicy struct{}

func (testFilterPolicy) Name() string { return "test.ExactSet" }

func (testFilterPolicy) CreateFilter(keys [][]byte, dst []byte) []byte {
	for _, k := range keys {
		dst = append(dst, byte(len(k)))
		dst = append(dst, k...)
	}
	return dst
}

func (testFilterPolicy) MayContain(filter, key []byte) bool {
	for i := 0; i < len(filter); {
		n := int(filter[i])
		i++
		if i+n > len(filter) {
			return true
		}
		if bytes.Equal(filter[i:i+n], key) {
			return true
		}
		i += n
	}
	return false
}
