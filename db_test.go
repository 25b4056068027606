// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/student-go/lsmkv/internal/base"
	"github.com/student-go/lsmkv/vfs"
)

func openTestDB(t *testing.T, opts *Options) (*DB, vfs.FS) {
	t.Helper()
	fs := vfs.NewMem()
	if opts == nil {
		opts = &Options{}
	}
	opts.FS = fs
	opts.CreateIfMissing = true
	d, err := Open("", opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d, fs
}

func TestSetGetDelete(t *testing.T) {
	d, _ := openTestDB(t, nil)

	require.NoError(t, d.Set([]byte("a"), []byte("1"), nil))
	val, err := d.Get([]byte("a"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), val)

	require.NoError(t, d.Delete([]byte("a"), nil))
	_, err = d.Get([]byte("a"), nil)
	assert.Equal(t, base.ErrNotFound, err)

	_, err = d.Get([]byte("never-set"), nil)
	assert.Equal(t, base.ErrNotFound, err)
}

func TestApplyBatchIsAtomic(t *testing.T) {
	d, _ := openTestDB(t, nil)

	b := NewBatch()
	require.NoError(t, b.Set([]byte("x"), []byte("1")))
	require.NoError(t, b.Set([]byte("y"), []byte("2")))
	require.NoError(t, b.Delete([]byte("z")))
	require.NoError(t, d.Apply(b, nil))

	v, err := d.Get([]byte("x"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	v, err = d.Get([]byte("y"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)

	_, err = d.Get([]byte("z"), nil)
	assert.Equal(t, base.ErrNotFound, err)
}

func TestFlushWritesLevel0Table(t *testing.T) {
	d, _ := openTestDB(t, nil)

	require.NoError(t, d.Set([]byte("a"), []byte("1"), nil))
	require.NoError(t, d.Set([]byte("b"), []byte("2"), nil))
	require.NoError(t, d.Flush())

	v, err := d.Get([]byte("a"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	m := d.Metrics()
	assert.True(t, m != nil)
}

func TestSnapshotIsolatesLaterWrites(t *testing.T) {
	d, _ := openTestDB(t, nil)

	require.NoError(t, d.Set([]byte("k"), []byte("before"), nil))
	snap := d.NewSnapshot()

	require.NoError(t, d.Set([]byte("k"), []byte("after"), nil))

	v, err := d.Get([]byte("k"), &ReadOptions{Snapshot: snap})
	require.NoError(t, err)
	assert.Equal(t, []byte("before"), v)

	v, err = d.Get([]byte("k"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("after"), v)

	require.NoError(t, snap.Close())
}

func TestNewIterYieldsLiveKeysInOrder(t *testing.T) {
	d, _ := openTestDB(t, nil)

	for _, k := range []string{"c", "a", "b", "d"} {
		require.NoError(t, d.Set([]byte(k), []byte(k), nil))
	}
	require.NoError(t, d.Delete([]byte("b"), nil))
	require.NoError(t, d.Flush())
	require.NoError(t, d.Set([]byte("e"), []byte("e"), nil))

	it, err := d.NewIter(nil)
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for it.First(); it.Valid(); it.Next() {
		got = append(got, string(it.Key()))
	}
	require.NoError(t, it.Error())
	assert.Equal(t, []string{"a", "c", "d", "e"}, got)
}

func TestIteratorSeekGE(t *testing.T) {
	d, _ := openTestDB(t, nil)
	for _, k := range []string{"a", "c", "e"} {
		require.NoError(t, d.Set([]byte(k), []byte(k), nil))
	}

	it, err := d.NewIter(nil)
	require.NoError(t, err)
	defer it.Close()

	it.SeekGE([]byte("b"))
	require.True(t, it.Valid())
	assert.Equal(t, "c", string(it.Key()))
}

func TestIteratorPrevWalksBackThroughVisitedKeys(t *testing.T) {
	d, _ := openTestDB(t, nil)
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, d.Set([]byte(k), []byte(k), nil))
	}

	it, err := d.NewIter(nil)
	require.NoError(t, err)
	defer it.Close()

	it.First()
	var forward []string
	for ; it.Valid(); it.Next() {
		forward = append(forward, string(it.Key()))
	}
	require.NoError(t, it.Error())
	assert.Equal(t, []string{"a", "b", "c", "d"}, forward)

	// Next() past the last entry invalidates the iterator; Prev on an
	// invalid iterator leaves it invalid.
	it.Prev()
	assert.False(t, it.Valid())

	it.SeekGE([]byte("c"))
	require.True(t, it.Valid())
	assert.Equal(t, "c", string(it.Key()))

	it.Prev()
	assert.False(t, it.Valid(), "Prev from the first visited entry invalidates the iterator")
}

func TestIteratorPrevThenNextReplaysBufferedEntries(t *testing.T) {
	d, _ := openTestDB(t, nil)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, d.Set([]byte(k), []byte(k), nil))
	}

	it, err := d.NewIter(nil)
	require.NoError(t, err)
	defer it.Close()

	it.First()
	it.Next()
	it.Next()
	require.True(t, it.Valid())
	assert.Equal(t, "c", string(it.Key()))

	it.Prev()
	assert.Equal(t, "b", string(it.Key()))
	it.Prev()
	assert.Equal(t, "a", string(it.Key()))

	it.Next()
	assert.Equal(t, "b", string(it.Key()))
	it.Next()
	assert.Equal(t, "c", string(it.Key()))
}

func TestCompactRangeMergesLevel0IntoLevel1(t *testing.T) {
	d, _ := openTestDB(t, nil)

	for i := 0; i < 20; i++ {
		k := fmt.Sprintf("key-%03d", i)
		require.NoError(t, d.Set([]byte(k), []byte(k), nil))
		require.NoError(t, d.Flush())
	}

	require.NoError(t, d.CompactRange(nil, []byte{0xff}))

	for i := 0; i < 20; i++ {
		k := fmt.Sprintf("key-%03d", i)
		v, err := d.Get([]byte(k), nil)
		require.NoError(t, err, "key %s", k)
		assert.Equal(t, []byte(k), v)
	}
}

func TestReopenRecoversUnflushedWrites(t *testing.T) {
	fs := vfs.NewMem()
	opts := &Options{FS: fs, CreateIfMissing: true}

	d, err := Open("", opts)
	require.NoError(t, err)
	require.NoError(t, d.Set([]byte("a"), []byte("1"), Sync))
	require.NoError(t, d.Set([]byte("b"), []byte("2"), Sync))
	require.NoError(t, d.Close())

	d2, err := Open("", &Options{FS: fs})
	require.NoError(t, err)
	defer d2.Close()

	v, err := d2.Get([]byte("a"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	v, err = d2.Get([]byte("b"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}

func TestGetOnClosedDBReturnsErrClosed(t *testing.T) {
	d, _ := openTestDB(t, nil)
	require.NoError(t, d.Close())

	_, err := d.Get([]byte("a"), nil)
	assert.Equal(t, base.ErrClosed, err)
}
