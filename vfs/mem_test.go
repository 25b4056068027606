// Copyright 2013 Suryandaru Triandana. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package vfs

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemFSCreateWriteReadRoundTrip(t *testing.T) {
	fs := NewMem()
	f, err := fs.Create("a/b/c")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rf, err := fs.Open("a/b/c")
	require.NoError(t, err)
	defer rf.Close()
	buf, err := io.ReadAll(rf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestMemFSOpenMissingReturnsNotExist(t *testing.T) {
	fs := NewMem()
	_, err := fs.Open("nope")
	assert.True(t, os.IsNotExist(err))
}

func TestMemFSReadAt(t *testing.T) {
	fs := NewMem()
	f, err := fs.Create("f")
	require.NoError(t, err)
	_, err = f.Write([]byte("0123456789"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := f.ReadAt(buf, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "3456", string(buf))

	n, err = f.ReadAt(buf, 8)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 2, n)
}

func TestMemFSRemove(t *testing.T) {
	fs := NewMem()
	_, err := fs.Create("f")
	require.NoError(t, err)

	require.NoError(t, fs.Remove("f"))
	_, err = fs.Open("f")
	assert.True(t, os.IsNotExist(err))

	err = fs.Remove("f")
	assert.True(t, os.IsNotExist(err))
}

func TestMemFSRemoveAllDeletesSubtree(t *testing.T) {
	fs := NewMem()
	for _, name := range []string{"dir/a", "dir/b", "dir/sub/c", "other"} {
		_, err := fs.Create(name)
		require.NoError(t, err)
	}

	require.NoError(t, fs.RemoveAll("dir"))

	_, err := fs.Open("dir/a")
	assert.True(t, os.IsNotExist(err))
	_, err = fs.Open("dir/sub/c")
	assert.True(t, os.IsNotExist(err))
	_, err = fs.Open("other")
	assert.NoError(t, err)
}

func TestMemFSRename(t *testing.T) {
	fs := NewMem()
	f, err := fs.Create("old")
	require.NoError(t, err)
	_, err = f.Write([]byte("data"))
	require.NoError(t, err)

	require.NoError(t, fs.Rename("old", "new"))
	_, err = fs.Open("old")
	assert.True(t, os.IsNotExist(err))

	rf, err := fs.Open("new")
	require.NoError(t, err)
	buf, err := io.ReadAll(rf)
	require.NoError(t, err)
	assert.Equal(t, "data", string(buf))
}

func TestMemFSMkdirAllIsIdempotent(t *testing.T) {
	fs := NewMem()
	require.NoError(t, fs.MkdirAll("a/b/c", 0755))
	require.NoError(t, fs.MkdirAll("a/b/c", 0755))

	fi, err := fs.Stat("a/b/c")
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestMemFSMkdirAllRejectsFileCollision(t *testing.T) {
	fs := NewMem()
	_, err := fs.Create("a")
	require.NoError(t, err)

	err = fs.MkdirAll("a", 0755)
	assert.Error(t, err)
}

func TestMemFSLockPreventsSecondLock(t *testing.T) {
	fs := NewMem()
	l1, err := fs.Lock("LOCK")
	require.NoError(t, err)

	_, err = fs.Lock("LOCK")
	assert.Error(t, err)

	require.NoError(t, l1.Close())

	l2, err := fs.Lock("LOCK")
	require.NoError(t, err)
	require.NoError(t, l2.Close())
}

func TestMemFSList(t *testing.T) {
	fs := NewMem()
	for _, name := range []string{"dir/a", "dir/b", "dir/sub/c", "top"} {
		_, err := fs.Create(name)
		require.NoError(t, err)
	}

	names, err := fs.List("dir")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "sub"}, names)

	names, err = fs.List("")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"dir", "top"}, names)
}

func TestMemFSStatReportsSize(t *testing.T) {
	fs := NewMem()
	f, err := fs.Create("f")
	require.NoError(t, err)
	_, err = f.Write([]byte("abcde"))
	require.NoError(t, err)

	fi, err := fs.Stat("f")
	require.NoError(t, err)
	assert.Equal(t, "f", fi.Name())
	assert.Equal(t, int64(5), fi.Size())
	assert.False(t, fi.IsDir())
}

func TestMemFSPathHelpers(t *testing.T) {
	fs := NewMem()
	assert.Equal(t, "a/b", fs.PathJoin("a", "b"))
	assert.Equal(t, "b", fs.PathBase("a/b"))
	assert.Equal(t, "a", fs.PathDir("a/b"))
}

func TestMemFSGetDiskUsage(t *testing.T) {
	fs := NewMem()
	du, err := fs.GetDiskUsage("")
	require.NoError(t, err)
	assert.True(t, du.AvailBytes > 0)
	assert.True(t, du.TotalBytes > 0)
}

func TestMemFSReuseForWrite(t *testing.T) {
	fs := NewMem()
	f, err := fs.Create("old")
	require.NoError(t, err)
	_, err = f.Write([]byte("data"))
	require.NoError(t, err)

	rf, err := fs.ReuseForWrite("old", "new")
	require.NoError(t, err)
	defer rf.Close()

	buf, err := io.ReadAll(rf)
	require.NoError(t, err)
	assert.Equal(t, "data", string(buf))

	_, err = fs.Open("old")
	assert.True(t, os.IsNotExist(err))
}
