// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/student-go/lsmkv/internal/base"
)

func fileMeta(smallest, largest string) *FileMetadata {
	return &FileMetadata{
		Smallest: base.MakeInternalKey([]byte(smallest), 1, base.InternalKeyKindSet),
		Largest:  base.MakeInternalKey([]byte(largest), 1, base.InternalKeyKindSet),
	}
}

func TestVersionOverlapsLevel0ChecksEveryFile(t *testing.T) {
	v := NewVersion(base.DefaultComparer.Compare)
	v.Files[0] = []*FileMetadata{fileMeta("a", "c"), fileMeta("b", "e"), fileMeta("m", "n")}

	got := v.Overlaps(0, []byte("d"), []byte("d"))
	assert.Len(t, got, 1)
	assert.Equal(t, []byte("b"), got[0].Smallest.UserKey)
}

func TestVersionOverlapsNonZeroLevelBinarySearches(t *testing.T) {
	v := NewVersion(base.DefaultComparer.Compare)
	v.Files[1] = []*FileMetadata{fileMeta("a", "c"), fileMeta("d", "f"), fileMeta("g", "i")}

	got := v.Overlaps(1, []byte("e"), []byte("h"))
	assert.Len(t, got, 2)
	assert.Equal(t, []byte("d"), got[0].Smallest.UserKey)
	assert.Equal(t, []byte("g"), got[1].Smallest.UserKey)
}

func TestVersionContains(t *testing.T) {
	v := NewVersion(base.DefaultComparer.Compare)
	v.Files[1] = []*FileMetadata{fileMeta("a", "c"), fileMeta("g", "i")}

	assert.True(t, v.Contains(1, []byte("b")))
	assert.False(t, v.Contains(1, []byte("e")))
}

func TestFileMetadataInitAllowedSeeksFloor(t *testing.T) {
	m := &FileMetadata{Size: 1024}
	m.InitAllowedSeeks()
	assert.Equal(t, int64(100), m.AllowedSeeks)

	m = &FileMetadata{Size: 4 << 20}
	m.InitAllowedSeeks()
	assert.Equal(t, int64((4<<20)/(16*1024)), m.AllowedSeeks)
}

func TestFileMetadataRefCounting(t *testing.T) {
	m := &FileMetadata{}
	m.Ref()
	m.Ref()
	assert.Equal(t, int32(2), m.Refs())
	assert.Equal(t, int32(1), m.Unref())
}

func TestBuilderAppliesAddsAndDeletes(t *testing.T) {
	base0 := NewVersion(base.DefaultComparer.Compare)
	base0.Files[1] = []*FileMetadata{{FileNum: 1, Smallest: base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindSet), Largest: base.MakeInternalKey([]byte("c"), 1, base.InternalKeyKindSet)}}

	b := NewBuilder(base.DefaultComparer.Compare)
	edit := &VersionEdit{}
	edit.DeleteFile(1, 1)
	edit.AddFile(1, &FileMetadata{FileNum: 2, Smallest: base.MakeInternalKey([]byte("d"), 2, base.InternalKeyKindSet), Largest: base.MakeInternalKey([]byte("f"), 2, base.InternalKeyKindSet)})
	b.Apply(edit)

	v, err := b.Finish(base0)
	assert.NoError(t, err)
	assert.Len(t, v.Files[1], 1)
	assert.Equal(t, base.FileNum(2), v.Files[1][0].FileNum)
}

func TestBuilderFinishRejectsOverlappingLevel(t *testing.T) {
	base0 := NewVersion(base.DefaultComparer.Compare)
	b := NewBuilder(base.DefaultComparer.Compare)
	edit := &VersionEdit{}
	edit.AddFile(1, &FileMetadata{FileNum: 1, Smallest: base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindSet), Largest: base.MakeInternalKey([]byte("e"), 1, base.InternalKeyKindSet)})
	edit.AddFile(1, &FileMetadata{FileNum: 2, Smallest: base.MakeInternalKey([]byte("c"), 2, base.InternalKeyKindSet), Largest: base.MakeInternalKey([]byte("g"), 2, base.InternalKeyKindSet)})
	b.Apply(edit)

	_, err := b.Finish(base0)
	assert.Error(t, err)
}

func TestVersionEditEncodeDecodeRoundTrip(t *testing.T) {
	edit := &VersionEdit{ComparerName: "leveldb.BytewiseComparator"}
	edit.SetLogNumber(5)
	edit.SetNextFileNumber(6)
	edit.SetLastSequence(100)
	edit.AddFile(0, &FileMetadata{
		FileNum:  3,
		Size:     1234,
		Smallest: base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindSet),
		Largest:  base.MakeInternalKey([]byte("z"), 2, base.InternalKeyKindDelete),
	})
	edit.DeleteFile(0, 1)

	var buf bytes.Buffer
	assert.NoError(t, edit.Encode(&buf))

	var got VersionEdit
	assert.NoError(t, got.Decode(&buf))

	assert.Equal(t, edit.ComparerName, got.ComparerName)
	assert.Equal(t, edit.LogNumber, got.LogNumber)
	assert.Equal(t, edit.NextFileNumber, got.NextFileNumber)
	assert.Equal(t, edit.LastSequence, got.LastSequence)
	assert.Len(t, got.NewFiles, 1)
	assert.Equal(t, base.FileNum(3), got.NewFiles[0].Meta.FileNum)
	assert.Equal(t, uint64(1234), got.NewFiles[0].Meta.Size)
	assert.True(t, got.DeletedFiles[DeletedFileEntry{Level: 0, FileNum: 1}])
}
