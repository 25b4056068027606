// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compaction

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/student-go/lsmkv/internal/base"
	"github.com/student-go/lsmkv/internal/manifest"
	"github.com/student-go/lsmkv/sstable"
)

func meta(num base.FileNum, smallest, largest string, size uint64) *manifest.FileMetadata {
	return &manifest.FileMetadata{
		FileNum:  num,
		Size:     size,
		Smallest: base.MakeInternalKey([]byte(smallest), 1, base.InternalKeyKindSet),
		Largest:  base.MakeInternalKey([]byte(largest), 1, base.InternalKeyKindSet),
	}
}

func TestPickerScoresLevel0ByFileCount(t *testing.T) {
	v := manifest.NewVersion(base.DefaultComparer.Compare)
	v.Files[0] = []*manifest.FileMetadata{
		meta(1, "a", "b", 100), meta(2, "a", "b", 100), meta(3, "a", "b", 100), meta(4, "a", "b", 100),
	}
	p := NewPicker(base.DefaultComparer.Compare)
	c, ok := p.Pick(v, nil, 0)
	assert.True(t, ok)
	assert.Equal(t, 0, c.StartLevel)
	assert.Equal(t, 1, c.OutputLevel)
	assert.Len(t, c.Inputs[0], 4)
}

func TestPickerPicksSeekDrivenCompactionWhenNoSizeTrigger(t *testing.T) {
	v := manifest.NewVersion(base.DefaultComparer.Compare)
	seekFile := meta(9, "m", "n", 10)
	p := NewPicker(base.DefaultComparer.Compare)
	c, ok := p.Pick(v, seekFile, 2)
	assert.True(t, ok)
	assert.Equal(t, 2, c.StartLevel)
	assert.Equal(t, []*manifest.FileMetadata{seekFile}, c.Inputs[0])
}

func TestPickerReturnsFalseWhenNothingToCompact(t *testing.T) {
	v := manifest.NewVersion(base.DefaultComparer.Compare)
	p := NewPicker(base.DefaultComparer.Compare)
	_, ok := p.Pick(v, nil, 0)
	assert.False(t, ok)
}

func TestCompactionExpandOutputsPullsOverlappingOutputLevelFiles(t *testing.T) {
	v := manifest.NewVersion(base.DefaultComparer.Compare)
	v.Files[1] = []*manifest.FileMetadata{meta(1, "a", "m", 100)}
	v.Files[2] = []*manifest.FileMetadata{meta(2, "b", "e", 100), meta(3, "k", "z", 100)}

	c := NewManual(base.DefaultComparer.Compare, v, 1, v.Files[1])
	assert.Len(t, c.Inputs[1], 2)
}

func TestCompactionIsTrivialMoveWhenNoOutputOverlap(t *testing.T) {
	v := manifest.NewVersion(base.DefaultComparer.Compare)
	v.Files[1] = []*manifest.FileMetadata{meta(1, "a", "m", 100)}

	c := NewManual(base.DefaultComparer.Compare, v, 1, v.Files[1])
	assert.True(t, c.IsTrivialMove())
}

func TestCompactionExpandL0PullsInOverlappingSiblings(t *testing.T) {
	v := manifest.NewVersion(base.DefaultComparer.Compare)
	v.Files[0] = []*manifest.FileMetadata{meta(1, "a", "c", 100), meta(2, "b", "e", 100), meta(3, "x", "z", 100)}

	c := NewManual(base.DefaultComparer.Compare, v, 0, []*manifest.FileMetadata{v.Files[0][0]})
	assert.Len(t, c.Inputs[0], 2)
}

// sliceIter is a fake InputIterator over a fixed, already-sorted slice of
// entries, for exercising Run without a real sstable.
type sliceIter struct {
	entries []sliceEntry
	pos     int
}

type sliceEntry struct {
	key base.InternalKey
	val []byte
}

func (s *sliceIter) First()              { s.pos = 0 }
func (s *sliceIter) Next() bool          { s.pos++; return s.pos < len(s.entries) }
func (s *sliceIter) Valid() bool         { return s.pos < len(s.entries) }
func (s *sliceIter) Key() base.InternalKey { return s.entries[s.pos].key }
func (s *sliceIter) Value() []byte       { return s.entries[s.pos].val }
func (s *sliceIter) Error() error        { return nil }

type memSink struct{ bytes.Buffer }

func (m *memSink) Close() error { return nil }

func (m *memSink) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(m.Bytes()).ReadAt(p, off)
}

// runMerge is a small helper that runs Run over iters and reads back the
// resulting single output table's keys/values, in order.
func runMerge(t *testing.T, iters []InputIterator, oldestSnapshot base.SeqNum) ([]string, []string) {
	t.Helper()
	var sinks []*memSink
	newOutput := func() (base.FileNum, *sstable.Writer, error) {
		sink := &memSink{}
		sinks = append(sinks, sink)
		return base.FileNum(len(sinks)), sstable.NewWriter(sink, sstable.WriterOptions{}), nil
	}
	finishOutput := func(w *sstable.Writer) (uint64, error) {
		if err := w.Finish(); err != nil {
			return 0, err
		}
		return w.FileSize(), nil
	}

	_, err := Run(
		base.DefaultComparer.Compare,
		iters,
		oldestSnapshot,
		func(base.SeqNum) bool { return false },
		1<<30,
		newOutput,
		finishOutput,
	)
	assert.NoError(t, err)
	assert.Len(t, sinks, 1)

	r, err := sstable.NewReader(sinks[0], int64(sinks[0].Len()), sstable.ReaderOptions{})
	assert.NoError(t, err)
	defer r.Close()
	it, err := r.NewIter()
	assert.NoError(t, err)
	defer it.Close()

	var gotKeys, gotVals []string
	for it.First(); it.Valid(); it.Next() {
		gotKeys = append(gotKeys, string(it.Key().UserKey))
		gotVals = append(gotVals, string(it.Value()))
	}
	return gotKeys, gotVals
}

func TestRunDropsOlderVersionsWhenNoSnapshotPinsThem(t *testing.T) {
	// Entries for the same user key arrive across inputs in descending
	// sequence order, matching how compaction feeds Run from per-level
	// iterators ordered by InternalCompare. With no live snapshot, the
	// older "a" is shadowed and safe to drop.
	it1 := &sliceIter{entries: []sliceEntry{
		{base.MakeInternalKey([]byte("a"), 5, base.InternalKeyKindSet), []byte("new-a")},
		{base.MakeInternalKey([]byte("c"), 1, base.InternalKeyKindSet), []byte("c")},
	}}
	it2 := &sliceIter{entries: []sliceEntry{
		{base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindSet), []byte("old-a")},
		{base.MakeInternalKey([]byte("b"), 2, base.InternalKeyKindSet), []byte("b")},
	}}

	gotKeys, gotVals := runMerge(t, []InputIterator{it1, it2}, base.SeqNumMax)
	assert.Equal(t, []string{"a", "b", "c"}, gotKeys)
	assert.Equal(t, []string{"new-a", "b", "c"}, gotVals)
}

func TestRunKeepsOlderVersionStillVisibleToLiveSnapshot(t *testing.T) {
	// A snapshot taken right after "foo"=seq1 committed, and before
	// "foo"=seq2 committed, must still be able to read seq1's value after
	// compaction merges both into one table (spec §8's compaction-preserves
	// snapshots property).
	it1 := &sliceIter{entries: []sliceEntry{
		{base.MakeInternalKey([]byte("foo"), 2, base.InternalKeyKindSet), []byte("b")},
	}}
	it2 := &sliceIter{entries: []sliceEntry{
		{base.MakeInternalKey([]byte("foo"), 1, base.InternalKeyKindSet), []byte("a")},
	}}

	gotKeys, gotVals := runMerge(t, []InputIterator{it1, it2}, 1)
	assert.Equal(t, []string{"foo", "foo"}, gotKeys)
	assert.Equal(t, []string{"b", "a"}, gotVals)
}

func TestRunElidesDeletesWhenNoSnapshotCanObserveThem(t *testing.T) {
	it1 := &sliceIter{entries: []sliceEntry{
		{base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindDelete), nil},
		{base.MakeInternalKey([]byte("b"), 2, base.InternalKeyKindSet), []byte("b")},
	}}

	var sinks []*memSink
	newOutput := func() (base.FileNum, *sstable.Writer, error) {
		sink := &memSink{}
		sinks = append(sinks, sink)
		return base.FileNum(len(sinks)), sstable.NewWriter(sink, sstable.WriterOptions{}), nil
	}
	finishOutput := func(w *sstable.Writer) (uint64, error) {
		if err := w.Finish(); err != nil {
			return 0, err
		}
		return w.FileSize(), nil
	}

	_, err := Run(
		base.DefaultComparer.Compare,
		[]InputIterator{it1},
		base.SeqNumMax,
		func(base.SeqNum) bool { return true },
		1<<30,
		newOutput,
		finishOutput,
	)
	assert.NoError(t, err)
	assert.Len(t, sinks, 1)

	r, err := sstable.NewReader(sinks[0], int64(sinks[0].Len()), sstable.ReaderOptions{})
	assert.NoError(t, err)
	defer r.Close()
	it, err := r.NewIter()
	assert.NoError(t, err)
	defer it.Close()

	it.First()
	assert.True(t, it.Valid())
	assert.Equal(t, "b", string(it.Key().UserKey))
	it.Next()
	assert.False(t, it.Valid())
}
