// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeInternalKey(t *testing.T) {
	k := MakeInternalKey([]byte("foo"), 42, InternalKeyKindSet)
	assert.Equal(t, []byte("foo"), k.UserKey)
	assert.Equal(t, SeqNum(42), k.SeqNum())
	assert.Equal(t, InternalKeyKindSet, k.Kind())
}

func TestInternalKeyEncodeDecode(t *testing.T) {
	k := MakeInternalKey([]byte("hello"), 7, InternalKeyKindDelete)
	buf := make([]byte, k.Size())
	k.Encode(buf)

	got := DecodeInternalKey(buf)
	assert.Equal(t, k.UserKey, got.UserKey)
	assert.Equal(t, k.Trailer, got.Trailer)
}

func TestInternalCompareOrdersByUserKeyThenSeqNum(t *testing.T) {
	a := MakeInternalKey([]byte("a"), 10, InternalKeyKindSet)
	b := MakeInternalKey([]byte("b"), 10, InternalKeyKindSet)
	assert.True(t, InternalCompare(DefaultComparer.Compare, a, b) < 0)

	newer := MakeInternalKey([]byte("a"), 11, InternalKeyKindSet)
	older := MakeInternalKey([]byte("a"), 10, InternalKeyKindSet)
	assert.True(t, InternalCompare(DefaultComparer.Compare, newer, older) < 0,
		"a higher seqnum at the same user key must sort first")
}

func TestInternalCompareBreaksSeqNumTiesByKind(t *testing.T) {
	set := MakeInternalKey([]byte("a"), 10, InternalKeyKindSet)
	del := MakeInternalKey([]byte("a"), 10, InternalKeyKindDelete)
	assert.True(t, InternalCompare(DefaultComparer.Compare, set, del) < 0)
}

func TestMakeLookupKeySeeksPastNewerEntries(t *testing.T) {
	probe := DecodeInternalKey(MakeLookupKey(nil, []byte("k"), 5)[1:])
	newer := MakeInternalKey([]byte("k"), 6, InternalKeyKindSet)
	older := MakeInternalKey([]byte("k"), 5, InternalKeyKindSet)

	assert.True(t, InternalCompare(DefaultComparer.Compare, newer, probe) < 0,
		"a write at a seqnum above the lookup floor must sort before the probe")
	assert.True(t, InternalCompare(DefaultComparer.Compare, probe, older) < 0,
		"the probe must sort before a real entry at exactly the floor seqnum")
}
