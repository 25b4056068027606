// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeFilenameRoundTrip(t *testing.T) {
	cases := []struct {
		typ FileType
		num FileNum
	}{
		{FileTypeLog, 1},
		{FileTypeTable, 42},
		{FileTypeManifest, 7},
		{FileTypeOptions, 3},
		{FileTypeTemp, 9},
	}
	for _, c := range cases {
		name := MakeFilename(c.typ, c.num)
		gotType, gotNum, ok := ParseFilename(name)
		assert.True(t, ok, name)
		assert.Equal(t, c.typ, gotType, name)
		assert.Equal(t, c.num, gotNum, name)
	}
}

func TestParseFilenameSpecialCases(t *testing.T) {
	typ, _, ok := ParseFilename("CURRENT")
	assert.True(t, ok)
	assert.Equal(t, FileTypeCurrent, typ)

	typ, _, ok = ParseFilename("LOCK")
	assert.True(t, ok)
	assert.Equal(t, FileTypeLock, typ)
}

func TestParseFilenameRejectsUnknown(t *testing.T) {
	_, _, ok := ParseFilename("not-a-real-file.txt")
	assert.False(t, ok)
}
