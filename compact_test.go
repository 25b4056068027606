// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/student-go/lsmkv/internal/base"
	"github.com/student-go/lsmkv/internal/manifest"
)

func fileAt(num base.FileNum, smallest, largest string) *manifest.FileMetadata {
	f := &manifest.FileMetadata{
		FileNum:  num,
		Size:     1 << 20,
		Smallest: base.MakeInternalKey([]byte(smallest), 1, base.InternalKeyKindSet),
		Largest:  base.MakeInternalKey([]byte(largest), 1, base.InternalKeyKindSet),
	}
	f.InitAllowedSeeks()
	return f
}

func TestFindSeekCompactionFileReturnsExhaustedFile(t *testing.T) {
	v := manifest.NewVersion(base.DefaultComparer.Compare)
	v.Files[0] = []*manifest.FileMetadata{fileAt(1, "a", "b")}
	v.Files[2] = []*manifest.FileMetadata{fileAt(2, "m", "n")}

	f, level := findSeekCompactionFile(v)
	assert.Nil(t, f)
	assert.Equal(t, 0, level)

	for v.Files[2][0].SeeksRemaining() > 0 {
		v.Files[2][0].RecordSeekMiss()
	}
	f, level = findSeekCompactionFile(v)
	assert.Same(t, v.Files[2][0], f)
	assert.Equal(t, 2, level)
}

func TestFindSeekCompactionFileIgnoresBottomLevel(t *testing.T) {
	v := manifest.NewVersion(base.DefaultComparer.Compare)
	bottom := fileAt(1, "a", "b")
	for bottom.SeeksRemaining() > 0 {
		bottom.RecordSeekMiss()
	}
	v.Files[manifest.NumLevels-1] = []*manifest.FileMetadata{bottom}

	f, _ := findSeekCompactionFile(v)
	assert.Nil(t, f)
}

func TestRecordSeekMissIsRaceFreeAcrossGoroutines(t *testing.T) {
	f := fileAt(1, "a", "b")
	const misses = 200
	initial := f.SeeksRemaining()
	done := make(chan struct{})
	go func() {
		for i := 0; i < misses/2; i++ {
			f.RecordSeekMiss()
		}
		done <- struct{}{}
	}()
	for i := 0; i < misses/2; i++ {
		f.RecordSeekMiss()
	}
	<-done
	assert.Equal(t, initial-misses, f.SeeksRemaining())
}
