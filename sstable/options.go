// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import "github.com/student-go/lsmkv/internal/base"

// WriterOptions configures a table's construction; fields mirror
// Options.BlockSize/BlockRestartInterval/MaxFileSize/Compression/
// Comparer/FilterPolicy from spec §6, scoped down to what the table
// builder itself needs.
type WriterOptions struct {
	BlockSize       int
	RestartInterval int
	Compression     CompressionType
	Comparer        *base.Comparer
	FilterPolicy    FilterPolicy
}

// FilterPolicy is redeclared here (rather than importing package filter)
// to avoid a dependency cycle; filter.Policy satisfies it structurally.
type FilterPolicy interface {
	Name() string
	CreateFilter(keys [][]byte, dst []byte) []byte
	MayContain(filter, key []byte) bool
}

// EnsureDefaults fills zero-valued fields with the spec §6 defaults.
func (o *WriterOptions) EnsureDefaults() {
	if o.BlockSize == 0 {
		o.BlockSize = 4096
	}
	if o.RestartInterval == 0 {
		o.RestartInterval = 16
	}
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
}
