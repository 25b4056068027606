// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package filter implements the pluggable filter-policy interface of spec
// §6 and a default bloom-filter policy built on greatroar/blobloom.
package filter

import (
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/greatroar/blobloom"
)

// Policy is the pluggable filter interface named in spec §6: a name
// persisted in the metaindex key (`filter.<name>`) and checked on reopen,
// plus the two operations needed to build and query a filter over one
// data-block range's keys.
type Policy interface {
	// Name identifies the policy; persisted as the metaindex block's key
	// suffix.
	Name() string
	// CreateFilter builds a filter over keys, appending the encoded filter
	// to dst.
	CreateFilter(keys [][]byte, dst []byte) []byte
	// MayContain reports whether key might be present in filter. A false
	// result is a guarantee of absence; a true result may be a false
	// positive.
	MayContain(filter, key []byte) bool
}

// bitsPerKey controls the false-positive rate of the default bloom
// policy; 10 bits/key matches the classic LevelDB default of ~1% FP rate.
const bitsPerKey = 10

// BloomPolicy is the default FilterPolicy, backed by
// github.com/greatroar/blobloom's block-partitioned bloom filter.
type BloomPolicy struct{}

// NewBloomPolicy returns the default bloom filter policy.
func NewBloomPolicy() Policy { return BloomPolicy{} }

func (BloomPolicy) Name() string { return "lsmkv.BuiltinBloomFilter" }

func (BloomPolicy) CreateFilter(keys [][]byte, dst []byte) []byte {
	nKeys := len(keys)
	if nKeys == 0 {
		nKeys = 1
	}
	f := blobloom.NewOptimized(blobloom.Config{
		Capacity: uint64(nKeys),
		FPRate:   math.Pow(2, -float64(bitsPerKey)/math.Log2(math.E)),
	})
	for _, k := range keys {
		f.Add(hashKey(k))
	}
	encoded, err := f.MarshalBinary()
	if err != nil {
		// blobloom's binary marshaling never fails for an in-memory filter;
		// an empty filter block still fails open at query time.
		return dst
	}
	return append(dst, encoded...)
}

func (BloomPolicy) MayContain(filter, key []byte) bool {
	f := new(blobloom.Filter)
	if err := f.UnmarshalBinary(filter); err != nil {
		// A corrupt filter fails open: the caller falls back to reading the
		// data block and finding the real answer there.
		return true
	}
	return f.Has(hashKey(key))
}

// hashKey feeds blobloom the uint64 hash it requires; blobloom deliberately
// leaves hashing to the caller so a project can reuse whatever hash it
// already computes elsewhere; this package uses xxhash.
func hashKey(key []byte) uint64 {
	return xxhash.Sum64(key)
}
