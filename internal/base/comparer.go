// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "bytes"

// Compare returns -1, 0, or +1 depending on whether a is less than, equal
// to, or greater than b, according to the ordering a comparer imposes over
// user keys.
type Compare func(a, b []byte) int

// Equal returns true if a and b are equivalent under the comparer's
// ordering. Most comparers can implement this as Compare(a, b) == 0, but a
// comparer that ignores a suffix (as some engines do for versioned keys)
// may implement a cheaper check.
type Equal func(a, b []byte) bool

// AbbreviatedKey returns a fixed length prefix of a user key such that
// AbbreviatedKey(a) < AbbreviatedKey(b) implies a < b, and
// AbbreviatedKey(a) > AbbreviatedKey(b) implies a > b. It is used to avoid
// a full key comparison where the abbreviated key already disambiguates.
type AbbreviatedKey func(key []byte) uint64

// Separator returns a key that is >= a and < b, and is "shorter" than a
// when possible, for use as an index block's separator key. dst is the
// destination buffer to append to.
type Separator func(dst, a, b []byte) []byte

// Successor returns a key that is >= a and as short as possible, for use as
// the last index block's separator key. dst is the destination buffer.
type Successor func(dst, a []byte) []byte

// FormatKey renders a user key in a human readable form for error messages
// and debug dumps.
type FormatKey func(key []byte) string

// Comparer defines a total ordering over the user key space of a DB, plus
// the hooks the sstable format needs to shorten keys stored in an index
// block.
type Comparer struct {
	Compare        Compare
	Equal          Equal
	AbbreviatedKey AbbreviatedKey
	Separator      Separator
	Successor      Successor
	FormatKey      FormatKey

	// Name is persisted in the manifest and checked on reopen; a mismatch
	// is fatal.
	Name string
}

func formatBytes(key []byte) string {
	return string(key)
}

// DefaultComparer is the default comparer: lexicographic byte-wise
// ordering, matching the ordering bytes.Compare already implements.
var DefaultComparer = &Comparer{
	Compare: bytes.Compare,
	Equal:   bytes.Equal,
	AbbreviatedKey: func(key []byte) uint64 {
		var v uint64
		for i := 0; i < 8 && i < len(key); i++ {
			v = v<<8 | uint64(key[i])
		}
		return v << (8 * (8 - uint(min(len(key), 8))))
	},
	Separator: func(dst, a, b []byte) []byte {
		i, n := SharedPrefixLen(a, b), len(dst)
		dst = append(dst, a...)
		if i >= len(a) || i >= len(b) {
			// a is a prefix of b, or vice versa; cannot shorten.
			return dst
		}
		if a[i] >= b[i] {
			return dst
		}
		if a[i] < 0xff && a[i]+1 < b[i] {
			dst[n+i] = a[i] + 1
			return dst[:n+i+1]
		}
		return dst
	},
	Successor: func(dst, a []byte) []byte {
		for i := 0; i < len(a); i++ {
			c := a[i]
			if c != 0xff {
				dst = append(dst, a[:i]...)
				dst = append(dst, c+1)
				return dst
			}
		}
		// a is all 0xff bytes; no shorter successor exists.
		return append(dst, a...)
	},
	FormatKey: formatBytes,
	Name:      "leveldb.BytewiseComparator",
}

// SharedPrefixLen returns the length of the common prefix of a and b.
func SharedPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
