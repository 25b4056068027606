// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package record implements the write-ahead-log and manifest record
// framing described in spec §4.3: a sequence of 32 KiB physical blocks,
// each holding one or more 7-byte-headered fragments of logical records.
package record

import "hash/crc32"

const (
	// BlockSize is the physical block size fragments are packed into; a
	// fragment never spans a block boundary.
	BlockSize = 32 * 1024

	// HeaderSize is the size, in bytes, of a fragment header:
	// checksum(4) | length(2) | type(1).
	HeaderSize = 7

	recyclableHeaderSize = 11
)

// recordType identifies whether a fragment is a whole record or a
// first/middle/last piece of one split across blocks.
type recordType byte

const (
	fullType   recordType = 1
	firstType  recordType = 2
	middleType recordType = 3
	lastType   recordType = 4

	// zeroType marks the zero-padding at the tail of a block; readers skip
	// it rather than treat it as corruption.
	zeroType recordType = 0
)

var table = crc32.MakeTable(crc32.Castagnoli)

// crc computes the masked CRC32C of a fragment the way the teacher lineage
// does: checksum over (type-byte ‖ payload), then mask so that a trailing
// run of zero bytes does not falsify a prior checksum.
func crc(recType recordType, payload []byte) uint32 {
	c := crc32.Update(0, table, []byte{byte(recType)})
	c = crc32.Update(c, table, payload)
	return maskCRC(c)
}

const maskDelta = 0xa282ead8

func maskCRC(c uint32) uint32 {
	return ((c >> 15) | (c << 17)) + maskDelta
}

func unmaskCRC(masked uint32) uint32 {
	rot := masked - maskDelta
	return (rot >> 17) | (rot << 15)
}
