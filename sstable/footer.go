// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"encoding/binary"

	"github.com/student-go/lsmkv/internal/base"
)

// magic is the 8-byte trailer identifying a valid table file (spec §6).
const magic uint64 = 0xdb4775248b80fb57

// footerLen is the fixed size of the footer block.
const footerLen = 48

// blockTrailerLen is the 5-byte trailer following every stored block:
// a 1-byte compression type and a 4-byte little-endian CRC32C.
const blockTrailerLen = 5

// CompressionType identifies the codec used for one block. The zero value,
// NoCompression, must always decode correctly: the engine is required to
// remain correct when compression is absent (spec §1).
type CompressionType byte

const (
	NoCompression     CompressionType = 0
	SnappyCompression CompressionType = 1
	ZstdCompression   CompressionType = 2
	// S2Compression selects klauspost/compress's S2 codec, a snappy-format-
	// compatible codec tuned for higher throughput at a similar ratio.
	S2Compression CompressionType = 3
)

// BlockHandle locates a block within a table file.
type BlockHandle struct {
	Offset, Length uint64
}

func (h BlockHandle) encode(dst []byte) int {
	n := binary.PutUvarint(dst, h.Offset)
	n += binary.PutUvarint(dst[n:], h.Length)
	return n
}

func decodeBlockHandle(src []byte) (BlockHandle, int, error) {
	offset, n := binary.Uvarint(src)
	if n <= 0 {
		return BlockHandle{}, 0, base.CorruptionErrorf("lsmkv: invalid block handle")
	}
	length, m := binary.Uvarint(src[n:])
	if m <= 0 {
		return BlockHandle{}, 0, base.CorruptionErrorf("lsmkv: invalid block handle")
	}
	return BlockHandle{Offset: offset, Length: length}, n + m, nil
}

// footer is the fixed 48-byte trailer at the end of every table file:
// metaindex handle, index handle, zero padding out to 40 bytes, then the
// 8-byte magic.
type footer struct {
	metaindexHandle BlockHandle
	indexHandle     BlockHandle
}

func (f footer) encode() []byte {
	buf := make([]byte, footerLen)
	n := f.metaindexHandle.encode(buf)
	n += f.indexHandle.encode(buf[n:])
	binary.LittleEndian.PutUint64(buf[footerLen-8:], magic)
	_ = n
	return buf
}

func decodeFooter(buf []byte) (footer, error) {
	if len(buf) != footerLen {
		return footer{}, base.CorruptionErrorf("lsmkv: invalid footer length")
	}
	if got := binary.LittleEndian.Uint64(buf[footerLen-8:]); got != magic {
		return footer{}, base.CorruptionErrorf("lsmkv: invalid table (bad magic number: %#x)", got)
	}
	mh, n, err := decodeBlockHandle(buf)
	if err != nil {
		return footer{}, err
	}
	ih, _, err := decodeBlockHandle(buf[n:])
	if err != nil {
		return footer{}, err
	}
	return footer{metaindexHandle: mh, indexHandle: ih}, nil
}
