// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/DataDog/zstd"
	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/s2"
	"github.com/student-go/lsmkv/internal/base"
)

// filterBaseLog is log2(2048): the filter block partitions the file into
// 2 KiB address ranges (spec §4.5).
const filterBaseLog = 11
const filterBase = 1 << filterBaseLog

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Writer streams entries into data blocks, flushing each once it reaches
// WriterOptions.BlockSize, and assembles the filter, metaindex, index, and
// footer at Finish (spec §4.7).
type Writer struct {
	w    io.Writer
	opts WriterOptions
	off  uint64

	dataBlock  *blockWriter
	indexBlock *blockWriter
	filter     *filterBlockBuilder

	// pendingIndexEntry holds the (shortened key, handle) for the most
	// recently flushed data block; it is appended to the index block only
	// once the first key of the next block (or Finish) is known, so the
	// separator can be the shortest key in [lastKey, nextKey).
	pendingIndexEntry bool
	pendingHandle     BlockHandle
	prevKey           []byte

	smallest  base.InternalKey
	largest   base.InternalKey
	haveFirst bool

	entryCount int
	closed     bool
	err        error
}

// NewWriter returns a Writer that appends the table to w.
func NewWriter(w io.Writer, opts WriterOptions) *Writer {
	opts.EnsureDefaults()
	tw := &Writer{
		w:          w,
		opts:       opts,
		dataBlock:  newBlockWriter(opts.RestartInterval),
		indexBlock: newBlockWriter(1), // index entries are never prefix-shared
	}
	if opts.FilterPolicy != nil {
		tw.filter = newFilterBlockBuilder(opts.FilterPolicy)
	}
	return tw
}

// Add appends (key, value); keys must be added in strictly increasing
// order under the table's comparator.
func (w *Writer) Add(key base.InternalKey, value []byte) error {
	if w.err != nil {
		return w.err
	}
	cmp := w.opts.Comparer.Compare
	if w.prevKey != nil && base.InternalCompare(cmp, base.DecodeInternalKey(w.prevKey), key) >= 0 {
		return base.CorruptionErrorf("lsmkv: keys must be added in strictly increasing order")
	}

	if w.pendingIndexEntry {
		sep := w.opts.Comparer.Separator(nil, w.prevKey[:len(w.prevKey)-8], key.UserKey)
		w.addIndexEntry(sep, w.pendingHandle)
		w.pendingIndexEntry = false
	}

	if !w.haveFirst {
		w.smallest = key
		w.haveFirst = true
	}
	w.largest = key

	if w.filter != nil {
		w.filter.addKey(key.UserKey, w.off)
	}

	w.dataBlock.add(key, value)
	size := key.Size()
	if cap(w.prevKey) < size {
		w.prevKey = make([]byte, 0, size*2)
	}
	w.prevKey = w.prevKey[:size]
	key.Encode(w.prevKey)
	w.entryCount++

	if w.dataBlock.estimatedSize() >= w.opts.BlockSize {
		return w.flushDataBlock()
	}
	return nil
}

func (w *Writer) addIndexEntry(sep []byte, handle BlockHandle) {
	var buf [2 * binary.MaxVarintLen64]byte
	n := handle.encode(buf[:])
	ik := base.MakeInternalKey(sep, 0, base.InternalKeyKindSet)
	w.indexBlock.add(ik, buf[:n])
}

func (w *Writer) flushDataBlock() error {
	handle, err := w.writeBlock(w.dataBlock)
	if err != nil {
		w.err = err
		return err
	}
	w.dataBlock.reset()
	w.pendingHandle = handle
	w.pendingIndexEntry = true
	if w.filter != nil {
		w.filter.startBlock(w.off)
	}
	return nil
}

// writeBlock compresses (if configured), appends the trailer, and writes
// the block, returning its handle. It also advances w.off.
func (w *Writer) writeBlock(b *blockWriter) (BlockHandle, error) {
	raw := b.finish()
	payload, compression := w.compress(raw)

	var trailer [blockTrailerLen]byte
	trailer[0] = byte(compression)
	checksum := crc32.Update(0, crcTable, payload)
	checksum = crc32.Update(checksum, crcTable, trailer[:1])
	binary.LittleEndian.PutUint32(trailer[1:], checksum)

	handle := BlockHandle{Offset: w.off, Length: uint64(len(payload))}
	if _, err := w.w.Write(payload); err != nil {
		return BlockHandle{}, errors.Wrap(err, "lsmkv: writing block")
	}
	if _, err := w.w.Write(trailer[:]); err != nil {
		return BlockHandle{}, errors.Wrap(err, "lsmkv: writing block trailer")
	}
	w.off += uint64(len(payload)) + blockTrailerLen
	return handle, nil
}

func (w *Writer) compress(raw []byte) ([]byte, CompressionType) {
	switch w.opts.Compression {
	case SnappyCompression:
		return snappy.Encode(nil, raw), SnappyCompression
	case ZstdCompression:
		out, err := zstd.Compress(nil, raw)
		if err != nil {
			return raw, NoCompression
		}
		return out, ZstdCompression
	case S2Compression:
		return s2.Encode(nil, raw), S2Compression
	default:
		return raw, NoCompression
	}
}

// Finish flushes any buffered entries and writes the filter, metaindex,
// index, and footer blocks.
func (w *Writer) Finish() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	if w.err != nil {
		return w.err
	}

	if !w.dataBlock.empty() {
		if err := w.flushDataBlock(); err != nil {
			return err
		}
	}
	if w.pendingIndexEntry {
		successor := w.opts.Comparer.Successor(nil, w.prevKey[:len(w.prevKey)-8])
		w.addIndexEntry(successor, w.pendingHandle)
		w.pendingIndexEntry = false
	}

	meta := newBlockWriter(1)
	if w.filter != nil {
		filterBytes := w.filter.finish()
		fh, err := w.writeRawBlock(filterBytes)
		if err != nil {
			return err
		}
		var buf [2 * binary.MaxVarintLen64]byte
		n := fh.encode(buf[:])
		key := base.MakeInternalKey([]byte("filter."+w.opts.FilterPolicy.Name()), 0, base.InternalKeyKindSet)
		meta.add(key, buf[:n])
	}

	metaHandle, err := w.writeBlock(meta)
	if err != nil {
		return err
	}

	indexHandle, err := w.writeBlock(w.indexBlock)
	if err != nil {
		return err
	}

	f := footer{metaindexHandle: metaHandle, indexHandle: indexHandle}
	if _, err := w.w.Write(f.encode()); err != nil {
		return errors.Wrap(err, "lsmkv: writing footer")
	}
	return nil
}

// writeRawBlock writes payload as a standalone, uncompressed block (used
// for the filter block, which is read directly by offset range rather
// than through the index).
func (w *Writer) writeRawBlock(payload []byte) (BlockHandle, error) {
	var trailer [blockTrailerLen]byte
	checksum := crc32.Update(0, crcTable, payload)
	checksum = crc32.Update(checksum, crcTable, trailer[:1])
	binary.LittleEndian.PutUint32(trailer[1:], checksum)

	handle := BlockHandle{Offset: w.off, Length: uint64(len(payload))}
	if _, err := w.w.Write(payload); err != nil {
		return BlockHandle{}, err
	}
	if _, err := w.w.Write(trailer[:]); err != nil {
		return BlockHandle{}, err
	}
	w.off += uint64(len(payload)) + blockTrailerLen
	return handle, nil
}

// EntryCount returns the number of entries added so far.
func (w *Writer) EntryCount() int { return w.entryCount }

// Smallest returns the first key added.
func (w *Writer) Smallest() base.InternalKey { return w.smallest }

// Largest returns the last key added.
func (w *Writer) Largest() base.InternalKey { return w.largest }

// FileSize returns the number of bytes written so far (an estimate until
// Finish, exact afterward).
func (w *Writer) FileSize() uint64 { return w.off }
