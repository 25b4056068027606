// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"hash/crc32"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/student-go/lsmkv/internal/base"
)

// ReadableFile is the minimal random-access surface a Reader needs; it is
// satisfied by vfs.File.
type ReadableFile interface {
	io.ReaderAt
	io.Closer
}

// Reader opens a table file for point lookups and iteration, consulting
// the filter block (if present) before decompressing a data block (spec
// §4.6). A data block is served from the block cache (keyed by
// {cache_id, offset}) when one is wired in via ReaderOptions.BlockCache, or
// read and inserted on a miss.
type Reader struct {
	file     ReadableFile
	cmp      base.Compare
	comparer *base.Comparer
	size     int64

	index  block
	filter *filterBlockReader

	blockCache *BlockCache
	cacheID    uint64
}

// ReaderOptions configures a Reader; Comparer must match the one the table
// was built with (checked via the persisted comparer name at the DB
// level, not per-table here). BlockCache, if non-nil, is consulted and
// populated by every data/index block read; nil disables caching and every
// read goes straight to the file.
type ReaderOptions struct {
	Comparer     *base.Comparer
	FilterPolicy FilterPolicy
	BlockCache   *BlockCache
}

// NewReader opens r (size bytes long) as a table file.
func NewReader(f ReadableFile, size int64, opts ReaderOptions) (*Reader, error) {
	if opts.Comparer == nil {
		opts.Comparer = base.DefaultComparer
	}
	if size < footerLen {
		return nil, base.CorruptionErrorf("lsmkv: file too small to be a table")
	}
	footerBuf := make([]byte, footerLen)
	if _, err := f.ReadAt(footerBuf, size-footerLen); err != nil {
		return nil, errors.Wrap(err, "lsmkv: reading table footer")
	}
	ft, err := decodeFooter(footerBuf)
	if err != nil {
		return nil, err
	}

	r := &Reader{file: f, cmp: opts.Comparer.Compare, comparer: opts.Comparer, size: size}
	if opts.BlockCache != nil {
		r.blockCache = opts.BlockCache
		r.cacheID = opts.BlockCache.newCacheID()
	}

	indexBytes, err := r.readBlock(ft.indexHandle)
	if err != nil {
		return nil, err
	}
	r.index = indexBytes

	metaBytes, err := r.readBlock(ft.metaindexHandle)
	if err != nil {
		return nil, err
	}
	if opts.FilterPolicy != nil {
		if handle, ok, err := findMetaHandle(opts.Comparer.Compare, metaBytes, "filter."+opts.FilterPolicy.Name()); err != nil {
			return nil, err
		} else if ok {
			filterBytes, err := r.readRawBlock(handle)
			if err != nil {
				return nil, err
			}
			fr, err := newFilterBlockReader(opts.FilterPolicy, filterBytes)
			if err != nil {
				return nil, err
			}
			r.filter = fr
		}
	}
	return r, nil
}

// findMetaHandle scans the metaindex block (a block like any other) for
// name, returning its handle.
func findMetaHandle(cmp base.Compare, metaBlock block, name string) (BlockHandle, bool, error) {
	it, err := newBlockIter(cmp, metaBlock)
	if err != nil {
		return BlockHandle{}, false, err
	}
	for it.First(); it.Valid(); it.Next() {
		if string(it.Key().UserKey) == name {
			h, _, err := decodeBlockHandle(it.Value())
			return h, err == nil, err
		}
	}
	return BlockHandle{}, false, nil
}

// readBlock reads, verifies, and decompresses the block at handle,
// consulting r.blockCache first and populating it on a miss.
func (r *Reader) readBlock(handle BlockHandle) (block, error) {
	if r.blockCache == nil {
		return r.readRawBlock(handle)
	}
	key := blockCacheKey{id: r.cacheID, offset: handle.Offset}
	if b, ok := r.blockCache.get(key); ok {
		return b, nil
	}
	raw, err := r.readRawBlock(handle)
	if err != nil {
		return nil, err
	}
	r.blockCache.insert(key, raw)
	return raw, nil
}

// readRawBlock reads the payload+trailer at handle, verifies the CRC, and
// decompresses the payload per its stored compression type. For the
// index/metaindex blocks this is also "the block"; data blocks go through
// the same path.
func (r *Reader) readRawBlock(handle BlockHandle) ([]byte, error) {
	if handle.Offset+handle.Length+blockTrailerLen > uint64(r.size) {
		return nil, errShortBlock
	}
	buf := make([]byte, handle.Length+blockTrailerLen)
	if _, err := r.file.ReadAt(buf, int64(handle.Offset)); err != nil {
		return nil, errors.Wrap(err, "lsmkv: reading block")
	}
	payload := buf[:handle.Length]
	trailer := buf[handle.Length:]
	compression := CompressionType(trailer[0])

	checksum := crc32.Update(0, crcTable, payload)
	checksum = crc32.Update(checksum, crcTable, trailer[:1])
	wantChecksum := leUint32(trailer[1:])
	if checksum != wantChecksum {
		return nil, base.CorruptionErrorf("lsmkv: block checksum mismatch")
	}

	return decompress(payload, compression)
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
