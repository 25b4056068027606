// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/student-go/lsmkv/internal/base"
)

// batchHeaderLen is the 8-byte starting sequence number plus the 4-byte
// count that precedes every batch's entries on the wire and in the WAL
// (spec §3's write-batch format).
const batchHeaderLen = 12

// Batch accumulates a sequence of Set/Delete operations applied atomically.
// A Batch can be built up across many calls and committed once via
// DB.Apply, or used directly as the single-entry representation of a call
// to DB.Set/DB.Delete.
type Batch struct {
	// data is the encoded batch: a batchHeaderLen header followed by one
	// tagged entry per operation. The header's sequence number is filled in
	// by the DB at commit time, once the batch's starting sequence number
	// has been allocated.
	data  []byte
	count uint32
}

// newBatchData returns a fresh batch buffer with a zeroed header.
func newBatchData() []byte {
	return make([]byte, batchHeaderLen)
}

// NewBatch returns an empty batch ready to accumulate operations.
func NewBatch() *Batch {
	return &Batch{data: newBatchData()}
}

// Count returns the number of operations accumulated so far.
func (b *Batch) Count() int { return int(b.count) }

// Empty reports whether the batch has no operations.
func (b *Batch) Empty() bool { return b.count == 0 }

// Set appends a Set(key, value) operation.
func (b *Batch) Set(key, value []byte) error {
	if b.data == nil {
		b.data = newBatchData()
	}
	b.data = append(b.data, byte(base.InternalKeyKindSet))
	b.data = appendUvarintBytes(b.data, key)
	b.data = appendUvarintBytes(b.data, value)
	b.count++
	return nil
}

// Delete appends a Delete(key) operation.
func (b *Batch) Delete(key []byte) error {
	if b.data == nil {
		b.data = newBatchData()
	}
	b.data = append(b.data, byte(base.InternalKeyKindDelete))
	b.data = appendUvarintBytes(b.data, key)
	b.count++
	return nil
}

func appendUvarintBytes(dst, b []byte) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(b)))
	dst = append(dst, tmp[:n]...)
	return append(dst, b...)
}

// seqNum returns the batch's starting sequence number, as stored in the
// header.
func (b *Batch) seqNum() base.SeqNum {
	return base.SeqNum(binary.LittleEndian.Uint64(b.data[:8]))
}

// setSeqNum stamps the batch's starting sequence number into the header.
// Every entry in the batch consumes one sequence number, starting here and
// incrementing by one per entry in the order applied.
func (b *Batch) setSeqNum(seqNum base.SeqNum) {
	binary.LittleEndian.PutUint64(b.data[:8], uint64(seqNum))
	binary.LittleEndian.PutUint32(b.data[8:12], b.count)
}

// batchEntry is one decoded operation from a batch.
type batchEntry struct {
	kind  base.InternalKeyKind
	key   []byte
	value []byte
}

// batchReader iterates the encoded entries of a batch, in application
// order.
type batchReader struct {
	data []byte
}

func newBatchReader(data []byte) (*batchReader, error) {
	if len(data) < batchHeaderLen {
		return nil, base.CorruptionErrorf("lsmkv: truncated batch header")
	}
	return &batchReader{data: data[batchHeaderLen:]}, nil
}

// next returns the next entry, or (batchEntry{}, false, nil) once
// exhausted.
func (r *batchReader) next() (batchEntry, bool, error) {
	if len(r.data) == 0 {
		return batchEntry{}, false, nil
	}
	kind := base.InternalKeyKind(r.data[0])
	r.data = r.data[1:]

	key, rest, err := decodeUvarintBytes(r.data)
	if err != nil {
		return batchEntry{}, false, err
	}
	r.data = rest

	var value []byte
	if kind == base.InternalKeyKindSet {
		value, rest, err = decodeUvarintBytes(r.data)
		if err != nil {
			return batchEntry{}, false, err
		}
		r.data = rest
	} else if kind != base.InternalKeyKindDelete {
		return batchEntry{}, false, base.CorruptionErrorf("lsmkv: unknown batch entry kind %d", kind)
	}
	return batchEntry{kind: kind, key: key, value: value}, true, nil
}

func decodeUvarintBytes(b []byte) (value, rest []byte, err error) {
	n, k := binary.Uvarint(b)
	if k <= 0 {
		return nil, nil, errors.New("lsmkv: malformed batch entry length")
	}
	b = b[k:]
	if uint64(len(b)) < n {
		return nil, nil, errors.New("lsmkv: truncated batch entry")
	}
	return b[:n], b[n:], nil
}

// countEntries scans data (header + entries) and returns the number of
// entries it contains, used to validate a replayed WAL record's header
// against its actual contents.
func countEntries(data []byte) (int, error) {
	r, err := newBatchReader(data)
	if err != nil {
		return 0, err
	}
	n := 0
	for {
		_, ok, err := r.next()
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		n++
	}
	return n, nil
}
