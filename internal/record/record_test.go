// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriterReaderRoundTripSmallRecords(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	records := [][]byte{
		[]byte("hello"),
		[]byte(""),
		[]byte("world"),
	}
	for _, rec := range records {
		assert.NoError(t, w.WriteRecord(rec))
	}

	r := NewReader(&buf, nil, true)
	for _, want := range records {
		got, err := r.Next()
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestWriterReaderRoundTripSpanningBlocks(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	big := bytes.Repeat([]byte("x"), 3*BlockSize+17)
	assert.NoError(t, w.WriteRecord(big))

	tail := []byte("tail record after a multi-block one")
	assert.NoError(t, w.WriteRecord(tail))

	r := NewReader(&buf, nil, true)
	got, err := r.Next()
	assert.NoError(t, err)
	assert.Equal(t, big, got)

	got, err = r.Next()
	assert.NoError(t, err)
	assert.Equal(t, tail, got)
}

type corruptionRecorder struct {
	n      int
	reason error
}

func (c *corruptionRecorder) Corruption(bytes int64, reason error) {
	c.n++
	c.reason = reason
}

func TestReaderNonStrictResyncsOnCorruption(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	// Fill the first physical block exactly, so "second" lands in a fresh
	// block; a corrupt fragment only resyncs to the next block boundary, so
	// the corrupted and recovered records must not share a block.
	first := bytes.Repeat([]byte("a"), BlockSize-HeaderSize)
	assert.NoError(t, w.WriteRecord(first))
	assert.NoError(t, w.WriteRecord([]byte("second")))

	corrupted := buf.Bytes()
	// Flip a byte inside the first record's payload so its checksum fails.
	corrupted[HeaderSize] ^= 0xff

	rec := &corruptionRecorder{}
	r := NewReader(bytes.NewReader(corrupted), rec, false)

	got, err := r.Next()
	assert.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
	assert.Equal(t, 1, rec.n)
}

func TestReaderStrictFailsOnCorruption(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	assert.NoError(t, w.WriteRecord([]byte("first")))

	corrupted := buf.Bytes()
	corrupted[HeaderSize] ^= 0xff

	r := NewReader(bytes.NewReader(corrupted), nil, true)
	_, err := r.Next()
	assert.Error(t, err)
}
