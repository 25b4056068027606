// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
)

// Writer fragments logical records (write batches, or version edits when
// used for the manifest) into BlockSize physical blocks.
type Writer struct {
	w io.Writer
	// i is the write offset within the current block.
	i   int
	err error
}

// NewWriter returns a Writer that fragments records onto w, starting a
// fresh block (the caller is responsible for ensuring w is positioned at a
// block boundary, i.e. a newly created or newly rotated file).
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteRecord writes p as one logical record, fragmented across as many
// physical blocks as required.
//
// The teacher's chunked recordWriter builds a record through a returned
// io.Writer; this package offers only this single call, since the engine
// never needs streaming writes into the log.
func (w *Writer) WriteRecord(p []byte) error {
	if w.err != nil {
		return w.err
	}
	first := true
	for {
		leftover := BlockSize - w.i
		if leftover < HeaderSize {
			if leftover > 0 {
				var zeroes [HeaderSize]byte
				if _, err := w.w.Write(zeroes[:leftover]); err != nil {
					w.err = err
					return err
				}
			}
			w.i = 0
		}
		avail := BlockSize - w.i - HeaderSize
		n := len(p)
		if n > avail {
			n = avail
		}
		last := n == len(p)

		var recType recordType
		switch {
		case first && last:
			recType = fullType
		case first && !last:
			recType = firstType
		case !first && last:
			recType = lastType
		default:
			recType = middleType
		}

		if err := w.writeFragment(recType, p[:n]); err != nil {
			w.err = err
			return err
		}
		p = p[n:]
		first = false
		if last {
			return nil
		}
	}
}

func (w *Writer) writeFragment(recType recordType, payload []byte) error {
	var header [HeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], crc(recType, payload))
	binary.LittleEndian.PutUint16(header[4:6], uint16(len(payload)))
	header[6] = byte(recType)
	if _, err := w.w.Write(header[:]); err != nil {
		return errors.Wrap(err, "lsmkv: writing record header")
	}
	if len(payload) > 0 {
		if _, err := w.w.Write(payload); err != nil {
			return errors.Wrap(err, "lsmkv: writing record payload")
		}
	}
	w.i += HeaderSize + len(payload)
	return nil
}

// Flusher is implemented by writers that can be asked to sync the
// underlying file; the DB calls it after WriteRecord when WriteOptions.Sync
// is set.
type Flusher interface {
	Sync() error
}
