// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/student-go/lsmkv/internal/base"
)

// Reporter is notified of corruption encountered while reading; it never
// sees a NotFound-shaped condition (that is an empty log), only malformed
// bytes.
type Reporter interface {
	Corruption(bytes int64, reason error)
}

// LogReporter reports corruption through a base.Logger.
type LogReporter struct {
	Logger base.Logger
}

func (r LogReporter) Corruption(bytes int64, reason error) {
	r.Logger.Errorf("lsmkv: ignoring %d bytes of corrupt log data: %v", bytes, reason)
}

// Reader reassembles logical records fragmented by Writer. In strict mode
// (paranoid checks), any corruption aborts with an error; otherwise the
// reader skips to the next block and resynchronizes, reporting the skip
// through Reporter.
type Reader struct {
	r        io.Reader
	reporter Reporter
	strict   bool

	buf    [BlockSize]byte
	begin  int
	end    int
	n      int // bytes read into buf from r so far this block
	record []byte
	eof    bool
	err    error
}

// NewReader returns a Reader fragmenting r's bytes back into logical
// records. If reporter is nil, corruption is reported via
// base.DefaultLogger.
func NewReader(r io.Reader, reporter Reporter, strict bool) *Reader {
	if reporter == nil {
		reporter = LogReporter{Logger: base.DefaultLogger}
	}
	return &Reader{r: r, reporter: reporter, strict: strict}
}

// Next returns the next logical record, or io.EOF when the underlying
// reader is exhausted. The returned slice is valid until the next call to
// Next.
func (r *Reader) Next() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.record = r.record[:0]
	for {
		recType, payload, err := r.nextFragment()
		if err != nil {
			r.err = err
			return nil, err
		}
		switch recType {
		case fullType:
			if len(r.record) != 0 {
				return nil, r.corrupt(errors.New("lsmkv: unexpected full fragment after partial record"))
			}
			return payload, nil
		case firstType:
			if len(r.record) != 0 {
				return nil, r.corrupt(errors.New("lsmkv: unexpected first fragment after partial record"))
			}
			r.record = append(r.record[:0], payload...)
		case middleType:
			if len(r.record) == 0 {
				return nil, r.corrupt(errors.New("lsmkv: unexpected middle fragment with no open record"))
			}
			r.record = append(r.record, payload...)
		case lastType:
			if len(r.record) == 0 {
				return nil, r.corrupt(errors.New("lsmkv: unexpected last fragment with no open record"))
			}
			r.record = append(r.record, payload...)
			return r.record, nil
		}
	}
}

func (r *Reader) corrupt(reason error) error {
	wrapped := base.CorruptionErrorf("lsmkv: corrupt log record: %v", reason)
	if r.strict {
		return wrapped
	}
	r.reporter.Corruption(int64(r.end-r.begin), wrapped)
	r.record = r.record[:0]
	// Resync at the next block boundary.
	r.begin, r.end, r.n = 0, 0, 0
	return nil
}

// nextFragment reads and validates the next fragment header/payload,
// skipping zeroType padding fragments and refilling the block buffer as
// needed.
func (r *Reader) nextFragment() (recordType, []byte, error) {
	for {
		if r.end-r.begin < HeaderSize {
			if err := r.fill(); err != nil {
				return 0, nil, err
			}
			continue
		}
		header := r.buf[r.begin : r.begin+HeaderSize]
		checksum := binary.LittleEndian.Uint32(header[0:4])
		length := int(binary.LittleEndian.Uint16(header[4:6]))
		recType := recordType(header[6])

		if r.begin+HeaderSize+length > r.end {
			if r.eof {
				// Truncated record at EOF; treat the tail as padding.
				r.begin = r.end
				continue
			}
			if err := r.fill(); err != nil {
				return 0, nil, err
			}
			continue
		}

		payload := r.buf[r.begin+HeaderSize : r.begin+HeaderSize+length]
		r.begin += HeaderSize + length

		if recType == zeroType && length == 0 && checksum == 0 {
			continue
		}
		if got := crc(recType, payload); got != checksum {
			err := r.corrupt(errors.Newf("lsmkv: checksum mismatch: got %x want %x", got, checksum))
			if err != nil {
				return 0, nil, err
			}
			continue
		}
		return recType, payload, nil
	}
}

// fill slides any unread bytes to the front of buf and reads more from r,
// or advances to a fresh logical block when the current one is exhausted.
func (r *Reader) fill() error {
	if r.eof {
		return io.EOF
	}
	if r.begin > 0 {
		copy(r.buf[:], r.buf[r.begin:r.end])
		r.end -= r.begin
		r.begin = 0
	}
	if r.end >= BlockSize {
		// Buffer already holds a full block's worth of unread bytes; the
		// caller asked for more than a block can supply, which means a
		// fragment header claimed a length that overruns the block.
		return io.ErrUnexpectedEOF
	}
	n, err := io.ReadFull(r.r, r.buf[r.end:BlockSize])
	r.end += n
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		r.eof = true
		if n == 0 {
			return io.EOF
		}
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "lsmkv: reading log block")
	}
	return nil
}
