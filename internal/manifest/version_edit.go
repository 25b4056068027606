// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/student-go/lsmkv/internal/base"
)

// Tags for the VersionEdit disk format, following the teacher lineage's
// LevelDB-derived tag numbering so a MANIFEST produced by one version of
// this engine stays self-describing.
const (
	tagComparator     = 1
	tagLogNumber      = 2
	tagNextFileNumber = 3
	tagLastSequence   = 4
	tagCompactPointer = 5
	tagDeletedFile    = 6
	tagNewFile        = 7
	tagPrevLogNumber  = 9
)

// DeletedFileEntry identifies a file removed from a level. The same file
// number may appear in both DeletedFiles and NewFiles when a trivial move
// relocates it to another level.
type DeletedFileEntry struct {
	Level   int
	FileNum base.FileNum
}

// NewFileEntry is a file added to a level.
type NewFileEntry struct {
	Level int
	Meta  *FileMetadata
}

// CompactPointer records, per level, the smallest key the round-robin
// compaction cursor should resume from on that level's next pick (spec
// §4.9).
type CompactPointer struct {
	Level int
	Key   base.InternalKey
}

// VersionEdit is a delta atop the current Version (spec §3/§4.8).
type VersionEdit struct {
	ComparerName   string
	LogNumber      base.FileNum
	PrevLogNumber  base.FileNum
	NextFileNumber base.FileNum
	LastSequence   base.SeqNum

	CompactPointers []CompactPointer
	DeletedFiles    map[DeletedFileEntry]bool
	NewFiles        []NewFileEntry

	// fields set is tracked so Encode only emits tags the caller actually
	// populated, matching the optional-field behavior of the on-disk
	// format's LogNumber/PrevLogNumber/NextFileNumber/LastSequence.
	hasLogNumber      bool
	hasPrevLogNumber  bool
	hasNextFileNumber bool
	hasLastSequence   bool
}

func (e *VersionEdit) SetLogNumber(n base.FileNum) {
	e.LogNumber, e.hasLogNumber = n, true
}
func (e *VersionEdit) SetPrevLogNumber(n base.FileNum) {
	e.PrevLogNumber, e.hasPrevLogNumber = n, true
}
func (e *VersionEdit) SetNextFileNumber(n base.FileNum) {
	e.NextFileNumber, e.hasNextFileNumber = n, true
}
func (e *VersionEdit) SetLastSequence(n base.SeqNum) {
	e.LastSequence, e.hasLastSequence = n, true
}

func (e *VersionEdit) AddFile(level int, meta *FileMetadata) {
	e.NewFiles = append(e.NewFiles, NewFileEntry{Level: level, Meta: meta})
}

func (e *VersionEdit) DeleteFile(level int, fileNum base.FileNum) {
	if e.DeletedFiles == nil {
		e.DeletedFiles = make(map[DeletedFileEntry]bool)
	}
	e.DeletedFiles[DeletedFileEntry{Level: level, FileNum: fileNum}] = true
}

type byteReader interface {
	io.ByteReader
	io.Reader
}

func putUvarint(dst []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(dst, tmp[:n]...)
}

func putBytes(dst, b []byte) []byte {
	dst = putUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

func putInternalKey(dst []byte, k base.InternalKey) []byte {
	dst = putUvarint(dst, uint64(k.Size()))
	buf := make([]byte, k.Size())
	k.Encode(buf)
	return append(dst, buf...)
}

// Encode writes the edit's tagged-record encoding to w.
func (e *VersionEdit) Encode(w io.Writer) error {
	var buf []byte
	if e.ComparerName != "" {
		buf = putUvarint(buf, tagComparator)
		buf = putBytes(buf, []byte(e.ComparerName))
	}
	if e.hasLogNumber {
		buf = putUvarint(buf, tagLogNumber)
		buf = putUvarint(buf, uint64(e.LogNumber))
	}
	if e.hasPrevLogNumber {
		buf = putUvarint(buf, tagPrevLogNumber)
		buf = putUvarint(buf, uint64(e.PrevLogNumber))
	}
	if e.hasNextFileNumber {
		buf = putUvarint(buf, tagNextFileNumber)
		buf = putUvarint(buf, uint64(e.NextFileNumber))
	}
	if e.hasLastSequence {
		buf = putUvarint(buf, tagLastSequence)
		buf = putUvarint(buf, uint64(e.LastSequence))
	}
	for _, cp := range e.CompactPointers {
		buf = putUvarint(buf, tagCompactPointer)
		buf = putUvarint(buf, uint64(cp.Level))
		buf = putInternalKey(buf, cp.Key)
	}
	for df := range e.DeletedFiles {
		buf = putUvarint(buf, tagDeletedFile)
		buf = putUvarint(buf, uint64(df.Level))
		buf = putUvarint(buf, uint64(df.FileNum))
	}
	for _, nf := range e.NewFiles {
		buf = putUvarint(buf, tagNewFile)
		buf = putUvarint(buf, uint64(nf.Level))
		buf = putUvarint(buf, uint64(nf.Meta.FileNum))
		buf = putUvarint(buf, nf.Meta.Size)
		buf = putInternalKey(buf, nf.Meta.Smallest)
		buf = putInternalKey(buf, nf.Meta.Largest)
	}
	_, err := w.Write(buf)
	return errors.Wrap(err, "lsmkv: writing version edit")
}

func readBytes(r byteReader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readInternalKey(r byteReader) (base.InternalKey, error) {
	b, err := readBytes(r)
	if err != nil {
		return base.InternalKey{}, err
	}
	return base.DecodeInternalKey(b), nil
}

// Decode decodes one VersionEdit record from r.
func (e *VersionEdit) Decode(r io.Reader) error {
	br, ok := r.(byteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	for {
		tag, err := binary.ReadUvarint(br)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "lsmkv: decoding version edit tag")
		}
		switch tag {
		case tagComparator:
			s, err := readBytes(br)
			if err != nil {
				return err
			}
			e.ComparerName = string(s)
		case tagLogNumber:
			n, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			e.SetLogNumber(base.FileNum(n))
		case tagPrevLogNumber:
			n, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			e.SetPrevLogNumber(base.FileNum(n))
		case tagNextFileNumber:
			n, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			e.SetNextFileNumber(base.FileNum(n))
		case tagLastSequence:
			n, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			e.SetLastSequence(base.SeqNum(n))
		case tagCompactPointer:
			level, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			key, err := readInternalKey(br)
			if err != nil {
				return err
			}
			e.CompactPointers = append(e.CompactPointers, CompactPointer{Level: int(level), Key: key})
		case tagDeletedFile:
			level, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			fileNum, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			e.DeleteFile(int(level), base.FileNum(fileNum))
		case tagNewFile:
			level, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			fileNum, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			size, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			smallest, err := readInternalKey(br)
			if err != nil {
				return err
			}
			largest, err := readInternalKey(br)
			if err != nil {
				return err
			}
			meta := &FileMetadata{FileNum: base.FileNum(fileNum), Size: size, Smallest: smallest, Largest: largest}
			meta.InitAllowedSeeks()
			e.AddFile(int(level), meta)
		default:
			return base.CorruptionErrorf("lsmkv: unknown version edit tag %d", tag)
		}
	}
}
