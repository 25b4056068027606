// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"encoding/binary"
	"fmt"
)

// SeqNum is a 56-bit monotonically increasing sequence number, one per
// logical write. Every key in a batch consumes a distinct, consecutive
// SeqNum.
type SeqNum uint64

// SeqNumMax is the largest representable sequence number.
const SeqNumMax = SeqNum(1<<56 - 1)

// InternalKeyKind enumerates the possible kinds of an internal key. Only
// Set and Delete are part of the engine's durable data model; the
// remaining kinds are reserved for forward compatibility with range
// tombstones and are not produced by this package.
type InternalKeyKind uint8

const (
	InternalKeyKindDelete InternalKeyKind = 0
	InternalKeyKindSet    InternalKeyKind = 1
	// InternalKeyKindMax is a sentinel kind used by LookupKey's seek key: it
	// sorts before any real kind at the same (user key, seqnum) pair so a
	// seek for a user key lands on its newest real entry.
	InternalKeyKindMax     InternalKeyKind = 2
	InternalKeyKindInvalid InternalKeyKind = 255
)

func (k InternalKeyKind) String() string {
	switch k {
	case InternalKeyKindDelete:
		return "DEL"
	case InternalKeyKindSet:
		return "SET"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
}

// trailer packs (seqnum<<8 | kind) into a single uint64 so that ordering by
// trailer descending gives (seqnum descending, kind descending).
type trailer uint64

func makeTrailer(seqNum SeqNum, kind InternalKeyKind) trailer {
	return trailer(uint64(seqNum)<<8 | uint64(kind))
}

func (t trailer) seqNum() SeqNum          { return SeqNum(uint64(t) >> 8) }
func (t trailer) kind() InternalKeyKind   { return InternalKeyKind(uint8(t)) }

// InternalKey is a user key concatenated with a packed (seqnum, kind) pair,
// imposing a total order: ascending user key, then descending seqnum, then
// descending kind. Because seqnums are assigned once per write, two
// internal keys are never equal unless they share user key, seqnum, and
// kind.
type InternalKey struct {
	UserKey []byte
	Trailer uint64
}

// MakeInternalKey returns the internal key for (userKey, seqNum, kind).
func MakeInternalKey(userKey []byte, seqNum SeqNum, kind InternalKeyKind) InternalKey {
	return InternalKey{UserKey: userKey, Trailer: uint64(makeTrailer(seqNum, kind))}
}

// SeqNum returns the key's sequence number.
func (k InternalKey) SeqNum() SeqNum { return trailer(k.Trailer).seqNum() }

// Kind returns the key's kind.
func (k InternalKey) Kind() InternalKeyKind { return trailer(k.Trailer).kind() }

// Size returns the encoded size of the internal key (user key bytes plus
// the 8-byte trailer).
func (k InternalKey) Size() int { return len(k.UserKey) + 8 }

// Encode writes the internal key into buf, which must have length
// k.Size().
func (k InternalKey) Encode(buf []byte) {
	i := copy(buf, k.UserKey)
	binary.LittleEndian.PutUint64(buf[i:], k.Trailer)
}

// EncodeTrailer returns the 8-byte little-endian trailer alone, as stored
// at the tail of an encoded internal key.
func (k InternalKey) EncodeTrailer() [8]byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], k.Trailer)
	return buf
}

// DecodeInternalKey decodes an internal key from its encoded
// representation (user key bytes followed by an 8-byte little-endian
// trailer). The returned key aliases buf.
func DecodeInternalKey(buf []byte) InternalKey {
	n := len(buf) - 8
	if n < 0 {
		return InternalKey{}
	}
	return InternalKey{
		UserKey: buf[:n:n],
		Trailer: binary.LittleEndian.Uint64(buf[n:]),
	}
}

// Pretty renders the internal key for debug/error messages using the given
// user-key formatter.
func (k InternalKey) Pretty(format FormatKey) string {
	return fmt.Sprintf("%s#%d,%s", format(k.UserKey), k.SeqNum(), k.Kind())
}

// InternalCompare orders two internal keys: ascending user key, then
// descending trailer (which sorts descending seqnum then descending kind
// since both are packed big-endian-within-the-integer into the trailer).
func InternalCompare(userCmp Compare, a, b InternalKey) int {
	if c := userCmp(a.UserKey, b.UserKey); c != 0 {
		return c
	}
	switch {
	case a.Trailer > b.Trailer:
		return -1
	case a.Trailer < b.Trailer:
		return +1
	default:
		return 0
	}
}

// MakeLookupKey encodes a varint-length-prefixed internal key used to
// probe the memtable for a given user key at a given snapshot sequence
// number. The probe uses InternalKeyKindMax so the seek lands on the first
// (newest) entry for the user key at or below seqNum.
func MakeLookupKey(buf []byte, userKey []byte, seqNum SeqNum) []byte {
	size := len(userKey) + 8
	buf = appendVarint(buf[:0], uint64(size))
	buf = append(buf, userKey...)
	trailer := makeTrailer(seqNum, InternalKeyKindMax)
	var tb [8]byte
	binary.LittleEndian.PutUint64(tb[:], uint64(trailer))
	buf = append(buf, tb[:]...)
	return buf
}

func appendVarint(dst []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(dst, tmp[:n]...)
}
