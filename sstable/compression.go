// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"github.com/DataDog/zstd"
	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/s2"
)

// decompress returns the decoded block payload for the given compression
// type; NoCompression is a no-op copy-free path, so the engine stays
// correct with compression entirely absent (spec §1).
func decompress(payload []byte, compression CompressionType) ([]byte, error) {
	switch compression {
	case NoCompression:
		return payload, nil
	case SnappyCompression:
		n, err := snappy.DecodedLen(payload)
		if err != nil {
			return nil, errors.Wrap(err, "lsmkv: snappy decoded length")
		}
		decoded := make([]byte, n)
		decoded, err = snappy.Decode(decoded, payload)
		if err != nil {
			return nil, errors.Wrap(err, "lsmkv: snappy decompress")
		}
		return decoded, nil
	case ZstdCompression:
		decoded, err := zstd.Decompress(nil, payload)
		if err != nil {
			return nil, errors.Wrap(err, "lsmkv: zstd decompress")
		}
		return decoded, nil
	case S2Compression:
		decoded, err := s2.Decode(nil, payload)
		if err != nil {
			return nil, errors.Wrap(err, "lsmkv: s2 decompress")
		}
		return decoded, nil
	default:
		return nil, errors.Newf("lsmkv: unknown compression type %d", compression)
	}
}
