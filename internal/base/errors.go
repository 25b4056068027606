// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"github.com/cockroachdb/errors"
)

// ErrNotFound means a Get found no entry for the requested key. It is
// expected and is never logged as a failure.
var ErrNotFound = errors.New("lsmkv: not found")

// ErrClosed is returned by any operation performed on a closed DB.
var ErrClosed = errors.New("lsmkv: closed")

// ErrCorruption marks an error as data corruption, surfaced from log
// replay, manifest replay, or a table block checksum mismatch.
var ErrCorruption = errors.New("lsmkv: corruption")

// CorruptionErrorf formats a new error marked as ErrCorruption.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// IsCorruptionError reports whether err is (or wraps) ErrCorruption.
func IsCorruptionError(err error) bool {
	return errors.Is(err, ErrCorruption)
}

// MarkCorrupt marks an existing error as corruption, preserving its
// message and cause chain.
func MarkCorrupt(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrCorruption)
}
