// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"fmt"
	"strconv"
	"strings"
)

// FileNum is a single counter's worth of identity shared across the WAL,
// MANIFEST, and table files of a DB; it is allocated monotonically by the
// VersionSet.
type FileNum uint64

// String implements fmt.Stringer.
func (fn FileNum) String() string { return fmt.Sprintf("%06d", uint64(fn)) }

// FileType enumerates the kinds of file an engine directory can contain.
type FileType int

const (
	FileTypeLog FileType = iota
	FileTypeLock
	FileTypeTable
	FileTypeManifest
	FileTypeCurrent
	FileTypeTemp
	FileTypeOptions
)

// MakeFilename returns the canonical on-disk name for the given file type
// and number, matching spec §6's directory layout.
func MakeFilename(fileType FileType, fileNum FileNum) string {
	switch fileType {
	case FileTypeLog:
		return fmt.Sprintf("%s.log", fileNum)
	case FileTypeLock:
		return "LOCK"
	case FileTypeTable:
		return fmt.Sprintf("%s.sst", fileNum)
	case FileTypeManifest:
		return fmt.Sprintf("MANIFEST-%s", fileNum)
	case FileTypeCurrent:
		return "CURRENT"
	case FileTypeTemp:
		return fmt.Sprintf("%s.dbtmp", fileNum)
	case FileTypeOptions:
		return fmt.Sprintf("OPTIONS-%s", fileNum)
	default:
		panic("lsmkv: unknown file type")
	}
}

// ParseFilename reverses MakeFilename, reporting ok=false for names that
// don't match any recognized pattern (e.g. a stray file left in the
// directory by something other than this engine).
func ParseFilename(name string) (fileType FileType, fileNum FileNum, ok bool) {
	switch {
	case name == "CURRENT":
		return FileTypeCurrent, 0, true
	case name == "LOCK":
		return FileTypeLock, 0, true
	case strings.HasSuffix(name, ".log"):
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".log"), 10, 64)
		return FileTypeLog, FileNum(n), err == nil
	case strings.HasSuffix(name, ".sst"):
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".sst"), 10, 64)
		return FileTypeTable, FileNum(n), err == nil
	case strings.HasPrefix(name, "MANIFEST-"):
		n, err := strconv.ParseUint(strings.TrimPrefix(name, "MANIFEST-"), 10, 64)
		return FileTypeManifest, FileNum(n), err == nil
	case strings.HasPrefix(name, "OPTIONS-"):
		n, err := strconv.ParseUint(strings.TrimPrefix(name, "OPTIONS-"), 10, 64)
		return FileTypeOptions, FileNum(n), err == nil
	case strings.HasSuffix(name, ".dbtmp"):
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".dbtmp"), 10, 64)
		return FileTypeTemp, FileNum(n), err == nil
	default:
		return 0, 0, false
	}
}
