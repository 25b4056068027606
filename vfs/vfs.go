// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package vfs exposes the filesystem operations the storage engine needs
// (spec §6's "Filesystem (consumed)" collaborator), behind an interface
// small enough that a cloud-backed implementation can wrap it, as
// vfs/cloud/aws does for S3.
package vfs

import (
	"io"
	"os"
	"time"
)

// File is an open file handle. Reads, writes, and syncs follow the usual
// os.File semantics; Fd is used only by the lock implementation.
type File interface {
	io.Closer
	io.Reader
	io.ReaderAt
	io.Writer
	Stat() (os.FileInfo, error)
	Sync() error
}

// OpenOption configures how FS.Open behaves; reserved for future
// direct-IO/readahead hints, mirroring the teacher's variadic Open.
type OpenOption interface {
	apply(File)
}

// DiskUsage reports free/total/available bytes for the filesystem backing
// a directory, used by space-based compaction backpressure.
type DiskUsage struct {
	AvailBytes uint64
	TotalBytes uint64
	UsedBytes  uint64
}

// FS is the set of filesystem operations the engine depends on. The
// interface's method set is taken from the teacher's own CloudFS wrapper
// (devlibx-pebble/cloud/aws/cloud_fs.go), which is itself a pass-through
// decorator over this exact interface.
type FS interface {
	Create(name string) (File, error)
	Link(oldname, newname string) error
	Open(name string, opts ...OpenOption) (File, error)
	OpenDir(name string) (File, error)
	Remove(name string) error
	RemoveAll(name string) error
	Rename(oldname, newname string) error
	ReuseForWrite(oldname, newname string) (File, error)
	MkdirAll(dir string, perm os.FileMode) error
	Lock(name string) (io.Closer, error)
	List(dir string) ([]string, error)
	Stat(name string) (os.FileInfo, error)
	PathBase(path string) string
	PathJoin(elem ...string) string
	PathDir(path string) string
	GetDiskUsage(path string) (DiskUsage, error)
}

// Clock abstracts wall-clock time so tests can inject a fake one; spec §6
// lists NowMicros among the Env surface the engine relies on.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the default, real wall-clock implementation.
var SystemClock Clock = systemClock{}
