// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"io"
	"os"
)

// LogFunc receives one line per logged FS operation, printf-style.
type LogFunc func(format string, args ...interface{})

type loggingFS struct {
	FS
	log LogFunc
}

// WithLogging wraps fs so that every mutating operation is reported to
// log, matching the teacher's own vfs.WithLogging used to trace S3-backed
// file activity during development.
func WithLogging(fs FS, log LogFunc) FS {
	return &loggingFS{FS: fs, log: log}
}

func (fs *loggingFS) Create(name string) (File, error) {
	fs.log("create: %s", name)
	f, err := fs.FS.Create(name)
	return fs.wrapFile(name, f, err)
}

func (fs *loggingFS) Link(oldname, newname string) error {
	fs.log("link: %s -> %s", oldname, newname)
	return fs.FS.Link(oldname, newname)
}

func (fs *loggingFS) Remove(name string) error {
	fs.log("remove: %s", name)
	return fs.FS.Remove(name)
}

func (fs *loggingFS) RemoveAll(name string) error {
	fs.log("remove-all: %s", name)
	return fs.FS.RemoveAll(name)
}

func (fs *loggingFS) Rename(oldname, newname string) error {
	fs.log("rename: %s -> %s", oldname, newname)
	return fs.FS.Rename(oldname, newname)
}

func (fs *loggingFS) ReuseForWrite(oldname, newname string) (File, error) {
	fs.log("reuse-for-write: %s -> %s", oldname, newname)
	f, err := fs.FS.ReuseForWrite(oldname, newname)
	return fs.wrapFile(newname, f, err)
}

func (fs *loggingFS) MkdirAll(dir string, perm os.FileMode) error {
	fs.log("mkdir-all: %s", dir)
	return fs.FS.MkdirAll(dir, perm)
}

func (fs *loggingFS) Lock(name string) (io.Closer, error) {
	fs.log("lock: %s", name)
	return fs.FS.Lock(name)
}

type syncLoggingFile struct {
	File
	name string
	log  LogFunc
}

func (fs *loggingFS) wrapFile(name string, f File, err error) (File, error) {
	if err != nil {
		return nil, err
	}
	return &syncLoggingFile{File: f, name: name, log: fs.log}, nil
}

func (f *syncLoggingFile) Sync() error {
	f.log("sync-data: %s", f.name)
	return f.File.Sync()
}
