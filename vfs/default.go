// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

type defaultFS struct{}

// Default is the OS-backed FS implementation used unless Options.FS
// overrides it (e.g. with vfs/cloud/aws.NewCloudFS, or the in-memory FS
// used by tests).
var Default FS = defaultFS{}

func (defaultFS) Create(name string) (File, error) {
	return os.Create(name)
}

func (defaultFS) Link(oldname, newname string) error {
	return os.Link(oldname, newname)
}

func (defaultFS) Open(name string, _ ...OpenOption) (File, error) {
	return os.Open(name)
}

func (defaultFS) OpenDir(name string) (File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (defaultFS) Remove(name string) error {
	return os.Remove(name)
}

func (defaultFS) RemoveAll(name string) error {
	return os.RemoveAll(name)
}

func (defaultFS) Rename(oldname, newname string) error {
	return os.Rename(oldname, newname)
}

func (defaultFS) ReuseForWrite(oldname, newname string) (File, error) {
	if err := os.Rename(oldname, newname); err != nil {
		return nil, err
	}
	return os.OpenFile(newname, os.O_RDWR, 0666)
}

func (defaultFS) MkdirAll(dir string, perm os.FileMode) error {
	return os.MkdirAll(dir, perm)
}

func (defaultFS) Lock(name string) (io.Closer, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if err := flockFile(f); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "lsmkv: could not lock %q", name)
	}
	return f, nil
}

func (defaultFS) List(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Readdirnames(-1)
}

func (defaultFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (defaultFS) PathBase(path string) string { return filepath.Base(path) }

func (defaultFS) PathJoin(elem ...string) string { return filepath.Join(elem...) }

func (defaultFS) PathDir(path string) string { return filepath.Dir(path) }

func (defaultFS) GetDiskUsage(path string) (DiskUsage, error) {
	return diskUsage(path)
}
