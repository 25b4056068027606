// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package aws

import (
	"io"
	"os"

	"github.com/student-go/lsmkv/vfs"
)

// CloudFS wraps a local vfs.FS, mirroring every synced file to S3 so the
// directory can be restored on another host. Reads are always served
// locally; only writes and deletes touch S3.
type CloudFS struct {
	wrapped vfs.FS
	helper  *s3Helper
}

// NewCloudFS wraps fs with an S3 mirror under opts.
func NewCloudFS(fs vfs.FS, opts Options) (vfs.FS, error) {
	helper, err := newS3Helper(opts)
	if err != nil {
		return nil, err
	}
	return &CloudFS{wrapped: fs, helper: helper}, nil
}

func (c *CloudFS) Create(name string) (vfs.File, error) {
	f, err := c.wrapped.Create(name)
	if err != nil {
		return nil, err
	}
	return newCloudFile(f, name, c.helper), nil
}

func (c *CloudFS) Link(oldname, newname string) error {
	return c.wrapped.Link(oldname, newname)
}

func (c *CloudFS) Open(name string, opts ...vfs.OpenOption) (vfs.File, error) {
	return c.wrapped.Open(name, opts...)
}

func (c *CloudFS) OpenDir(name string) (vfs.File, error) {
	return c.wrapped.OpenDir(name)
}

func (c *CloudFS) Remove(name string) error {
	if err := c.wrapped.Remove(name); err != nil {
		return err
	}
	if skipUpload(name) {
		return nil
	}
	return c.helper.delete(name)
}

func (c *CloudFS) RemoveAll(name string) error {
	return c.wrapped.RemoveAll(name)
}

func (c *CloudFS) Rename(oldname, newname string) error {
	return c.wrapped.Rename(oldname, newname)
}

func (c *CloudFS) ReuseForWrite(oldname, newname string) (vfs.File, error) {
	f, err := c.wrapped.ReuseForWrite(oldname, newname)
	if err != nil {
		return nil, err
	}
	return newCloudFile(f, newname, c.helper), nil
}

func (c *CloudFS) MkdirAll(dir string, perm os.FileMode) error {
	return c.wrapped.MkdirAll(dir, perm)
}

func (c *CloudFS) Lock(name string) (io.Closer, error) {
	return c.wrapped.Lock(name)
}

func (c *CloudFS) List(dir string) ([]string, error) {
	return c.wrapped.List(dir)
}

func (c *CloudFS) Stat(name string) (os.FileInfo, error) {
	return c.wrapped.Stat(name)
}

func (c *CloudFS) PathBase(path string) string { return c.wrapped.PathBase(path) }

func (c *CloudFS) PathJoin(elem ...string) string { return c.wrapped.PathJoin(elem...) }

func (c *CloudFS) PathDir(path string) string { return c.wrapped.PathDir(path) }

func (c *CloudFS) GetDiskUsage(path string) (vfs.DiskUsage, error) {
	return c.wrapped.GetDiskUsage(path)
}
