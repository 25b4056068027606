// Copyright 2013 Suryandaru Triandana. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package vfs

import (
	"bytes"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// MemFS is an in-memory FS, for tests that need a throwaway filesystem
// without touching disk. It is grounded on goleveldb's memStorage: a
// mutex-protected map from path to file, with an open-file map standing in
// for a real directory tree (spec §6's FS collaborator is agnostic to
// backing storage, and an in-memory map is sufficient for everything the
// engine does — it never needs directory metadata beyond existence).
type MemFS struct {
	mu    sync.Mutex
	files map[string]*memNode
	locks map[string]struct{}
}

// NewMem returns an empty in-memory FS.
func NewMem() *MemFS {
	return &MemFS{
		files: make(map[string]*memNode),
		locks: make(map[string]struct{}),
	}
}

type memNode struct {
	isDir   bool
	buf     bytes.Buffer
	modTime time.Time
}

func memClean(name string) string {
	return path.Clean("/" + strings.TrimPrefix(name, "/"))
}

func (fs *MemFS) Create(name string) (File, error) {
	name = memClean(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := &memNode{modTime: time.Now()}
	fs.files[name] = n
	return &memFile{fs: fs, name: name, node: n, writable: true}, nil
}

func (fs *MemFS) Link(oldname, newname string) error {
	oldname, newname = memClean(oldname), memClean(newname)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, ok := fs.files[oldname]
	if !ok {
		return os.ErrNotExist
	}
	fs.files[newname] = n
	return nil
}

func (fs *MemFS) Open(name string, _ ...OpenOption) (File, error) {
	name = memClean(name)
	fs.mu.Lock()
	n, ok := fs.files[name]
	fs.mu.Unlock()
	if !ok {
		return nil, os.ErrNotExist
	}
	return &memFile{fs: fs, name: name, node: n}, nil
}

func (fs *MemFS) OpenDir(name string) (File, error) {
	return fs.Open(name)
}

func (fs *MemFS) Remove(name string) error {
	name = memClean(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.files[name]; !ok {
		return os.ErrNotExist
	}
	delete(fs.files, name)
	return nil
}

func (fs *MemFS) RemoveAll(name string) error {
	name = memClean(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	prefix := name + "/"
	for p := range fs.files {
		if p == name || strings.HasPrefix(p, prefix) {
			delete(fs.files, p)
		}
	}
	return nil
}

func (fs *MemFS) Rename(oldname, newname string) error {
	oldname, newname = memClean(oldname), memClean(newname)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, ok := fs.files[oldname]
	if !ok {
		return os.ErrNotExist
	}
	delete(fs.files, oldname)
	fs.files[newname] = n
	return nil
}

func (fs *MemFS) ReuseForWrite(oldname, newname string) (File, error) {
	if err := fs.Rename(oldname, newname); err != nil {
		return nil, err
	}
	return fs.Open(newname)
}

func (fs *MemFS) MkdirAll(dir string, perm os.FileMode) error {
	dir = memClean(dir)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if n, ok := fs.files[dir]; ok {
		if !n.isDir {
			return errors.Newf("lsmkv: %s is not a directory", dir)
		}
		return nil
	}
	fs.files[dir] = &memNode{isDir: true, modTime: time.Now()}
	return nil
}

type memLock struct {
	fs   *MemFS
	name string
}

func (l *memLock) Close() error {
	l.fs.mu.Lock()
	delete(l.fs.locks, l.name)
	l.fs.mu.Unlock()
	return nil
}

func (fs *MemFS) Lock(name string) (io.Closer, error) {
	name = memClean(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.locks[name]; ok {
		return nil, errors.Newf("lsmkv: %s already locked", name)
	}
	if _, ok := fs.files[name]; !ok {
		fs.files[name] = &memNode{modTime: time.Now()}
	}
	fs.locks[name] = struct{}{}
	return &memLock{fs: fs, name: name}, nil
}

func (fs *MemFS) List(dir string) ([]string, error) {
	dir = memClean(dir)
	prefix := dir
	if prefix != "/" {
		prefix += "/"
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var names []string
	for p := range fs.files {
		if p == dir || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		names = append(names, rest)
	}
	sort.Strings(names)
	return names, nil
}

func (fs *MemFS) Stat(name string) (os.FileInfo, error) {
	name = memClean(name)
	fs.mu.Lock()
	n, ok := fs.files[name]
	fs.mu.Unlock()
	if !ok {
		return nil, os.ErrNotExist
	}
	return &memFileInfo{name: fs.PathBase(name), node: n}, nil
}

func (fs *MemFS) PathBase(p string) string  { return path.Base(p) }
func (fs *MemFS) PathJoin(elem ...string) string { return path.Join(elem...) }
func (fs *MemFS) PathDir(p string) string   { return path.Dir(p) }

func (fs *MemFS) GetDiskUsage(string) (DiskUsage, error) {
	return DiskUsage{AvailBytes: 1 << 40, TotalBytes: 1 << 40}, nil
}

type memFile struct {
	fs       *MemFS
	name     string
	node     *memNode
	writable bool
	rdOffset int64
}

func (f *memFile) Read(p []byte) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	b := f.node.buf.Bytes()
	if f.rdOffset >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[f.rdOffset:])
	f.rdOffset += int64(n)
	return n, nil
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	b := f.node.buf.Bytes()
	if off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	f.node.modTime = time.Now()
	return f.node.buf.Write(p)
}

func (f *memFile) Close() error { return nil }
func (f *memFile) Sync() error  { return nil }

func (f *memFile) Stat() (os.FileInfo, error) {
	return &memFileInfo{name: f.fs.PathBase(f.name), node: f.node}, nil
}

type memFileInfo struct {
	name string
	node *memNode
}

func (fi *memFileInfo) Name() string       { return fi.name }
func (fi *memFileInfo) Size() int64        { return int64(fi.node.buf.Len()) }
func (fi *memFileInfo) Mode() os.FileMode  { return 0644 }
func (fi *memFileInfo) ModTime() time.Time { return fi.node.modTime }
func (fi *memFileInfo) IsDir() bool        { return fi.node.isDir }
func (fi *memFileInfo) Sys() interface{}   { return nil }
