// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build !unix

package vfs

import "os"

func flockFile(f *os.File) error {
	// Platforms without POSIX advisory locks rely on process-exclusive
	// ownership of the LOCK file instead.
	return nil
}

func diskUsage(path string) (DiskUsage, error) {
	return DiskUsage{}, nil
}
