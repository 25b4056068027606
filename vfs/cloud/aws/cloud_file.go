// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package aws

import (
	"os"
	"strings"

	"github.com/student-go/lsmkv/vfs"
)

// cloudFile wraps a local vfs.File, mirroring to S3 on Close and, for
// manifest files, on every Sync (manifests must survive a host loss even
// between flushes).
type cloudFile struct {
	vfs.File
	name   string
	helper *s3Helper
}

func newCloudFile(f vfs.File, name string, helper *s3Helper) vfs.File {
	return &cloudFile{File: f, name: name, helper: helper}
}

func (c *cloudFile) Close() error {
	uploadErr := c.helper.upload(c.File, c.name)
	closeErr := c.File.Close()
	if uploadErr != nil {
		return uploadErr
	}
	return closeErr
}

func (c *cloudFile) Sync() error {
	if err := c.File.Sync(); err != nil {
		return err
	}
	if strings.Contains(c.name, "MANIFEST") {
		return c.helper.upload(c.File, c.name)
	}
	return nil
}

func (c *cloudFile) Stat() (os.FileInfo, error) {
	return c.File.Stat()
}
