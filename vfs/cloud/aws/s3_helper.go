// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package aws adapts the engine's vfs.FS to an S3-backed store, mirroring
// (not copying) the teacher's cloud/aws package: table files and manifests
// are mirrored to S3 as they are synced, so a directory can be rehydrated
// on a fresh host.
package aws

import (
	"bufio"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/cockroachdb/errors"
	"github.com/student-go/lsmkv/vfs"
)

// Options configures the S3 mirror.
type Options struct {
	Bucket   string
	BasePath string
	Region   string
}

// s3Helper performs the S3-side upload/delete calls shared by CloudFS and
// CloudFile.
type s3Helper struct {
	bucket string
	prefix string
	*s3manager.Uploader
	*s3.S3
}

func newS3Helper(opts Options) (*s3Helper, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, errors.Wrap(err, "lsmkv/vfs/cloud/aws: creating AWS session")
	}
	return &s3Helper{
		bucket:   opts.Bucket,
		prefix:   opts.BasePath,
		Uploader: s3manager.NewUploader(sess),
		S3:       s3.New(sess),
	}, nil
}

// skipUpload excludes WAL files and temp files from mirroring: they churn
// too fast for per-sync upload to be worthwhile, and a crash recovery
// never needs the cloud copy of a file still being written locally.
func skipUpload(name string) bool {
	return strings.HasSuffix(name, ".log") || strings.HasSuffix(name, ".dbtmp")
}

func (h *s3Helper) key(name string) string {
	return h.prefix + "/" + name
}

func (h *s3Helper) upload(f vfs.File, name string) error {
	if skipUpload(name) {
		return nil
	}
	if seeker, ok := f.(interface{ Seek(int64, int) (int64, error) }); ok {
		_, _ = seeker.Seek(0, os.SEEK_SET)
	}
	_, err := h.Upload(&s3manager.UploadInput{
		Body:   bufio.NewReader(f),
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.key(name)),
	})
	if err != nil {
		return errors.Wrapf(err, "lsmkv/vfs/cloud/aws: uploading %q", name)
	}
	return nil
}

func (h *s3Helper) delete(name string) error {
	_, err := h.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.key(name)),
	})
	if err != nil {
		return errors.Wrapf(err, "lsmkv/vfs/cloud/aws: deleting %q", name)
	}
	return nil
}
