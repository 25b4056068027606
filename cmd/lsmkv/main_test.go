// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPutGetRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")

	_, err := run(t, "put", dir, "k", "v")
	require.NoError(t, err)

	out, err := run(t, "get", dir, "k")
	require.NoError(t, err)
	assert.Equal(t, "v\n", out)
}

func TestGetMissingKeyReturnsError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	_, err := run(t, "open", dir)
	require.NoError(t, err)

	_, err = run(t, "get", dir, "missing")
	assert.Error(t, err)
}

func TestScanPrintsKeysInOrder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	for _, kv := range [][2]string{{"b", "2"}, {"a", "1"}, {"c", "3"}} {
		_, err := run(t, "put", dir, kv[0], kv[1])
		require.NoError(t, err)
	}

	out, err := run(t, "scan", dir)
	require.NoError(t, err)
	assert.Equal(t, "a: 1\nb: 2\nc: 3\n", out)
}

func TestScanWithLimit(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	for _, k := range []string{"a", "b", "c"} {
		_, err := run(t, "put", dir, k, k)
		require.NoError(t, err)
	}

	root := newRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"scan", dir, "--limit", "1"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "a: a\n", out.String())
}

func TestCompactRangeSucceeds(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	_, err := run(t, "put", dir, "k", "v")
	require.NoError(t, err)

	_, err = run(t, "compact", dir, "a", "z")
	require.NoError(t, err)

	out, err := run(t, "get", dir, "k")
	require.NoError(t, err)
	assert.Equal(t, "v\n", out)
}

func TestOpenReportsMetrics(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	out, err := run(t, "open", dir)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestRepairRebuildsManifest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	_, err := run(t, "put", dir, "k", "v")
	require.NoError(t, err)

	_, err = run(t, "repair", dir)
	require.NoError(t, err)

	out, err := run(t, "get", dir, "k")
	require.NoError(t, err)
	assert.Equal(t, "v\n", out)
}
