// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package filter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBloomPolicyMayContainPresentKeys(t *testing.T) {
	p := NewBloomPolicy()
	keys := make([][]byte, 0, 100)
	for i := 0; i < 100; i++ {
		keys = append(keys, []byte(fmt.Sprintf("key-%03d", i)))
	}
	f := p.CreateFilter(keys, nil)

	for _, k := range keys {
		assert.True(t, p.MayContain(f, k), "false negative for %s", k)
	}
}

func TestBloomPolicyRejectsMostAbsentKeys(t *testing.T) {
	p := NewBloomPolicy()
	keys := make([][]byte, 0, 1000)
	for i := 0; i < 1000; i++ {
		keys = append(keys, []byte(fmt.Sprintf("present-%04d", i)))
	}
	f := p.CreateFilter(keys, nil)

	falsePositives := 0
	for i := 0; i < 1000; i++ {
		if p.MayContain(f, []byte(fmt.Sprintf("absent-%04d", i))) {
			falsePositives++
		}
	}
	// 10 bits/key targets roughly a 1% false-positive rate; allow generous
	// headroom so the test isn't flaky.
	assert.True(t, falsePositives < 100, "too many false positives: %d/1000", falsePositives)
}

func TestBloomPolicyName(t *testing.T) {
	assert.Equal(t, "lsmkv.BuiltinBloomFilter", NewBloomPolicy().Name())
}

func TestBloomPolicyMayContainFailsOpenOnCorruptFilter(t *testing.T) {
	p := NewBloomPolicy()
	assert.True(t, p.MayContain([]byte("not a real filter"), []byte("anything")))
}
