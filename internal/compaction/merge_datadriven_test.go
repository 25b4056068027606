// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compaction

import (
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"

	"github.com/student-go/lsmkv/internal/base"
)

// parseMergeInput decodes one line per input-iterator entry, formatted as
// "iter: key seq kind [value]", e.g. "0: foo 5 set b" or "1: a 1 del".
func parseMergeInput(t *testing.T, input string) []InputIterator {
	t.Helper()
	byIter := map[int][]sliceEntry{}
	for _, line := range strings.Split(strings.TrimSpace(input), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		head, rest, ok := strings.Cut(line, ":")
		if !ok {
			t.Fatalf("malformed line %q, want \"iter: key seq kind [value]\"", line)
		}
		iterIdx, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil {
			t.Fatalf("bad iterator index in %q: %v", line, err)
		}
		fields := strings.Fields(rest)
		if len(fields) < 3 {
			t.Fatalf("malformed line %q, want \"iter: key seq kind [value]\"", line)
		}
		seq, err := strconv.Atoi(fields[1])
		if err != nil {
			t.Fatalf("bad sequence number in %q: %v", line, err)
		}

		var kind base.InternalKeyKind
		var val []byte
		switch fields[2] {
		case "set":
			kind = base.InternalKeyKindSet
			if len(fields) > 3 {
				val = []byte(fields[3])
			}
		case "del":
			kind = base.InternalKeyKindDelete
		default:
			t.Fatalf("unknown kind %q in %q", fields[2], line)
		}

		byIter[iterIdx] = append(byIter[iterIdx], sliceEntry{
			key: base.MakeInternalKey([]byte(fields[0]), base.SeqNum(seq), kind),
			val: val,
		})
	}

	// Build iters in increasing index order regardless of the textual order
	// entries appeared in the golden file, so "1: ..." before "0: ..." still
	// produces a stable, predictable iters slice.
	var iters []InputIterator
	maxIdx := -1
	for idx := range byIter {
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	for i := 0; i <= maxIdx; i++ {
		iters = append(iters, &sliceIter{entries: byIter[i]})
	}
	return iters
}

func parseOldestSnapshot(t *testing.T, raw string) base.SeqNum {
	t.Helper()
	if raw == "max" {
		return base.SeqNumMax
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		t.Fatalf("bad oldest-snapshot value %q: %v", raw, err)
	}
	return base.SeqNum(n)
}

// TestMergeGoldenCases exercises Run's last-sequence-for-key dedup rule
// against the golden scenarios in testdata/merge: a live snapshot pins an
// older version of a key across compaction, while no live snapshot lets a
// shadowed version be dropped (spec §4.9, §8).
func TestMergeGoldenCases(t *testing.T) {
	datadriven.RunTest(t, "testdata/merge", func(t *testing.T, d *datadriven.TestData) string {
		if d.Cmd != "merge" {
			t.Fatalf("unknown command %q", d.Cmd)
		}
		oldest := base.SeqNumMax
		for _, arg := range d.CmdArgs {
			if arg.Key == "oldest-snapshot" && len(arg.Vals) == 1 {
				oldest = parseOldestSnapshot(t, arg.Vals[0])
			}
		}

		gotKeys, gotVals := runMerge(t, parseMergeInput(t, d.Input), oldest)
		var sb strings.Builder
		for i := range gotKeys {
			sb.WriteString(gotKeys[i])
			sb.WriteString(": ")
			sb.WriteString(gotVals[i])
			sb.WriteString("\n")
		}
		return sb.String()
	})
}
