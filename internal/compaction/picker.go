// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package compaction implements level scoring, input picking, and merge
// execution for the background compaction engine (spec §4.9).
package compaction

import (
	"github.com/student-go/lsmkv/internal/base"
	"github.com/student-go/lsmkv/internal/manifest"
)

// L0CompactionTrigger is the number of level-0 files that gives level 0 a
// score of 1.0.
const L0CompactionTrigger = 4

// baseLevelMaxBytes is max_bytes(1); each deeper level is 10x the last.
const baseLevelMaxBytes = 10 << 20

// maxBytes returns the size budget for level, following
// max_bytes(L) = 10 * max_bytes(L-1), max_bytes(1) = 10 MiB. Level 0 has no
// byte budget; it is scored by file count instead.
func maxBytes(level int) int64 {
	b := int64(baseLevelMaxBytes)
	for l := 1; l < level; l++ {
		b *= 10
	}
	return b
}

// Picker selects the next compaction to run against a Version.
type Picker struct {
	cmp base.Compare
	// cursors holds, per level, the largest user key of the last start-level
	// input of the prior pick from that level; the next pick on that level
	// resumes after it
	// (wrapping to the start), giving round-robin coverage across the key
	// space instead of repeatedly recompacting the same range.
	cursors [manifest.NumLevels][]byte
}

// NewPicker returns a Picker with no compaction history.
func NewPicker(cmp base.Compare) *Picker {
	return &Picker{cmp: cmp}
}

func totalSize(files []*manifest.FileMetadata) int64 {
	var n int64
	for _, f := range files {
		n += int64(f.Size)
	}
	return n
}

// score returns level's compaction score: file-count-over-trigger for level
// 0, bytes-over-budget for level >= 1.
func (p *Picker) score(v *manifest.Version, level int) float64 {
	if level == 0 {
		return float64(len(v.Files[0])) / float64(L0CompactionTrigger)
	}
	return float64(totalSize(v.Files[level])) / float64(maxBytes(level))
}

// pickLevel returns the level with the highest score >= 1.0, ties broken
// toward the lower level number, or -1 if none qualifies on size/count
// alone (a seek-driven compaction may still be picked by the caller).
func (p *Picker) pickLevel(v *manifest.Version) int {
	best := -1
	var bestScore float64
	for l := 0; l < manifest.NumLevels-1; l++ {
		s := p.score(v, l)
		if s >= 1.0 && s > bestScore {
			best, bestScore = l, s
		}
	}
	return best
}

// pickStartFiles chooses the inputs from level to start a compaction with:
// for level 0, every file (L0 files may overlap each other, so the whole
// set participates); for level >= 1, the first file at or after the
// round-robin cursor, wrapping to the first file if the cursor has passed
// every file's start key.
func (p *Picker) pickStartFiles(v *manifest.Version, level int) []*manifest.FileMetadata {
	files := v.Files[level]
	if level == 0 || len(files) == 0 {
		return files
	}
	cursor := p.cursors[level]
	for _, f := range files {
		if cursor == nil || p.cmp(f.Smallest.UserKey, cursor) >= 0 {
			return []*manifest.FileMetadata{f}
		}
	}
	return []*manifest.FileMetadata{files[0]}
}

// NewManual builds a Compaction for an explicit, range-targeted request
// (CompactRange) rather than the picker's score-driven selection: the
// caller supplies the starting files directly, typically every file at
// level overlapping the requested key range.
func NewManual(cmp base.Compare, v *manifest.Version, level int, files []*manifest.FileMetadata) *Compaction {
	c := newCompaction(cmp, level, files)
	c.expandOutputs(v)
	c.setupOtherInputs(v)
	return c
}

// Pick returns the next compaction to run, preferring a size/count-driven
// pick; if none qualifies, it falls back to a seek-driven compaction on
// whichever file's AllowedSeeks has been exhausted.
func (p *Picker) Pick(v *manifest.Version, seekFile *manifest.FileMetadata, seekLevel int) (*Compaction, bool) {
	level := p.pickLevel(v)
	var startFiles []*manifest.FileMetadata
	if level >= 0 {
		startFiles = p.pickStartFiles(v, level)
	} else if seekFile != nil {
		level = seekLevel
		startFiles = []*manifest.FileMetadata{seekFile}
	} else {
		return nil, false
	}

	c := newCompaction(p.cmp, level, startFiles)
	c.expandOutputs(v)
	c.setupOtherInputs(v)

	if level > 0 && len(c.Inputs[0]) > 0 {
		last := c.Inputs[0][len(c.Inputs[0])-1]
		p.cursors[level] = append([]byte(nil), last.Largest.UserKey...)
	}
	return c, true
}
