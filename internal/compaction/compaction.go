// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compaction

import (
	"github.com/student-go/lsmkv/internal/base"
	"github.com/student-go/lsmkv/internal/manifest"
)

// maxGrandparentOverlapBytes bounds how much an output file may overlap the
// level L+2 ("grandparent") files, so a single compaction doesn't create an
// output that forces an oversized compaction on the next level down.
const maxGrandparentOverlapBytes = 25 << 20

// expandedCompactionByteSizeLimit bounds how far setupOtherInputs is
// allowed to grow the level-L side once the level-(L+1) side is fixed.
const expandedCompactionByteSizeLimit = 25 * baseLevelMaxBytes / 10

// Compaction describes one run of the background compaction engine: a set
// of input files at StartLevel and the OutputLevel files they overlap
// (spec §4.9). OutputLevel is always StartLevel+1.
type Compaction struct {
	cmp         base.Compare
	StartLevel  int
	OutputLevel int
	// Inputs[0] is the StartLevel input files, Inputs[1] the OutputLevel
	// ones.
	Inputs       [2][]*manifest.FileMetadata
	Grandparents []*manifest.FileMetadata

	Smallest base.InternalKey
	Largest  base.InternalKey
}

func newCompaction(cmp base.Compare, level int, startFiles []*manifest.FileMetadata) *Compaction {
	c := &Compaction{cmp: cmp, StartLevel: level, OutputLevel: level + 1}
	c.Inputs[0] = startFiles
	return c
}

// IsTrivialMove reports whether this compaction can skip merging entirely:
// a single start-level file with no output-level overlap and acceptable
// grandparent overlap can simply be relinked into OutputLevel (spec §4.9).
func (c *Compaction) IsTrivialMove() bool {
	if len(c.Inputs[0]) != 1 || len(c.Inputs[1]) != 0 {
		return false
	}
	return totalSize(c.Grandparents) <= maxGrandparentOverlapBytes
}

func keyRange(cmp base.Compare, files []*manifest.FileMetadata) (smallest, largest []byte) {
	for i, f := range files {
		if i == 0 || cmp(f.Smallest.UserKey, smallest) < 0 {
			smallest = f.Smallest.UserKey
		}
		if i == 0 || cmp(f.Largest.UserKey, largest) > 0 {
			largest = f.Largest.UserKey
		}
	}
	return smallest, largest
}

// expandOutputs fills in Inputs[1]: every OutputLevel file overlapping the
// combined range of Inputs[0], plus Level 0's all-overlapping-L0-files
// expansion when StartLevel is 0 (since adding an L0 file can widen the
// range and pull in yet more L0 files, this repeats until it stabilizes).
func (c *Compaction) expandOutputs(v *manifest.Version) {
	if c.StartLevel == 0 {
		c.Inputs[0] = expandL0(c.cmp, v, c.Inputs[0])
	}
	smallest, largest := keyRange(c.cmp, c.Inputs[0])
	c.Inputs[1] = v.Overlaps(c.OutputLevel, smallest, largest)
	c.updateBounds(v)
}

// expandL0 grows the initial L0 file set to include every L0 file
// overlapping the running range, since L0 files may overlap each other
// arbitrarily and all must compact together to preserve ordering.
func expandL0(cmp base.Compare, v *manifest.Version, files []*manifest.FileMetadata) []*manifest.FileMetadata {
	selected := make(map[base.FileNum]*manifest.FileMetadata, len(files))
	for _, f := range files {
		selected[f.FileNum] = f
	}
	for {
		smallest, largest := keyRangeMap(cmp, selected)
		grew := false
		for _, f := range v.Files[0] {
			if _, ok := selected[f.FileNum]; ok {
				continue
			}
			if cmp(f.Largest.UserKey, smallest) >= 0 && cmp(f.Smallest.UserKey, largest) <= 0 {
				selected[f.FileNum] = f
				grew = true
			}
		}
		if !grew {
			break
		}
	}
	out := make([]*manifest.FileMetadata, 0, len(selected))
	for _, f := range selected {
		out = append(out, f)
	}
	return out
}

func keyRangeMap(cmp base.Compare, files map[base.FileNum]*manifest.FileMetadata) (smallest, largest []byte) {
	first := true
	for _, f := range files {
		if first || cmp(f.Smallest.UserKey, smallest) < 0 {
			smallest = f.Smallest.UserKey
		}
		if first || cmp(f.Largest.UserKey, largest) > 0 {
			largest = f.Largest.UserKey
		}
		first = false
	}
	return smallest, largest
}

// setupOtherInputs tries to grow Inputs[0] to include every StartLevel
// file overlapping Inputs[1]'s range, as long as doing so does not in turn
// pull in more OutputLevel files and keeps the total input size under
// expandedCompactionByteSizeLimit (spec §4.9).
func (c *Compaction) setupOtherInputs(v *manifest.Version) {
	if c.StartLevel == 0 || len(c.Inputs[1]) == 0 {
		c.setGrandparents(v)
		return
	}
	smallest, largest := keyRange(c.cmp, c.Inputs[1])
	expanded := v.Overlaps(c.StartLevel, smallest, largest)
	if len(expanded) > len(c.Inputs[0]) {
		exSmallest, exLargest := keyRange(c.cmp, expanded)
		reExpandedOutputs := v.Overlaps(c.OutputLevel, exSmallest, exLargest)
		within := totalSize(expanded)+totalSize(reExpandedOutputs) < expandedCompactionByteSizeLimit
		if len(reExpandedOutputs) == len(c.Inputs[1]) && within {
			c.Inputs[0] = expanded
			c.Inputs[1] = reExpandedOutputs
		}
	}
	c.updateBounds(v)
	c.setGrandparents(v)
}

func (c *Compaction) setGrandparents(v *manifest.Version) {
	if c.OutputLevel+1 >= manifest.NumLevels {
		return
	}
	smallest, largest := c.Smallest.UserKey, c.Largest.UserKey
	c.Grandparents = v.Overlaps(c.OutputLevel+1, smallest, largest)
}

func (c *Compaction) updateBounds(v *manifest.Version) {
	all := append(append([]*manifest.FileMetadata(nil), c.Inputs[0]...), c.Inputs[1]...)
	if len(all) == 0 {
		return
	}
	c.Smallest, c.Largest = all[0].Smallest, all[0].Largest
	for _, f := range all[1:] {
		if base.InternalCompare(c.cmp, f.Smallest, c.Smallest) < 0 {
			c.Smallest = f.Smallest
		}
		if base.InternalCompare(c.cmp, f.Largest, c.Largest) > 0 {
			c.Largest = f.Largest
		}
	}
}
