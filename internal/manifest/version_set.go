// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/student-go/lsmkv/internal/base"
	"github.com/student-go/lsmkv/internal/record"
	"github.com/student-go/lsmkv/vfs"
)

// VersionSet owns the current Version and the MANIFEST log that durably
// records the sequence of edits leading to it (spec §4.8, §5). Every method
// that reads or changes its state takes VersionSet's own mutex, so callers
// need not hold the DB's mutex (flush and compaction call LogAndApply with
// it released).
type VersionSet struct {
	dirname string
	fs      vfs.FS
	cmp     base.Compare
	cmpName string
	logger  base.Logger

	mu sync.Mutex

	current *Version
	// versions is a doubly linked list of every Version still reachable by
	// an outstanding iterator or snapshot, oldest first; current is always
	// its tail.
	versions struct {
		head, tail *Version
	}

	manifestFileNum base.FileNum
	manifestFile    vfs.File
	manifestWriter  *record.Writer

	nextFileNum base.FileNum
	logNum      base.FileNum
	prevLogNum  base.FileNum
	lastSeqNum  base.SeqNum
}

// NewVersionSet returns an empty VersionSet with no on-disk state; callers
// creating a brand new DB call Create, callers opening an existing one call
// Recover.
func NewVersionSet(dirname string, fs vfs.FS, cmp base.Compare, cmpName string, logger base.Logger) *VersionSet {
	vs := &VersionSet{dirname: dirname, fs: fs, cmp: cmp, cmpName: cmpName, logger: logger}
	v := NewVersion(cmp)
	vs.append(v)
	vs.current = v
	vs.current.Ref()
	return vs
}

func (vs *VersionSet) append(v *Version) {
	v.prev = vs.versions.tail
	if vs.versions.tail != nil {
		vs.versions.tail.next = v
	} else {
		vs.versions.head = v
	}
	vs.versions.tail = v
}

// unlink removes v from the retained-version list once its reference count
// drops to zero and it is no longer current.
func (vs *VersionSet) unlink(v *Version) {
	if v.prev != nil {
		v.prev.next = v.next
	} else {
		vs.versions.head = v.next
	}
	if v.next != nil {
		v.next.prev = v.prev
	} else {
		vs.versions.tail = v.prev
	}
	v.prev, v.next = nil, nil
}

// Current returns the set's current Version, already Ref'd on the caller's
// behalf; the caller must Unref it when done.
func (vs *VersionSet) Current() *Version {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	v := vs.current
	v.Ref()
	return v
}

// NextFileNum allocates and returns the next file number.
func (vs *VersionSet) NextFileNum() base.FileNum {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	n := vs.nextFileNum
	vs.nextFileNum++
	return n
}

// MarkFileNumUsed advances the next-file-number counter past n, used during
// recovery when replaying edits that reference file numbers directly.
func (vs *VersionSet) MarkFileNumUsed(n base.FileNum) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if n >= vs.nextFileNum {
		vs.nextFileNum = n + 1
	}
}

// LastSeqNum returns the last sequence number assigned to a committed
// batch.
func (vs *VersionSet) LastSeqNum() base.SeqNum {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.lastSeqNum
}

// SetLastSeqNum records the last sequence number assigned.
func (vs *VersionSet) SetLastSeqNum(seqNum base.SeqNum) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.lastSeqNum = seqNum
}

// LogNum returns the file number of the WAL the current memtable is backed
// by.
func (vs *VersionSet) LogNum() base.FileNum {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.logNum
}

// Create initializes a brand new MANIFEST for an empty DB at vs.dirname and
// points CURRENT at it.
func (vs *VersionSet) Create(initialEdit *VersionEdit) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.manifestFileNum = vs.allocFileNumLocked()
	if err := vs.createManifestFile(); err != nil {
		return err
	}
	initialEdit.ComparerName = vs.cmpName
	initialEdit.SetNextFileNumber(vs.nextFileNum)
	initialEdit.SetLastSequence(vs.lastSeqNum)
	return vs.logAndApplyLocked(initialEdit)
}

func (vs *VersionSet) allocFileNumLocked() base.FileNum {
	n := vs.nextFileNum
	vs.nextFileNum++
	return n
}

func (vs *VersionSet) createManifestFile() error {
	name := vs.fs.PathJoin(vs.dirname, base.MakeFilename(base.FileTypeManifest, vs.manifestFileNum))
	f, err := vs.fs.Create(name)
	if err != nil {
		return errors.Wrap(err, "lsmkv: creating manifest")
	}
	vs.manifestFile = f
	vs.manifestWriter = record.NewWriter(f)
	return vs.setCurrentFile()
}

func (vs *VersionSet) setCurrentFile() error {
	name := vs.fs.PathJoin(vs.dirname, base.MakeFilename(base.FileTypeCurrent, 0))
	tmpName := name + ".dbtmp"
	f, err := vs.fs.Create(tmpName)
	if err != nil {
		return errors.Wrap(err, "lsmkv: writing CURRENT")
	}
	manifestName := base.MakeFilename(base.FileTypeManifest, vs.manifestFileNum)
	if _, err := io.WriteString(f, manifestName+"\n"); err != nil {
		f.Close()
		return errors.Wrap(err, "lsmkv: writing CURRENT")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "lsmkv: syncing CURRENT")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "lsmkv: closing CURRENT temp file")
	}
	return vs.fs.Rename(tmpName, name)
}

// LogAndApply durably appends edit to the MANIFEST, applies it to build a
// new current Version, and swaps it in (spec §4.8 step 3). On success the
// previous current version is unreffed and, if no iterator or snapshot
// still holds it, unlinked from the retained-version list.
func (vs *VersionSet) LogAndApply(edit *VersionEdit) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.logAndApplyLocked(edit)
}

func (vs *VersionSet) logAndApplyLocked(edit *VersionEdit) error {
	b := NewBuilder(vs.cmp)
	b.Apply(edit)
	newVersion, err := b.Finish(vs.current)
	if err != nil {
		return err
	}

	if vs.manifestWriter != nil {
		var buf bytes.Buffer
		if err := edit.Encode(&buf); err != nil {
			return err
		}
		if err := vs.manifestWriter.WriteRecord(buf.Bytes()); err != nil {
			return errors.Wrap(err, "lsmkv: appending manifest record")
		}
		if err := vs.manifestFile.Sync(); err != nil {
			return errors.Wrap(err, "lsmkv: syncing manifest")
		}
	}

	if edit.hasLogNumber {
		vs.logNum = edit.LogNumber
	}
	if edit.hasPrevLogNumber {
		vs.prevLogNum = edit.PrevLogNumber
	}
	if edit.hasNextFileNumber && edit.NextFileNumber > vs.nextFileNum {
		vs.nextFileNum = edit.NextFileNumber
	}
	if edit.hasLastSequence {
		vs.lastSeqNum = edit.LastSequence
	}

	old := vs.current
	vs.append(newVersion)
	vs.current = newVersion
	vs.current.Ref()
	if old.Unref() == 0 {
		vs.unlink(old)
	}
	return nil
}

// Recover reopens an existing DB's MANIFEST (named by CURRENT) and replays
// every edit to reconstruct the current Version (spec §5).
func Recover(dirname string, fs vfs.FS, cmp base.Compare, cmpName string, logger base.Logger) (*VersionSet, error) {
	currentName := fs.PathJoin(dirname, base.MakeFilename(base.FileTypeCurrent, 0))
	cf, err := fs.Open(currentName)
	if err != nil {
		return nil, errors.Wrap(err, "lsmkv: opening CURRENT")
	}
	stat, err := cf.Stat()
	if err != nil {
		cf.Close()
		return nil, errors.Wrap(err, "lsmkv: statting CURRENT")
	}
	buf := make([]byte, stat.Size())
	if _, err := io.ReadFull(io.NewSectionReader(cf, 0, stat.Size()), buf); err != nil {
		cf.Close()
		return nil, errors.Wrap(err, "lsmkv: reading CURRENT")
	}
	cf.Close()

	manifestName := strings.TrimSpace(string(buf))
	if manifestName == "" {
		return nil, base.CorruptionErrorf("lsmkv: CURRENT file is empty")
	}

	mf, err := fs.Open(fs.PathJoin(dirname, manifestName))
	if err != nil {
		return nil, errors.Wrap(err, "lsmkv: opening manifest")
	}

	vs := &VersionSet{dirname: dirname, fs: fs, cmp: cmp, cmpName: cmpName, logger: logger}
	b := NewBuilder(cmp)
	baseVersion := NewVersion(cmp)

	mfStat, err := mf.Stat()
	if err != nil {
		mf.Close()
		return nil, errors.Wrap(err, "lsmkv: statting manifest")
	}
	rr := record.NewReader(io.NewSectionReader(mf, 0, mfStat.Size()), nil, false)
	var sawComparator bool
	for {
		rec, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			mf.Close()
			return nil, errors.Wrap(err, "lsmkv: reading manifest record")
		}
		var edit VersionEdit
		if err := edit.Decode(bytes.NewReader(rec)); err != nil {
			mf.Close()
			return nil, err
		}
		if edit.ComparerName != "" {
			if edit.ComparerName != cmpName {
				mf.Close()
				return nil, base.CorruptionErrorf(
					"lsmkv: manifest comparer %q does not match configured comparer %q",
					edit.ComparerName, cmpName)
			}
			sawComparator = true
		}
		b.Apply(&edit)
		if edit.hasLogNumber {
			vs.logNum = edit.LogNumber
		}
		if edit.hasPrevLogNumber {
			vs.prevLogNum = edit.PrevLogNumber
		}
		if edit.hasNextFileNumber && edit.NextFileNumber > vs.nextFileNum {
			vs.nextFileNum = edit.NextFileNumber
		}
		if edit.hasLastSequence {
			vs.lastSeqNum = edit.LastSequence
		}
	}
	mf.Close()
	if !sawComparator {
		return nil, base.CorruptionErrorf("lsmkv: manifest missing comparator name")
	}

	newVersion, err := b.Finish(baseVersion)
	if err != nil {
		return nil, err
	}
	vs.append(newVersion)
	vs.current = newVersion
	vs.current.Ref()

	manifestFileNum, ok := manifestFileNumFromName(manifestName)
	if !ok {
		return nil, base.CorruptionErrorf("lsmkv: malformed manifest file name %q", manifestName)
	}
	vs.manifestFileNum = manifestFileNum
	af, err := fs.Open(fs.PathJoin(dirname, manifestName))
	if err != nil {
		return nil, errors.Wrap(err, "lsmkv: reopening manifest for append")
	}
	vs.manifestFile = af
	vs.manifestWriter = record.NewWriter(af)
	return vs, nil
}

func manifestFileNumFromName(name string) (base.FileNum, bool) {
	const prefix = "MANIFEST-"
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	var n uint64
	digits := name[len(prefix):]
	if digits == "" {
		return 0, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + uint64(c-'0')
	}
	return base.FileNum(n), true
}

// Unref releases a reference obtained via Current. If the count drops to
// zero and the version is no longer current, it is unlinked from the
// retained-version list, making any file solely referenced by it (and no
// other retained version) eligible for deletion — see RetainedFileNums.
func (vs *VersionSet) Unref(v *Version) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if v.Unref() == 0 && v != vs.current {
		vs.unlink(v)
	}
}

// RetainedFileNums returns the set of file numbers referenced by every
// version still reachable from the retained-version list (every version an
// outstanding iterator, snapshot, or the current version itself still
// holds). A file absent from this set is safe to delete from disk.
func (vs *VersionSet) RetainedFileNums() map[base.FileNum]bool {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	out := make(map[base.FileNum]bool)
	for v := vs.versions.head; v != nil; v = v.next {
		for l := 0; l < NumLevels; l++ {
			for _, f := range v.Files[l] {
				out[f.FileNum] = true
			}
		}
	}
	return out
}

// Close releases the manifest file.
func (vs *VersionSet) Close() error {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.manifestFile != nil {
		return vs.manifestFile.Close()
	}
	return nil
}
