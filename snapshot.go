// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"github.com/student-go/lsmkv/internal/base"
)

// Snapshot fixes a sequence number so reads through it never observe writes
// committed afterward (spec §4.11). A Snapshot must be released with Close
// once no longer needed; an open snapshot pins every sequence number at or
// below it from compaction elision, so holding one for a long time grows
// disk usage by preventing overwritten/deleted entries from being dropped.
type Snapshot struct {
	db     *DB
	seqNum base.SeqNum

	// list links this snapshot into db.mu.snapshots, oldest first.
	prev, next *Snapshot
}

// NewSnapshot returns a Snapshot fixed at the DB's current sequence number.
func (d *DB) NewSnapshot() *Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &Snapshot{db: d, seqNum: d.versions.LastSeqNum()}
	d.mu.snapshots.pushBack(s)
	return s
}

// Close releases the snapshot, allowing compactions to drop any entries it
// was the last thing pinning.
func (s *Snapshot) Close() error {
	if s.db == nil {
		return nil
	}
	s.db.mu.Lock()
	s.db.mu.snapshots.remove(s)
	s.db.mu.Unlock()
	s.db = nil
	return nil
}

// snapshotList is a doubly linked list of live snapshots, oldest first; it
// exists so the compaction path can cheaply find the oldest live sequence
// number below which a Delete tombstone is safe to elide.
type snapshotList struct {
	head, tail *Snapshot
}

func (l *snapshotList) pushBack(s *Snapshot) {
	s.prev = l.tail
	if l.tail != nil {
		l.tail.next = s
	} else {
		l.head = s
	}
	l.tail = s
}

func (l *snapshotList) remove(s *Snapshot) {
	if s.prev != nil {
		s.prev.next = s.next
	} else if l.head == s {
		l.head = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	} else if l.tail == s {
		l.tail = s.prev
	}
	s.prev, s.next = nil, nil
}

// oldest returns the smallest live snapshot sequence number, or
// base.SeqNumMax if there are none (meaning nothing is pinned and a
// tombstone may be elided as soon as it is no longer the newest entry for
// its key).
func (l *snapshotList) oldest() base.SeqNum {
	if l.head == nil {
		return base.SeqNumMax
	}
	return l.head.seqNum
}
