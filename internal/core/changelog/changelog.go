package changelog

import (
	"encoding/binary"
	"fmt"

	"github.com/jmapstore/engine/internal/core/ids"
)

// Change records one commit's effect on a (account, collection): which
// document ids were inserted, updated, had a child updated, or deleted.
type Change struct {
	Inserts      []ids.DocumentId
	Updates      []ids.DocumentId
	ChildUpdates []ids.DocumentId
	Deletes      []ids.DocumentId
}

// IsEmpty reports whether the change recorded no document ids at all.
func (c Change) IsEmpty() bool {
	return len(c.Inserts) == 0 && len(c.Updates) == 0 && len(c.ChildUpdates) == 0 && len(c.Deletes) == 0
}

// Merge folds other into c. The result does not depend on which of the two
// recorded an id first: an id found in both an insert list and a delete
// list nets out of both (it never existed from the caller's point of
// view); an id found in an insert or delete list is dropped from Updates
// and ChildUpdates, so an id inserted then updated stays an insert; the
// remaining updates and child updates accumulate, each id once.
func (c Change) Merge(other Change) Change {
	inserted := make(map[ids.DocumentId]bool, len(c.Inserts)+len(other.Inserts))
	for _, id := range c.Inserts {
		inserted[id] = true
	}
	for _, id := range other.Inserts {
		inserted[id] = true
	}

	deleted := make(map[ids.DocumentId]bool, len(c.Deletes)+len(other.Deletes))
	for _, id := range c.Deletes {
		deleted[id] = true
	}
	for _, id := range other.Deletes {
		deleted[id] = true
	}

	out := Change{}
	for id := range inserted {
		if deleted[id] {
			continue
		}
		out.Inserts = append(out.Inserts, id)
	}
	for id := range deleted {
		if inserted[id] {
			continue
		}
		out.Deletes = append(out.Deletes, id)
	}

	seen := func(id ids.DocumentId) bool { return inserted[id] || deleted[id] }
	updates := map[ids.DocumentId]bool{}
	for _, id := range append(append([]ids.DocumentId{}, c.Updates...), other.Updates...) {
		if !seen(id) {
			updates[id] = true
		}
	}
	for id := range updates {
		out.Updates = append(out.Updates, id)
	}

	childUpdates := map[ids.DocumentId]bool{}
	for _, id := range append(append([]ids.DocumentId{}, c.ChildUpdates...), other.ChildUpdates...) {
		if !seen(id) {
			childUpdates[id] = true
		}
	}
	for id := range childUpdates {
		out.ChildUpdates = append(out.ChildUpdates, id)
	}

	return out
}

const (
	tagEntry    byte = 0
	tagSnapshot byte = 1
)

// Encode serialises a Change into the ENTRY on-disk format: a leading
// 0 byte, then for each list in turn (inserts, updates, child_updates,
// deletes) a LEB128 count directly followed by that many LEB128 ids. The
// four counts are not grouped ahead of the ids.
func Encode(c Change) []byte {
	buf := []byte{tagEntry}
	buf = appendIDList(buf, c.Inserts)
	buf = appendIDList(buf, c.Updates)
	buf = appendIDList(buf, c.ChildUpdates)
	buf = appendIDList(buf, c.Deletes)
	return buf
}

// Decode parses a Change from its ENTRY on-disk form.
func Decode(b []byte) (Change, error) {
	if len(b) == 0 || b[0] != tagEntry {
		return Change{}, fmt.Errorf("changelog: not an ENTRY record")
	}
	rest := b[1:]
	var c Change
	var err error
	if c.Inserts, rest, err = readIDList(rest); err != nil {
		return Change{}, err
	}
	if c.Updates, rest, err = readIDList(rest); err != nil {
		return Change{}, err
	}
	if c.ChildUpdates, rest, err = readIDList(rest); err != nil {
		return Change{}, err
	}
	if c.Deletes, _, err = readIDList(rest); err != nil {
		return Change{}, err
	}
	return c, nil
}

// SnapshotGroup is one (collections bitmap, accounts) pair within a
// compaction Snapshot record.
type SnapshotGroup struct {
	Collections []ids.CollectionId
	Accounts    []ids.AccountId
}

// Snapshot replaces a prefix of changelog entries with a compact summary
// of the same (account, collection) coverage.
type Snapshot struct {
	Groups []SnapshotGroup
}

// EncodeSnapshot serialises a Snapshot into the SNAPSHOT on-disk format: a
// leading 1 byte, a LEB128 group count, then for each group a LEB128
// collection-id count + ids and a LEB128 account count + ids.
func EncodeSnapshot(s Snapshot) []byte {
	buf := []byte{tagSnapshot}
	buf = binary.AppendUvarint(buf, uint64(len(s.Groups)))
	for _, g := range s.Groups {
		buf = binary.AppendUvarint(buf, uint64(len(g.Collections)))
		for _, c := range g.Collections {
			buf = binary.AppendUvarint(buf, uint64(c))
		}
		buf = binary.AppendUvarint(buf, uint64(len(g.Accounts)))
		for _, a := range g.Accounts {
			buf = binary.AppendUvarint(buf, uint64(a))
		}
	}
	return buf
}

// DecodeSnapshot parses a Snapshot from its SNAPSHOT on-disk form.
func DecodeSnapshot(b []byte) (Snapshot, error) {
	if len(b) == 0 || b[0] != tagSnapshot {
		return Snapshot{}, fmt.Errorf("changelog: not a SNAPSHOT record")
	}
	rest := b[1:]
	groupCount, rest, err := readUvarint(rest)
	if err != nil {
		return Snapshot{}, err
	}
	s := Snapshot{Groups: make([]SnapshotGroup, 0, groupCount)}
	for i := uint64(0); i < groupCount; i++ {
		var g SnapshotGroup
		colCount, r, err := readUvarint(rest)
		if err != nil {
			return Snapshot{}, err
		}
		rest = r
		for j := uint64(0); j < colCount; j++ {
			v, r, err := readUvarint(rest)
			if err != nil {
				return Snapshot{}, err
			}
			rest = r
			g.Collections = append(g.Collections, ids.CollectionId(v))
		}
		accCount, r, err := readUvarint(rest)
		if err != nil {
			return Snapshot{}, err
		}
		rest = r
		for j := uint64(0); j < accCount; j++ {
			v, r, err := readUvarint(rest)
			if err != nil {
				return Snapshot{}, err
			}
			rest = r
			g.Accounts = append(g.Accounts, ids.AccountId(v))
		}
		s.Groups = append(s.Groups, g)
	}
	return s, nil
}

// IsEntry reports whether b's leading tag byte marks it as an ENTRY record.
func IsEntry(b []byte) bool { return len(b) > 0 && b[0] == tagEntry }

// IsSnapshot reports whether b's leading tag byte marks it as a SNAPSHOT
// record.
func IsSnapshot(b []byte) bool { return len(b) > 0 && b[0] == tagSnapshot }

func appendIDList(buf []byte, list []ids.DocumentId) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(list)))
	for _, id := range list {
		buf = binary.AppendUvarint(buf, uint64(id))
	}
	return buf
}

func readIDList(b []byte) ([]ids.DocumentId, []byte, error) {
	count, rest, err := readUvarint(b)
	if err != nil {
		return nil, nil, err
	}
	out := make([]ids.DocumentId, 0, count)
	for i := uint64(0); i < count; i++ {
		v, r, err := readUvarint(rest)
		if err != nil {
			return nil, nil, err
		}
		rest = r
		out = append(out, ids.DocumentId(v))
	}
	return out, rest, nil
}

func readUvarint(b []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, nil, fmt.Errorf("changelog: malformed varint")
	}
	return v, b[n:], nil
}
