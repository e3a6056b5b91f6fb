package changelog

import (
	"reflect"
	"testing"

	"github.com/jmapstore/engine/internal/core/ids"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := Change{
		Inserts:      []ids.DocumentId{1, 2, 3},
		Updates:      []ids.DocumentId{4},
		ChildUpdates: []ids.DocumentId{5, 6},
		Deletes:      []ids.DocumentId{7},
	}

	encoded := Encode(c)
	if !IsEntry(encoded) {
		t.Fatal("Encode() should produce an ENTRY record")
	}

	got, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, c) {
		t.Errorf("Decode() = %+v, want %+v", got, c)
	}
}

func TestEncodeDecodeEmptyChange(t *testing.T) {
	encoded := Encode(Change{})
	got, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.IsEmpty() {
		t.Errorf("decoded empty change should be empty, got %+v", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := Snapshot{Groups: []SnapshotGroup{
		{Collections: []ids.CollectionId{0, 1}, Accounts: []ids.AccountId{10, 20, 30}},
		{Collections: []ids.CollectionId{2}, Accounts: []ids.AccountId{10}},
	}}

	encoded := EncodeSnapshot(s)
	if !IsSnapshot(encoded) {
		t.Fatal("EncodeSnapshot() should produce a SNAPSHOT record")
	}

	got, err := DecodeSnapshot(encoded)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if !reflect.DeepEqual(got, s) {
		t.Errorf("DecodeSnapshot() = %+v, want %+v", got, s)
	}
}

func TestDecodeRejectsWrongTag(t *testing.T) {
	if _, err := Decode(EncodeSnapshot(Snapshot{})); err == nil {
		t.Error("Decode() should reject a SNAPSHOT-tagged buffer")
	}
	if _, err := DecodeSnapshot(Encode(Change{})); err == nil {
		t.Error("DecodeSnapshot() should reject an ENTRY-tagged buffer")
	}
}

func TestMergeNetsOutInsertThenDelete(t *testing.T) {
	first := Change{Inserts: []ids.DocumentId{1, 2}}
	second := Change{Deletes: []ids.DocumentId{1}}

	merged := first.Merge(second)
	if len(merged.Inserts) != 1 || merged.Inserts[0] != 2 {
		t.Errorf("merged.Inserts = %v, want [2]", merged.Inserts)
	}
	if len(merged.Deletes) != 0 {
		t.Errorf("merged.Deletes = %v, want empty (net of insert+delete in range)", merged.Deletes)
	}
}

func TestMergeKeepsUpdateAfterInsertAsInsert(t *testing.T) {
	first := Change{Inserts: []ids.DocumentId{1}}
	second := Change{Updates: []ids.DocumentId{1}}

	merged := first.Merge(second)
	if len(merged.Inserts) != 1 || merged.Inserts[0] != 1 {
		t.Errorf("merged.Inserts = %v, want [1]", merged.Inserts)
	}
	if len(merged.Updates) != 0 {
		t.Errorf("merged.Updates = %v, want empty", merged.Updates)
	}
}

func TestMergeDeleteThenRemainsDeleted(t *testing.T) {
	first := Change{Deletes: []ids.DocumentId{9}}
	second := Change{Updates: []ids.DocumentId{9}}

	merged := first.Merge(second)
	if len(merged.Deletes) != 1 || merged.Deletes[0] != 9 {
		t.Errorf("merged.Deletes = %v, want [9]", merged.Deletes)
	}
}
