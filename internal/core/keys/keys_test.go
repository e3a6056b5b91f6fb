package keys

import (
	"bytes"
	"sort"
	"testing"

	"github.com/jmapstore/engine/internal/core/ids"
)

func TestIndexOrderMatchesNumericOrder(t *testing.T) {
	values := []int64{-100, -1, 0, 1, 2, 100, 1 << 40}
	var encoded [][]byte
	for _, v := range values {
		encoded = append(encoded, SortableInt64(v))
	}

	sorted := make([][]byte, len(encoded))
	copy(sorted, encoded)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })

	for i := range sorted {
		if !bytes.Equal(sorted[i], encoded[i]) {
			t.Fatalf("byte order does not match numeric order at index %d", i)
		}
	}
}

func TestSortableFloat64Order(t *testing.T) {
	values := []float64{-3.5, -0.001, 0, 0.001, 3.5, 1e10}
	var encoded [][]byte
	for _, v := range values {
		encoded = append(encoded, SortableFloat64(v))
	}
	for i := 1; i < len(encoded); i++ {
		if bytes.Compare(encoded[i-1], encoded[i]) >= 0 {
			t.Fatalf("expected %v < %v in byte order", values[i-1], values[i])
		}
	}
}

func TestFamiliesDoNotAlias(t *testing.T) {
	keysByFamily := [][]byte{
		Value(1, 2, 3, 4),
		Index(1, 2, 4, SortableInt64(5), 3),
		BitmapText(1, 2, 4, "hello"),
		BitmapTermExact(1, 2, 4, 99),
		BitmapUsedIDs(1, 2),
		BitmapTombstonedIDs(1, 2),
		BitmapFreedIDs(1, 2),
		Changelog(1, 2, 10),
		BlobRefcount([]byte("hash")),
		BlobList(1, 2, 3),
		TempBlob(1, 1700000000, []byte("hash")),
		TermDict([]byte("word")),
		TermCounterKey(),
		RaftLog(1, 1),
	}

	seen := map[byte]bool{}
	for _, k := range keysByFamily {
		family := k[0]
		if seen[family] {
			t.Fatalf("family tag %d reused across key builders", family)
		}
		seen[family] = true
	}
}

func TestIndexPrefixScanBoundary(t *testing.T) {
	account, collection, field := ids.AccountId(7), ids.CollectionId(1), ids.FieldId(3)
	prefix := IndexPrefix(account, collection, field)

	k1 := Index(account, collection, field, SortableInt64(1), 10)
	k2 := Index(account, collection, field+1, SortableInt64(1), 10)

	if !bytes.HasPrefix(k1, prefix) {
		t.Error("key for the target field must carry its own prefix")
	}
	if bytes.HasPrefix(k2, prefix) {
		t.Error("key for a different field must not share the prefix")
	}
}

func TestParseIndexDocument(t *testing.T) {
	account, collection, field, doc := ids.AccountId(1), ids.CollectionId(2), ids.FieldId(3), ids.DocumentId(424242)
	key := Index(account, collection, field, SortableInt64(5), doc)

	got, err := ParseIndexDocument(key)
	if err != nil {
		t.Fatalf("ParseIndexDocument: %v", err)
	}
	if got != doc {
		t.Errorf("ParseIndexDocument() = %d, want %d", got, doc)
	}
}

func TestChangelogRoundTrip(t *testing.T) {
	account, collection, change := ids.AccountId(3), ids.CollectionId(0), ids.ChangeId(123456789)
	key := Changelog(account, collection, change)

	got, err := ParseChangelogChangeID(key)
	if err != nil {
		t.Fatalf("ParseChangelogChangeID: %v", err)
	}
	if got != change {
		t.Errorf("ParseChangelogChangeID() = %d, want %d", got, change)
	}
	if !bytes.HasPrefix(key, ChangelogPrefix(account, collection)) {
		t.Error("changelog key must carry its (account, collection) prefix")
	}
}

func TestRaftLogRoundTrip(t *testing.T) {
	key := RaftLog(7, 42)
	term, index, err := ParseRaftLog(key)
	if err != nil {
		t.Fatalf("ParseRaftLog: %v", err)
	}
	if term != 7 || index != 42 {
		t.Errorf("ParseRaftLog() = (%d, %d), want (7, 42)", term, index)
	}
	if !bytes.HasPrefix(key, RaftLogTermPrefix(7)) {
		t.Error("raft log key must carry its term prefix")
	}
}

func TestParseTempBlob(t *testing.T) {
	account, ts, hash := ids.AccountId(9), int64(1700000000), []byte("deadbeef")
	key := TempBlob(account, ts, hash)

	gotTS, gotHash, err := ParseTempBlob(key)
	if err != nil {
		t.Fatalf("ParseTempBlob: %v", err)
	}
	if gotTS != ts {
		t.Errorf("ParseTempBlob() timestamp = %d, want %d", gotTS, ts)
	}
	if !bytes.Equal(gotHash, hash) {
		t.Errorf("ParseTempBlob() hash = %q, want %q", gotHash, hash)
	}
	if !bytes.HasPrefix(key, TempBlobPrefix(account)) {
		t.Error("temp blob key must carry its account prefix")
	}
}

func TestFieldSnapshotReserved(t *testing.T) {
	key := Value(1, 0, 1, ids.FieldSnapshot)
	if key[len(key)-1] != 0xFF {
		t.Error("snapshot field must encode as the reserved 0xFF byte")
	}
}
