package store

import (
	"os"
	"testing"

	"github.com/jmapstore/engine/internal/core/blobstore"
	"github.com/jmapstore/engine/internal/core/changelog"
	"github.com/jmapstore/engine/internal/core/document"
	"github.com/jmapstore/engine/internal/core/fts"
	"github.com/jmapstore/engine/internal/core/ids"
	"github.com/jmapstore/engine/internal/core/keys"
	"github.com/jmapstore/engine/internal/storage/badgerkv"
)

func openTestEngine(t *testing.T) *badgerkv.Engine {
	t.Helper()
	dir, err := os.MkdirTemp("", "jmapstore-store-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := badgerkv.DefaultConfig(dir)
	cfg.GCInterval = "1h"

	e, err := badgerkv.Open(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

const (
	testAccount    = ids.AccountId(1)
	testCollection = ids.CollectionId(3)
)

func insertBatch(doc *document.Document) WriteBatch {
	return WriteBatch{
		Account:         testAccount,
		Documents:       []DocumentChange{{Action: Insert, Collection: testCollection, Doc: doc}},
		DefaultLanguage: "en",
	}
}

func TestWriter_CommitInsertAssignsIDsAndChangelog(t *testing.T) {
	w := NewWriter(openTestEngine(t), nil, "en")

	doc := document.New().Text(1, "hello world", "", document.Store())
	res, err := w.Commit(insertBatch(doc))
	if err != nil {
		t.Fatal(err)
	}
	if res.AssignedIDs[0] != 0 {
		t.Errorf("first assigned id = %d, want 0", res.AssignedIDs[0])
	}
	if _, ok := res.ChangeIDs[testCollection]; !ok {
		t.Errorf("expected a ChangeId for %d", testCollection)
	}

	doc2 := document.New().Text(1, "second", "", document.Store())
	res2, err := w.Commit(insertBatch(doc2))
	if err != nil {
		t.Fatal(err)
	}
	if res2.AssignedIDs[0] != 1 {
		t.Errorf("second assigned id = %d, want 1", res2.AssignedIDs[0])
	}
}

func TestWriter_CommitReusesFreedID(t *testing.T) {
	e := openTestEngine(t)
	w := NewWriter(e, nil, "en")

	doc := document.New().Text(1, "a", "", document.Store())
	res, err := w.Commit(insertBatch(doc))
	if err != nil {
		t.Fatal(err)
	}
	firstID := res.AssignedIDs[0]

	del := WriteBatch{
		Account:   testAccount,
		Documents: []DocumentChange{{Action: Delete, Collection: testCollection, DocumentID: firstID}},
	}
	if _, err := w.Commit(del); err != nil {
		t.Fatal(err)
	}

	if err := w.Purge(testAccount, testCollection, firstID, document.New()); err != nil {
		t.Fatal(err)
	}

	doc2 := document.New().Text(1, "b", "", document.Store())
	res2, err := w.Commit(insertBatch(doc2))
	if err != nil {
		t.Fatal(err)
	}
	if res2.AssignedIDs[0] != firstID {
		t.Errorf("expected freed id %d to be reused, got %d", firstID, res2.AssignedIDs[0])
	}
}

func TestWriter_CommitSynthesizesChangeFromActions(t *testing.T) {
	e := openTestEngine(t)
	w := NewWriter(e, nil, "en")

	doc := document.New().Text(1, "x", "", document.Store())
	res, err := w.Commit(insertBatch(doc))
	if err != nil {
		t.Fatal(err)
	}
	changeID := res.ChangeIDs[testCollection]

	key := keys.Changelog(testAccount, testCollection, changeID)
	raw, err := e.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	change, err := changelog.Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(change.Inserts) != 1 || change.Inserts[0] != res.AssignedIDs[0] {
		t.Errorf("synthesized change = %+v, want single insert of %d", change, res.AssignedIDs[0])
	}
}

func TestWriter_CommitExplicitChangeOverridesSynthesized(t *testing.T) {
	e := openTestEngine(t)
	w := NewWriter(e, nil, "en")

	doc := document.New().Text(1, "x", "", document.Store())
	wb := insertBatch(doc)
	override := changelog.Change{ChildUpdates: []ids.DocumentId{42}}
	wb.Changes = map[ids.CollectionId]changelog.Change{testCollection: override}

	res, err := w.Commit(wb)
	if err != nil {
		t.Fatal(err)
	}
	changeID := res.ChangeIDs[testCollection]

	key := keys.Changelog(testAccount, testCollection, changeID)
	raw, err := e.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	change, err := changelog.Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(change.Inserts) != 0 || len(change.ChildUpdates) != 1 || change.ChildUpdates[0] != 42 {
		t.Errorf("explicit override change = %+v, want only ChildUpdates=[42]", change)
	}
}

func TestWriter_CommitDeleteDoesNotEraseRows(t *testing.T) {
	e := openTestEngine(t)
	w := NewWriter(e, nil, "en")

	doc := document.New().Text(1, "keepme", "", document.Store())
	res, err := w.Commit(insertBatch(doc))
	if err != nil {
		t.Fatal(err)
	}
	docID := res.AssignedIDs[0]

	del := WriteBatch{
		Account:   testAccount,
		Documents: []DocumentChange{{Action: Delete, Collection: testCollection, DocumentID: docID}},
	}
	if _, err := w.Commit(del); err != nil {
		t.Fatal(err)
	}

	valKey := keys.Value(testAccount, testCollection, docID, 1)
	if _, err := e.Get(valKey); err != nil {
		t.Errorf("stored value row should survive Delete (purge handles erasure), got %v", err)
	}

	usedSet, err := w.readBitmap(keys.BitmapUsedIDs(testAccount, testCollection))
	if err != nil {
		t.Fatal(err)
	}
	if usedSet == nil || !usedSet.Contains(docID) {
		t.Error("USED_IDS should still contain the tombstoned document until purge")
	}

	tombSet, err := w.readBitmap(keys.BitmapTombstonedIDs(testAccount, testCollection))
	if err != nil {
		t.Fatal(err)
	}
	if tombSet == nil || !tombSet.Contains(docID) {
		t.Error("TOMBSTONED_IDS should contain the deleted document")
	}
}

func TestWriter_CommitDeleteReleasesBlobRefcount(t *testing.T) {
	e := openTestEngine(t)
	w := NewWriter(e, nil, "en")

	payload := []byte("blob payload bytes")
	doc := document.New().Binary(2, payload, document.Blob(0))
	res, err := w.Commit(insertBatch(doc))
	if err != nil {
		t.Fatal(err)
	}
	docID := res.AssignedIDs[0]

	hash := blobstore.Hash(payload)
	refKey := keys.BlobRefcount(hash)
	if _, err := e.Get(refKey); err != nil {
		t.Fatalf("expected blob refcount row after insert: %v", err)
	}

	del := WriteBatch{
		Account:   testAccount,
		Documents: []DocumentChange{{Action: Delete, Collection: testCollection, DocumentID: docID}},
	}
	if _, err := w.Commit(del); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Get(refKey); err == nil {
		t.Error("blob refcount should reach zero and be removed once the only referencing document is deleted")
	}
}

func TestWriter_BitmapSetThenClearInSameBatchIsNoop(t *testing.T) {
	e := openTestEngine(t)
	w := NewWriter(e, nil, "en")

	doc := document.New().
		TagStatic(5, 9, document.Store()).
		TagStatic(5, 9, document.Clear())
	res, err := w.Commit(insertBatch(doc))
	if err != nil {
		t.Fatal(err)
	}
	docID := res.AssignedIDs[0]

	key := keys.BitmapTagStatic(testAccount, testCollection, 5, 9)
	set, err := w.readBitmap(key)
	if err != nil {
		t.Fatal(err)
	}
	if set != nil && set.Contains(docID) {
		t.Error("set then clear of the same bit within one batch should collapse to a no-op")
	}
}

func TestWriter_TextModeKeyword(t *testing.T) {
	e := openTestEngine(t)
	w := NewWriter(e, nil, "en")

	doc := document.New().Text(1, "Hello", "", document.Store())
	res, err := w.Commit(insertBatch(doc))
	if err != nil {
		t.Fatal(err)
	}
	docID := res.AssignedIDs[0]

	key := keys.BitmapText(testAccount, testCollection, 1, fts.Normalize("Hello"))
	set, err := w.readBitmap(key)
	if err != nil {
		t.Fatal(err)
	}
	if set == nil || !set.Contains(docID) {
		t.Fatal("expected keyword bitmap bit for normalized whole value")
	}

	clearDoc := document.New().Text(1, "Hello", "", document.Clear())
	upd := WriteBatch{
		Account:   testAccount,
		Documents: []DocumentChange{{Action: Update, Collection: testCollection, DocumentID: docID, Doc: clearDoc}},
	}
	if _, err := w.Commit(upd); err != nil {
		t.Fatal(err)
	}
	set, err = w.readBitmap(key)
	if err != nil {
		t.Fatal(err)
	}
	if set != nil && set.Contains(docID) {
		t.Error("clearing the keyword text should remove its bitmap bit")
	}
}

func TestWriter_TextModeTokenized(t *testing.T) {
	e := openTestEngine(t)
	w := NewWriter(e, nil, "en")

	doc := document.New().Text(1, "The Quick Brown Fox", "", document.Tokenized())
	res, err := w.Commit(insertBatch(doc))
	if err != nil {
		t.Fatal(err)
	}
	docID := res.AssignedIDs[0]

	for _, word := range []string{"the", "quick", "brown", "fox"} {
		key := keys.BitmapText(testAccount, testCollection, 1, word)
		set, err := w.readBitmap(key)
		if err != nil {
			t.Fatal(err)
		}
		if set == nil || !set.Contains(docID) {
			t.Errorf("expected token bit for %q", word)
		}
	}
}

func TestWriter_TextModeFullText(t *testing.T) {
	e := openTestEngine(t)
	w := NewWriter(e, nil, "en")

	doc := document.New().Text(1, "running dogs", "en", document.FullText())
	res, err := w.Commit(insertBatch(doc))
	if err != nil {
		t.Fatal(err)
	}
	docID := res.AssignedIDs[0]

	posKey := keys.PositionalIndex(testAccount, testCollection, docID, 1, 0)
	if _, err := e.Get(posKey); err != nil {
		t.Errorf("expected a positional index row for full-text field: %v", err)
	}

	clearDoc := document.New().Text(1, "running dogs", "en", document.Options{TextMode: document.TextFullText, Clear: true})
	upd := WriteBatch{
		Account:   testAccount,
		Documents: []DocumentChange{{Action: Update, Collection: testCollection, DocumentID: docID, Doc: clearDoc}},
	}
	if _, err := w.Commit(upd); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Get(posKey); err == nil {
		t.Error("clearing a full-text field should remove its positional index row")
	}
}

func TestWriter_Purge(t *testing.T) {
	e := openTestEngine(t)
	w := NewWriter(e, nil, "en")

	payload := []byte("purge me")
	doc := document.New().
		Text(1, "searchable", "", document.Store()).
		Binary(2, payload, document.Blob(0))
	res, err := w.Commit(insertBatch(doc))
	if err != nil {
		t.Fatal(err)
	}
	docID := res.AssignedIDs[0]

	del := WriteBatch{
		Account:   testAccount,
		Documents: []DocumentChange{{Action: Delete, Collection: testCollection, DocumentID: docID}},
	}
	if _, err := w.Commit(del); err != nil {
		t.Fatal(err)
	}

	clearOps := document.New().
		Text(1, "searchable", "", document.Options{Store: true, Clear: true})
	if err := w.Purge(testAccount, testCollection, docID, clearOps); err != nil {
		t.Fatal(err)
	}

	valKey := keys.Value(testAccount, testCollection, docID, 1)
	if _, err := e.Get(valKey); err == nil {
		t.Error("purge should erase the stored value row")
	}

	blobListKey := keys.BlobList(testAccount, testCollection, docID)
	if _, err := e.Get(blobListKey); err == nil {
		t.Error("purge should erase the blob-list row")
	}

	usedSet, err := w.readBitmap(keys.BitmapUsedIDs(testAccount, testCollection))
	if err != nil {
		t.Fatal(err)
	}
	if usedSet != nil && usedSet.Contains(docID) {
		t.Error("purge should remove the document from USED_IDS")
	}
	freedSet, err := w.readBitmap(keys.BitmapFreedIDs(testAccount, testCollection))
	if err != nil {
		t.Fatal(err)
	}
	if freedSet == nil || !freedSet.Contains(docID) {
		t.Error("purge should add the document to FREED_IDS")
	}
}

func TestWriter_StoreAsBlobStoresHashNotRawBytes(t *testing.T) {
	e := openTestEngine(t)
	w := NewWriter(e, nil, "en")

	payload := []byte("raw content")
	doc := document.New().Binary(2, payload, document.Blob(0))
	res, err := w.Commit(insertBatch(doc))
	if err != nil {
		t.Fatal(err)
	}
	docID := res.AssignedIDs[0]

	valKey := keys.Value(testAccount, testCollection, docID, 2)
	stored, err := e.Get(valKey)
	if err != nil {
		t.Fatal(err)
	}
	if string(stored) != string(blobstore.Hash(payload)) {
		t.Error("a StoreAsBlob field stores the content hash, not the raw bytes")
	}

	payloadKey := keys.BlobPayload(blobstore.Hash(payload))
	blobRaw, err := e.Get(payloadKey)
	if err != nil {
		t.Fatal(err)
	}
	if string(blobRaw) != string(payload) {
		t.Error("blob payload row should hold the original bytes")
	}
}
