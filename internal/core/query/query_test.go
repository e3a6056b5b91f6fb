package query

import (
	"os"
	"reflect"
	"testing"

	"github.com/jmapstore/engine/internal/core/document"
	"github.com/jmapstore/engine/internal/core/ids"
	"github.com/jmapstore/engine/internal/core/store"
	"github.com/jmapstore/engine/internal/storage/badgerkv"
)

func openTestEngine(t *testing.T) *badgerkv.Engine {
	t.Helper()
	dir, err := os.MkdirTemp("", "jmapstore-query-*")
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
	testAccount    = ids.AccountId(7)
	testCollection = ids.CollectionId(0)

	fieldKeyword = ids.FieldId(0)
	fieldFloat   = ids.FieldId(3)
	fieldInt     = ids.FieldId(4)
	fieldTag     = ids.FieldId(6)
)

// seedScenarioS1 inserts 10 documents shaped like spec.md's S1 scenario
// (field 0 = keyword, field 3 = float, field 4 = integer, field 6 = a
// static tag shared by every document) and deletes ids 0 and 9.
func seedScenarioS1(t *testing.T, w *store.Writer) []ids.DocumentId {
	t.Helper()
	assigned := make([]ids.DocumentId, 10)
	for i := 0; i < 10; i++ {
		doc := document.New().
			Text(fieldKeyword, keywordFor(i), "", document.Store()).
			Number(fieldFloat, float64(i), document.Store().With(document.Sort())).
			Number(fieldInt, float64(i), document.Store().With(document.Sort())).
			TagStatic(fieldTag, 0, document.Store())
		res, err := w.Commit(WriteBatchInsert(testAccount, testCollection, doc))
		if err != nil {
			t.Fatal(err)
		}
		assigned[i] = res.AssignedIDs[0]
	}

	for _, i := range []int{0, 9} {
		del := store.WriteBatch{
			Account:   testAccount,
			Documents: []store.DocumentChange{{Action: store.Delete, Collection: testCollection, DocumentID: assigned[i]}},
		}
		if _, err := w.Commit(del); err != nil {
			t.Fatal(err)
		}
	}
	return assigned
}

func keywordFor(i int) string {
	return "keyword_" + string(rune('0'+i))
}

// WriteBatchInsert is a small test-local helper building the common
// single-document insert shape used throughout this file.
func WriteBatchInsert(account ids.AccountId, collection ids.CollectionId, doc *document.Document) store.WriteBatch {
	return store.WriteBatch{
		Account:         account,
		Documents:       []store.DocumentChange{{Action: store.Insert, Collection: collection, Doc: doc}},
		DefaultLanguage: "en",
	}
}

func TestEngine_S1_FilterNoneSortedByFloatExcludesTombstones(t *testing.T) {
	kv := openTestEngine(t)
	w := store.NewWriter(kv, nil, "en")
	assigned := seedScenarioS1(t, w)

	qe := NewEngine(kv)
	live, err := qe.Find(testAccount, testCollection, nil)
	if err != nil {
		t.Fatal(err)
	}
	sorted, err := qe.Sort(testAccount, testCollection, live, ByField{Field: fieldFloat, Order: Ascending})
	if err != nil {
		t.Fatal(err)
	}

	want := assigned[1:9]
	if !reflect.DeepEqual(sorted, want) {
		t.Errorf("sorted = %v, want %v", sorted, want)
	}
}

func TestEngine_S1_TagFilterExcludesTombstones(t *testing.T) {
	kv := openTestEngine(t)
	w := store.NewWriter(kv, nil, "en")
	assigned := seedScenarioS1(t, w)

	qe := NewEngine(kv)
	matched, err := qe.Find(testAccount, testCollection, Condition{
		Field: fieldTag, Op: OpEqual, Value: TagValue{Kind: document.TagStatic, ID: 0},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := assigned[1:9]
	for _, id := range want {
		if !matched.Contains(id) {
			t.Errorf("expected live document %d in tag filter result", id)
		}
	}
	if matched.Contains(assigned[0]) || matched.Contains(assigned[9]) {
		t.Error("tombstoned documents must not appear in a tag filter result")
	}
}

func TestEngine_KeywordConditionDirectBitmapLookup(t *testing.T) {
	kv := openTestEngine(t)
	w := store.NewWriter(kv, nil, "en")
	assigned := seedScenarioS1(t, w)

	qe := NewEngine(kv)
	matched, err := qe.Find(testAccount, testCollection, Condition{
		Field: fieldKeyword, Op: OpEqual, Value: Keyword(keywordFor(4)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if matched.Cardinality() != 1 || !matched.Contains(assigned[4]) {
		t.Errorf("expected exactly document %d, got %v", assigned[4], matched.ToSlice())
	}
}

func TestEngine_RangeConditionGreaterThan(t *testing.T) {
	kv := openTestEngine(t)
	w := store.NewWriter(kv, nil, "en")
	assigned := seedScenarioS1(t, w)

	qe := NewEngine(kv)
	matched, err := qe.Find(testAccount, testCollection, Condition{
		Field: fieldFloat, Op: OpGreaterThan, Value: Number(5),
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, id := range assigned {
		want := i > 5 && i != 9
		if got := matched.Contains(id); got != want {
			t.Errorf("document %d (i=%d): matched=%v, want=%v", id, i, got, want)
		}
	}
}

func TestEngine_AndNot(t *testing.T) {
	kv := openTestEngine(t)
	w := store.NewWriter(kv, nil, "en")
	assigned := seedScenarioS1(t, w)

	qe := NewEngine(kv)

	and, err := qe.Find(testAccount, testCollection, And{
		Condition{Field: fieldFloat, Op: OpGreaterOrEqual, Value: Number(2)},
		Condition{Field: fieldFloat, Op: OpLessOrEqual, Value: Number(4)},
	})
	if err != nil {
		t.Fatal(err)
	}
	wantAnd := map[ids.DocumentId]bool{assigned[2]: true, assigned[3]: true, assigned[4]: true}
	if and.Cardinality() != uint64(len(wantAnd)) {
		t.Errorf("And cardinality = %d, want %d", and.Cardinality(), len(wantAnd))
	}
	for id := range wantAnd {
		if !and.Contains(id) {
			t.Errorf("expected %d in And result", id)
		}
	}

	not, err := qe.Find(testAccount, testCollection, Not{Filter: Condition{
		Field: fieldFloat, Op: OpLessThan, Value: Number(5),
	}})
	if err != nil {
		t.Fatal(err)
	}
	for i := 5; i <= 8; i++ {
		if !not.Contains(assigned[i]) {
			t.Errorf("expected %d (i=%d) in Not result", assigned[i], i)
		}
	}
	if not.Contains(assigned[9]) {
		t.Error("Not must still exclude tombstoned documents")
	}
}

func TestEngine_SortByBitmapMembership(t *testing.T) {
	kv := openTestEngine(t)
	w := store.NewWriter(kv, nil, "en")
	assigned := seedScenarioS1(t, w)

	qe := NewEngine(kv)
	live, err := qe.Find(testAccount, testCollection, nil)
	if err != nil {
		t.Fatal(err)
	}

	flagged, err := qe.Find(testAccount, testCollection, Condition{
		Field: fieldFloat, Op: OpGreaterOrEqual, Value: Number(6),
	})
	if err != nil {
		t.Fatal(err)
	}

	sorted, err := qe.Sort(testAccount, testCollection, live,
		ByBitmap{Set: flagged, Order: Descending},
		ByField{Field: fieldFloat, Order: Ascending},
	)
	if err != nil {
		t.Fatal(err)
	}

	for i, id := range sorted[:3] {
		if !flagged.Contains(id) {
			t.Errorf("expected flagged document at sorted position %d, got %d", i, id)
		}
	}
	if sorted[0] != assigned[6] || sorted[1] != assigned[7] || sorted[2] != assigned[8] {
		t.Errorf("expected flagged group sorted ascending by float within itself, got %v", sorted[:3])
	}
}

func TestEngine_ChangesFoldsInsertsAndDeletesSinceZero(t *testing.T) {
	kv := openTestEngine(t)
	w := store.NewWriter(kv, nil, "en")
	assigned := seedScenarioS1(t, w)

	qe := NewEngine(kv)
	delta, err := qe.Changes(testAccount, testCollection, 0)
	if err != nil {
		t.Fatal(err)
	}

	insertSet := map[ids.DocumentId]bool{}
	for _, id := range delta.Inserts {
		insertSet[id] = true
	}
	for i, id := range assigned {
		if i == 0 || i == 9 {
			if insertSet[id] {
				t.Errorf("document %d was inserted then deleted within range, should net out of Inserts", id)
			}
			continue
		}
		if !insertSet[id] {
			t.Errorf("expected %d in merged Inserts", id)
		}
	}
	if delta.UpTo == 0 {
		t.Error("expected UpTo to advance past 0")
	}
}

func TestEngine_ChangesSinceLatestIsEmpty(t *testing.T) {
	kv := openTestEngine(t)
	w := store.NewWriter(kv, nil, "en")
	seedScenarioS1(t, w)

	qe := NewEngine(kv)
	first, err := qe.Changes(testAccount, testCollection, 0)
	if err != nil {
		t.Fatal(err)
	}
	again, err := qe.Changes(testAccount, testCollection, first.UpTo)
	if err != nil {
		t.Fatal(err)
	}
	if !again.IsEmpty() {
		t.Errorf("expected no changes since the latest ChangeId, got %+v", again.Change)
	}
}
