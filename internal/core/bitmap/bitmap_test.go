package bitmap

import (
	"testing"

	"github.com/jmapstore/engine/internal/core/ids"
)

func TestUnionIntersectDifference(t *testing.T) {
	a := Of(1, 2, 3)
	b := Of(2, 3, 4)

	union := Union(a, b)
	if union.Cardinality() != 4 {
		t.Errorf("Union cardinality = %d, want 4", union.Cardinality())
	}

	inter := Intersect(a, b)
	if inter.Cardinality() != 2 || !inter.Contains(2) || !inter.Contains(3) {
		t.Errorf("Intersect = %v, want {2,3}", inter.ToSlice())
	}

	diff := Difference(a, b)
	if diff.Cardinality() != 1 || !diff.Contains(1) {
		t.Errorf("Difference = %v, want {1}", diff.ToSlice())
	}

	// Inputs must be left unmodified.
	if a.Cardinality() != 3 || b.Cardinality() != 3 {
		t.Error("combinators must not mutate their inputs")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	s := Of(10, 20, 30, 1<<20)
	encoded := s.Bytes()

	decoded, err := FromBytes(encoded)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if decoded.Cardinality() != s.Cardinality() {
		t.Fatalf("cardinality mismatch after round-trip: got %d want %d", decoded.Cardinality(), s.Cardinality())
	}
	for _, d := range s.ToSlice() {
		if !decoded.Contains(d) {
			t.Errorf("decoded set missing member %d", d)
		}
	}
}

func TestFromBytesEmpty(t *testing.T) {
	s, err := FromBytes(nil)
	if err != nil {
		t.Fatalf("FromBytes(nil): %v", err)
	}
	if !s.IsEmpty() {
		t.Error("FromBytes(nil) should produce an empty set")
	}
}

func TestApplyChangeSet(t *testing.T) {
	base := Of(1, 2, 3)
	cs := ChangeSet{Set: []ids.DocumentId{4, 5}, Clear: []ids.DocumentId{2}}

	got := Apply(base, cs)
	want := map[ids.DocumentId]bool{1: true, 3: true, 4: true, 5: true}

	if got.Cardinality() != uint64(len(want)) {
		t.Fatalf("Apply cardinality = %d, want %d", got.Cardinality(), len(want))
	}
	for d := range want {
		if !got.Contains(d) {
			t.Errorf("Apply result missing expected member %d", d)
		}
	}
	if got.Contains(2) {
		t.Error("Apply result should not contain cleared member 2")
	}

	// base must be unmodified.
	if !base.Contains(2) || base.Cardinality() != 3 {
		t.Error("Apply must not mutate base")
	}
}

func TestApplySetAndClearSameID(t *testing.T) {
	cs := ChangeSet{Set: []ids.DocumentId{7}, Clear: []ids.DocumentId{7}}
	got := Apply(nil, cs)
	if got.Contains(7) {
		t.Error("when an id is both set and cleared in one batch, clear must win")
	}
}

func TestMinMax(t *testing.T) {
	empty := New()
	if _, ok := empty.Min(); ok {
		t.Error("Min() on empty set should report not-ok")
	}

	s := Of(5, 1, 9, 3)
	min, ok := s.Min()
	if !ok || min != 1 {
		t.Errorf("Min() = (%d, %v), want (1, true)", min, ok)
	}
	max, ok := s.Max()
	if !ok || max != 9 {
		t.Errorf("Max() = (%d, %v), want (9, true)", max, ok)
	}
}

func TestForEachOrderAndEarlyStop(t *testing.T) {
	s := Of(3, 1, 2)
	var seen []ids.DocumentId
	s.ForEach(func(d ids.DocumentId) bool {
		seen = append(seen, d)
		return len(seen) < 2
	})
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("ForEach() = %v, want ascending order stopping after 2 elements", seen)
	}
}
