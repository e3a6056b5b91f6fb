package bitmap

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/jmapstore/engine/internal/core/ids"
)

// Set is a compressed sorted set of document ids.
type Set struct {
	bm *roaring.Bitmap
}

// New returns an empty set.
func New() *Set { return &Set{bm: roaring.New()} }

// Of returns a set containing exactly the given document ids.
func Of(docs ...ids.DocumentId) *Set {
	s := New()
	for _, d := range docs {
		s.bm.Add(uint32(d))
	}
	return s
}

// FromBytes decodes a set from its serialized roaring bitmap form.
func FromBytes(b []byte) (*Set, error) {
	bm := roaring.New()
	if len(b) > 0 {
		if err := bm.UnmarshalBinary(b); err != nil {
			return nil, fmt.Errorf("bitmap: decode: %w", err)
		}
	}
	return &Set{bm: bm}, nil
}

// Bytes serializes the set to its portable roaring bitmap form.
func (s *Set) Bytes() []byte {
	if s == nil || s.bm == nil {
		return nil
	}
	b, err := s.bm.MarshalBinary()
	if err != nil {
		// roaring.Bitmap.MarshalBinary only fails on an internal invariant
		// violation; a bitmap built solely through this package's API never
		// reaches that state.
		panic(fmt.Sprintf("bitmap: serialize: %v", err))
	}
	return b
}

// Clone returns an independent copy of the set.
func (s *Set) Clone() *Set { return &Set{bm: s.bm.Clone()} }

// Contains reports whether doc is a member.
func (s *Set) Contains(doc ids.DocumentId) bool { return s.bm.Contains(uint32(doc)) }

// Add inserts doc into the set.
func (s *Set) Add(doc ids.DocumentId) { s.bm.Add(uint32(doc)) }

// Remove deletes doc from the set.
func (s *Set) Remove(doc ids.DocumentId) { s.bm.Remove(uint32(doc)) }

// Cardinality returns the number of members.
func (s *Set) Cardinality() uint64 { return s.bm.GetCardinality() }

// IsEmpty reports whether the set has no members.
func (s *Set) IsEmpty() bool { return s.bm.IsEmpty() }

// Min returns the smallest member and whether the set is non-empty.
func (s *Set) Min() (ids.DocumentId, bool) {
	if s.bm.IsEmpty() {
		return 0, false
	}
	return ids.DocumentId(s.bm.Minimum()), true
}

// Max returns the largest member and whether the set is non-empty.
func (s *Set) Max() (ids.DocumentId, bool) {
	if s.bm.IsEmpty() {
		return 0, false
	}
	return ids.DocumentId(s.bm.Maximum()), true
}

// ToSlice returns the members in ascending order.
func (s *Set) ToSlice() []ids.DocumentId {
	arr := s.bm.ToArray()
	out := make([]ids.DocumentId, len(arr))
	for i, v := range arr {
		out[i] = ids.DocumentId(v)
	}
	return out
}

// ForEach calls fn for every member in ascending order, stopping early if fn
// returns false.
func (s *Set) ForEach(fn func(ids.DocumentId) bool) {
	it := s.bm.Iterator()
	for it.HasNext() {
		if !fn(ids.DocumentId(it.Next())) {
			return
		}
	}
}

// Union returns the union of sets, leaving all inputs unmodified.
func Union(sets ...*Set) *Set {
	out := New()
	for _, s := range sets {
		if s != nil {
			out.bm.Or(s.bm)
		}
	}
	return out
}

// Intersect returns the intersection of sets, leaving all inputs unmodified.
// An empty argument list returns an empty set.
func Intersect(sets ...*Set) *Set {
	if len(sets) == 0 {
		return New()
	}
	out := sets[0].Clone()
	for _, s := range sets[1:] {
		out.bm.And(s.bm)
	}
	return out
}

// Difference returns a \ b, leaving both inputs unmodified.
func Difference(a, b *Set) *Set {
	out := a.Clone()
	out.bm.AndNot(b.bm)
	return out
}

// ChangeSet is a batch of set/clear operations against one bitmap key,
// applied atomically so a document id referenced by both a set and a clear
// within the same batch settles on the clear (deletions win ties, matching
// the write pipeline applying field clears before field sets per document).
type ChangeSet struct {
	Set   []ids.DocumentId
	Clear []ids.DocumentId
}

// IsEmpty reports whether the change set has no operations.
func (c ChangeSet) IsEmpty() bool { return len(c.Set) == 0 && len(c.Clear) == 0 }

// Apply returns a new set with c's operations applied to base. base may be
// nil, treated as empty.
func Apply(base *Set, c ChangeSet) *Set {
	out := New()
	if base != nil {
		out.bm.Or(base.bm)
	}
	for _, d := range c.Set {
		out.bm.Add(uint32(d))
	}
	for _, d := range c.Clear {
		out.bm.Remove(uint32(d))
	}
	return out
}
