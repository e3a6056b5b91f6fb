package query

import (
	"bytes"
	"sort"

	"github.com/jmapstore/engine/internal/core/bitmap"
	"github.com/jmapstore/engine/internal/core/ids"
	"github.com/jmapstore/engine/internal/core/keys"
)

// SortOrder picks ascending or descending iteration for one comparator.
type SortOrder uint8

const (
	Ascending SortOrder = iota
	Descending
)

// Comparator is one entry in a sort's comparator list: either a field's
// indexed value or bitmap membership. Sort tries comparators left to right,
// falling through to the next entry only on a tie.
type Comparator interface {
	sortKeys(e *Engine, account ids.AccountId, collection ids.CollectionId, candidates *bitmap.Set) (map[ids.DocumentId][]byte, error)
	order() SortOrder
}

// ByField orders by field's Sort-indexed value, range-scanning the same
// index family range conditions use. A document with no indexed row for
// field (the field was never written with Sort set) sorts as if its key
// were the empty string, ahead of every row that has one in ascending
// order.
type ByField struct {
	Field ids.FieldId
	Order SortOrder
}

func (b ByField) order() SortOrder { return b.Order }

func (b ByField) sortKeys(e *Engine, account ids.AccountId, collection ids.CollectionId, candidates *bitmap.Set) (map[ids.DocumentId][]byte, error) {
	prefix := keys.IndexPrefix(account, collection, b.Field)
	out := make(map[ids.DocumentId][]byte, candidates.Cardinality())

	err := e.engine.Scan(prefix, func(key, _ []byte) bool {
		if len(key) < len(prefix)+4 {
			return true
		}
		doc, err := keys.ParseIndexDocument(key)
		if err != nil || !candidates.Contains(doc) {
			return true
		}
		value := key[len(prefix) : len(key)-4]
		out[doc] = append([]byte(nil), value...)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ByBitmap orders live documents by whether they belong to set, with
// non-members sorting before members in ascending order (the common
// "flagged items last" shape); Descending reverses that.
type ByBitmap struct {
	Set   *bitmap.Set
	Order SortOrder
}

func (b ByBitmap) order() SortOrder { return b.Order }

func (b ByBitmap) sortKeys(_ *Engine, _ ids.AccountId, _ ids.CollectionId, candidates *bitmap.Set) (map[ids.DocumentId][]byte, error) {
	out := make(map[ids.DocumentId][]byte, candidates.Cardinality())
	candidates.ForEach(func(doc ids.DocumentId) bool {
		if b.Set != nil && b.Set.Contains(doc) {
			out[doc] = []byte{1}
		} else {
			out[doc] = []byte{0}
		}
		return true
	})
	return out, nil
}

// Sort orders candidates by comparators, trying each left to right and
// falling through on a tie, and returns the resulting document id sequence.
// Tombstoned ids never reach here: candidates is expected to already be the
// output of Engine.Find.
func (e *Engine) Sort(account ids.AccountId, collection ids.CollectionId, candidates *bitmap.Set, comparators ...Comparator) ([]ids.DocumentId, error) {
	docs := candidates.ToSlice()
	if len(comparators) == 0 {
		return docs, nil
	}

	keysByComparator := make([]map[ids.DocumentId][]byte, len(comparators))
	for i, c := range comparators {
		k, err := c.sortKeys(e, account, collection, candidates)
		if err != nil {
			return nil, err
		}
		keysByComparator[i] = k
	}

	sort.SliceStable(docs, func(i, j int) bool {
		for ci, c := range comparators {
			a := keysByComparator[ci][docs[i]]
			b := keysByComparator[ci][docs[j]]
			cmp := bytes.Compare(a, b)
			if c.order() == Descending {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp < 0
			}
		}
		return docs[i] < docs[j]
	})
	return docs, nil
}
