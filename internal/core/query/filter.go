package query

import (
	"bytes"

	"github.com/jmapstore/engine/internal/core/bitmap"
	"github.com/jmapstore/engine/internal/core/domain"
	"github.com/jmapstore/engine/internal/core/ids"
	"github.com/jmapstore/engine/internal/core/keys"
	"github.com/jmapstore/engine/internal/storage/badgerkv"
)

// Filter is a node in the filter tree: Condition and DocumentSet are
// leaves, And/Or/Not are internals. Engine.Find resolves the whole tree to
// the matching document bitmap within (account, collection) and intersects
// it with USED_IDS \ TOMBSTONED_IDS; a node's own evaluate does not.
type Filter interface {
	evaluate(e *Engine, account ids.AccountId, collection ids.CollectionId) (*bitmap.Set, error)
}

// Condition is a leaf naming one field, a comparison operator, and the
// Value to compare against.
type Condition struct {
	Field ids.FieldId
	Op    Op
	Value Value
}

func (c Condition) evaluate(e *Engine, account ids.AccountId, collection ids.CollectionId) (*bitmap.Set, error) {
	return c.Value.resolve(e, account, collection, c.Field, c.Op)
}

// DocumentSet is a leaf wrapping an already-computed bitmap, letting a
// caller splice a precomputed result (e.g. from a prior query stage) into a
// larger filter tree.
type DocumentSet struct {
	Set *bitmap.Set
}

func (d DocumentSet) evaluate(*Engine, ids.AccountId, ids.CollectionId) (*bitmap.Set, error) {
	if d.Set == nil {
		return bitmap.New(), nil
	}
	return d.Set, nil
}

// And intersects every operand's bitmap.
type And []Filter

func (a And) evaluate(e *Engine, account ids.AccountId, collection ids.CollectionId) (*bitmap.Set, error) {
	sets, err := evaluateAll(e, account, collection, a)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return bitmap.New(), nil
	}
	return bitmap.Intersect(sets...), nil
}

// Or unions every operand's bitmap.
type Or []Filter

func (o Or) evaluate(e *Engine, account ids.AccountId, collection ids.CollectionId) (*bitmap.Set, error) {
	sets, err := evaluateAll(e, account, collection, o)
	if err != nil {
		return nil, err
	}
	return bitmap.Union(sets...), nil
}

// Not complements its operand against USED_IDS \ TOMBSTONED_IDS: the
// candidate universe a filter is ever allowed to draw from.
type Not struct {
	Filter Filter
}

func (n Not) evaluate(e *Engine, account ids.AccountId, collection ids.CollectionId) (*bitmap.Set, error) {
	universe, err := e.liveDocuments(account, collection)
	if err != nil {
		return nil, err
	}
	inner, err := n.Filter.evaluate(e, account, collection)
	if err != nil {
		return nil, err
	}
	return bitmap.Difference(universe, inner), nil
}

func evaluateAll(e *Engine, account ids.AccountId, collection ids.CollectionId, filters []Filter) ([]*bitmap.Set, error) {
	sets := make([]*bitmap.Set, 0, len(filters))
	for _, f := range filters {
		set, err := f.evaluate(e, account, collection)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// Engine answers filter/sort/delta queries by reading rows store.Writer
// committed, never mutating them.
type Engine struct {
	engine *badgerkv.Engine
}

// NewEngine returns a query Engine reading from kv.
func NewEngine(kv *badgerkv.Engine) *Engine {
	return &Engine{engine: kv}
}

// Find evaluates filter and returns the matching, live document bitmap.
func (e *Engine) Find(account ids.AccountId, collection ids.CollectionId, filter Filter) (*bitmap.Set, error) {
	if filter == nil {
		return e.liveDocuments(account, collection)
	}
	matched, err := filter.evaluate(e, account, collection)
	if err != nil {
		return nil, err
	}
	live, err := e.liveDocuments(account, collection)
	if err != nil {
		return nil, err
	}
	return bitmap.Intersect(matched, live), nil
}

// liveDocuments returns USED_IDS \ TOMBSTONED_IDS, the universe every query
// result and Not complement is drawn from.
func (e *Engine) liveDocuments(account ids.AccountId, collection ids.CollectionId) (*bitmap.Set, error) {
	used, err := e.readBitmap(keys.BitmapUsedIDs(account, collection))
	if err != nil {
		return nil, err
	}
	tombstoned, err := e.readBitmap(keys.BitmapTombstonedIDs(account, collection))
	if err != nil {
		return nil, err
	}
	return bitmap.Difference(used, tombstoned), nil
}

func (e *Engine) readBitmap(key []byte) (*bitmap.Set, error) {
	raw, err := e.engine.Get(key)
	if err != nil {
		if domain.Is(err, domain.KindNotFound) {
			return bitmap.New(), nil
		}
		return nil, err
	}
	set, err := bitmap.FromBytes(raw)
	if err != nil {
		return nil, domain.Wrap(domain.KindDataCorruption, "query.readBitmap", "decode stored bitmap", err)
	}
	return set, nil
}

// scanIndex range-scans field's index family, collecting documents whose
// indexed value satisfies op against bound.
func (e *Engine) scanIndex(account ids.AccountId, collection ids.CollectionId, field ids.FieldId, bound []byte, op Op) (*bitmap.Set, error) {
	prefix := keys.IndexPrefix(account, collection, field)
	result := bitmap.New()

	var scanErr error
	err := e.engine.Scan(prefix, func(key, _ []byte) bool {
		if len(key) < len(prefix)+4 {
			return true
		}
		value := key[len(prefix) : len(key)-4]
		cmp := bytes.Compare(value, bound)

		// Rows arrive in ascending lexicographic order, so an upper-bounded
		// op can stop the instant a row no longer qualifies; a
		// lower-bounded op has no such shortcut and must scan to the end
		// of the field's index.
		switch op {
		case OpEqual:
			if cmp > 0 {
				return false
			}
			if cmp < 0 {
				return true
			}
		case OpLessThan:
			if cmp >= 0 {
				return false
			}
		case OpLessOrEqual:
			if cmp > 0 {
				return false
			}
		case OpGreaterThan:
			if cmp <= 0 {
				return true
			}
		case OpGreaterOrEqual:
			if cmp < 0 {
				return true
			}
		}

		doc, err := keys.ParseIndexDocument(key)
		if err != nil {
			scanErr = err
			return false
		}
		result.Add(doc)
		return true
	})
	if err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return result, nil
}
