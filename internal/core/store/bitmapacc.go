package store

import (
	"github.com/jmapstore/engine/internal/core/bitmap"
	"github.com/jmapstore/engine/internal/core/ids"
	"github.com/jmapstore/engine/internal/storage/badgerkv"
)

// bitmapAccumulator collects set/clear operations against bitmap keys
// across an entire commit before they are merged into storage, so a
// document id that is set and cleared against the same key within one
// batch collapses to a single net operation instead of two competing
// writes.
type bitmapAccumulator struct {
	changes map[string]*bitmap.ChangeSet
}

func newBitmapAccumulator() *bitmapAccumulator {
	return &bitmapAccumulator{changes: make(map[string]*bitmap.ChangeSet)}
}

func (a *bitmapAccumulator) entry(key []byte) *bitmap.ChangeSet {
	k := string(key)
	cs, ok := a.changes[k]
	if !ok {
		cs = &bitmap.ChangeSet{}
		a.changes[k] = cs
	}
	return cs
}

func (a *bitmapAccumulator) set(key []byte, doc ids.DocumentId) {
	cs := a.entry(key)
	cs.Set = append(cs.Set, doc)
}

func (a *bitmapAccumulator) clear(key []byte, doc ids.DocumentId) {
	cs := a.entry(key)
	cs.Clear = append(cs.Clear, doc)
}

// flush applies every accumulated change set to its bitmap key within b.
func (a *bitmapAccumulator) flush(b *badgerkv.Batch) error {
	for k, cs := range a.changes {
		if err := b.MergeBitmap([]byte(k), *cs); err != nil {
			return err
		}
	}
	return nil
}
