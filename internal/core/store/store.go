package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jmapstore/engine/internal/core/bitmap"
	"github.com/jmapstore/engine/internal/core/blobstore"
	"github.com/jmapstore/engine/internal/core/changelog"
	"github.com/jmapstore/engine/internal/core/document"
	"github.com/jmapstore/engine/internal/core/domain"
	"github.com/jmapstore/engine/internal/core/fts"
	"github.com/jmapstore/engine/internal/core/idassign"
	"github.com/jmapstore/engine/internal/core/ids"
	"github.com/jmapstore/engine/internal/core/keys"
	"github.com/jmapstore/engine/internal/storage/badgerkv"
)

// maxTokenizedWordLength bounds how long a tokenized-mode word may be
// before it is dropped from the bitmap index, guarding against a single
// pathological run of non-space characters blowing up the text bitmap
// family with a one-off key nobody will ever query for.
const maxTokenizedWordLength = 64

// RaftAppender is the hook the write pipeline calls, once per commit, to
// record a log entry describing which (account, collections) changed.
// Implemented by the replication core; left nil, Commit simply skips it
// (e.g. for an embedded, non-replicated instance).
type RaftAppender interface {
	AppendItem(account ids.AccountId, collections *bitmap.Set) (ids.RaftId, error)
}

// Writer turns WriteBatches into atomic KV commits against engine.
type Writer struct {
	engine *badgerkv.Engine
	raft   RaftAppender

	assigners *idassign.Registry

	defaultLanguage string
}

// NewWriter returns a Writer backed by engine. raft may be nil.
func NewWriter(engine *badgerkv.Engine, raft RaftAppender, defaultLanguage string) *Writer {
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	return &Writer{
		engine:          engine,
		raft:            raft,
		assigners:       idassign.NewRegistry(),
		defaultLanguage: defaultLanguage,
	}
}

// Commit applies wb atomically: id assignment, field-operation
// application, blob handling, and changelog. If a RaftAppender is
// configured, one Raft log entry is appended after the KV transaction has
// committed; an append error is returned, but the committed rows stay.
// Document/ChangeId assignment happens once, before the retryable
// KV transaction, so a conflict retry re-applies the same assignment
// rather than minting a second one; a commit that never durably lands
// simply burns the ids it reserved, the same gap behaviour as a rolled
// back SQL sequence.
func (w *Writer) Commit(wb WriteBatch) (CommitResult, error) {
	for _, dc := range wb.Documents {
		if dc.Action != Delete && dc.Doc != nil {
			if err := dc.Doc.Validate(); err != nil {
				return CommitResult{}, err
			}
		}
	}

	plan, err := w.plan(wb)
	if err != nil {
		return CommitResult{}, err
	}

	err = w.engine.Update(func(b *badgerkv.Batch) error {
		return w.apply(b, wb, plan)
	})
	if err != nil {
		return CommitResult{}, err
	}

	if w.raft != nil {
		touched := bitmap.New()
		for collection := range plan.changes {
			touched.Add(ids.DocumentId(collection))
		}
		raftID, err := w.raft.AppendItem(wb.Account, touched)
		if err != nil {
			return CommitResult{}, err
		}
		plan.result.RaftID = raftID
	}

	return plan.result, nil
}

// commitPlan is everything decided before the KV transaction opens:
// assigned document/change ids and the changelog payload per collection.
type commitPlan struct {
	assignedIDs map[int]idassign.Assignment
	changeIDs   map[ids.CollectionId]ids.ChangeId
	changes     map[ids.CollectionId]changelog.Change
	result      CommitResult
}

func (w *Writer) plan(wb WriteBatch) (*commitPlan, error) {
	plan := &commitPlan{
		assignedIDs: make(map[int]idassign.Assignment),
		changeIDs:   make(map[ids.CollectionId]ids.ChangeId),
		changes:     make(map[ids.CollectionId]changelog.Change),
	}

	synthesized := make(map[ids.CollectionId]changelog.Change)
	for i, dc := range wb.Documents {
		change := synthesized[dc.Collection]
		switch dc.Action {
		case Insert:
			assigner, err := w.assignerFor(wb.Account, dc.Collection)
			if err != nil {
				return nil, err
			}
			assignment, err := assigner.AssignID()
			if err != nil {
				return nil, err
			}
			plan.assignedIDs[i] = assignment
			change.Inserts = append(change.Inserts, assignment.ID)
		case Update:
			change.Updates = append(change.Updates, dc.DocumentID)
		case Delete:
			change.Deletes = append(change.Deletes, dc.DocumentID)
		default:
			return nil, domain.New(domain.KindInvalidArgument, "store.Commit", fmt.Sprintf("unknown action %d", dc.Action))
		}
		synthesized[dc.Collection] = change
	}

	for collection, change := range synthesized {
		if explicit, ok := wb.Changes[collection]; ok {
			change = explicit
		}
		if change.IsEmpty() {
			continue
		}
		assigner, err := w.assignerFor(wb.Account, collection)
		if err != nil {
			return nil, err
		}
		changeID, err := assigner.AssignChangeID()
		if err != nil {
			return nil, err
		}
		plan.changeIDs[collection] = changeID
		plan.changes[collection] = change
	}

	plan.result = CommitResult{
		AssignedIDs: make(map[int]ids.DocumentId, len(plan.assignedIDs)),
		ChangeIDs:   plan.changeIDs,
	}
	for i, a := range plan.assignedIDs {
		plan.result.AssignedIDs[i] = a.ID
	}
	return plan, nil
}

// assignerFor returns the cached id assigner for (account, collection),
// seeding it from currently-persisted bitmaps/changelog on first use. The
// seed read runs outside any single commit's transaction: the write
// pipeline assumes one in-process Writer is the sole committer for a given
// (account, collection) at a time (the Raft leader applies its log
// serially), so the in-memory assigner is authoritative once seeded.
func (w *Writer) assignerFor(account ids.AccountId, collection ids.CollectionId) (*idassign.Assigner, error) {
	return w.assigners.GetOrCreate(account, collection, func() (*idassign.Assigner, error) {
		usedIDs, err := w.readBitmap(keys.BitmapUsedIDs(account, collection))
		if err != nil {
			return nil, err
		}
		freedIDs, err := w.readBitmap(keys.BitmapFreedIDs(account, collection))
		if err != nil {
			return nil, err
		}
		lastChange, err := w.lastChangeID(account, collection)
		if err != nil {
			return nil, err
		}
		return idassign.New(usedIDs, freedIDs, lastChange), nil
	})
}

func (w *Writer) readBitmap(key []byte) (*bitmap.Set, error) {
	raw, err := w.engine.Get(key)
	if err != nil {
		if domain.Is(err, domain.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	set, err := bitmap.FromBytes(raw)
	if err != nil {
		return nil, domain.Wrap(domain.KindDataCorruption, "store.readBitmap", "decode stored bitmap", err)
	}
	return set, nil
}

// lastChangeID finds the highest ChangeId already recorded for (account,
// collection) by scanning its changelog prefix once. This only runs the
// first time a collection is touched in a process's lifetime (the result
// is cached in the Assigner afterwards), so a linear scan is an acceptable
// trade for not needing a dedicated "next change id" key family.
func (w *Writer) lastChangeID(account ids.AccountId, collection ids.CollectionId) (ids.ChangeId, error) {
	var last ids.ChangeId
	err := w.engine.Scan(keys.ChangelogPrefix(account, collection), func(key, _ []byte) bool {
		if id, err := keys.ParseChangelogChangeID(key); err == nil && id > last {
			last = id
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	return last, nil
}

// apply performs every KV write of one commit attempt against b. It may run
// more than once per Commit call if the underlying transaction conflicts.
func (w *Writer) apply(b *badgerkv.Batch, wb WriteBatch, plan *commitPlan) error {
	bitmaps := newBitmapAccumulator()
	termAssigner := fts.NewAssigner()

	for i, dc := range wb.Documents {
		switch dc.Action {
		case Insert:
			assignment := plan.assignedIDs[i]
			usedKey := keys.BitmapUsedIDs(wb.Account, dc.Collection)
			bitmaps.set(usedKey, assignment.ID)
			if assignment.Reused {
				bitmaps.clear(keys.BitmapFreedIDs(wb.Account, dc.Collection), assignment.ID)
			}
			if err := w.applyFieldOps(b, bitmaps, termAssigner, wb.Account, dc.Collection, assignment.ID, dc.Doc, wb.DefaultLanguage); err != nil {
				return err
			}
		case Update:
			if err := w.applyFieldOps(b, bitmaps, termAssigner, wb.Account, dc.Collection, dc.DocumentID, dc.Doc, wb.DefaultLanguage); err != nil {
				return err
			}
		case Delete:
			bitmaps.set(keys.BitmapTombstonedIDs(wb.Account, dc.Collection), dc.DocumentID)
			if err := w.releaseDocumentBlobs(b, wb.Account, dc.Collection, dc.DocumentID); err != nil {
				return err
			}
		}
	}

	if err := bitmaps.flush(b); err != nil {
		return err
	}

	for collection, change := range plan.changes {
		changeID := plan.changeIDs[collection]
		key := keys.Changelog(wb.Account, collection, changeID)
		if err := b.Put(key, changelog.Encode(change)); err != nil {
			return err
		}
	}

	return nil
}

func (w *Writer) releaseDocumentBlobs(b *badgerkv.Batch, account ids.AccountId, collection ids.CollectionId, document ids.DocumentId) error {
	hashes, err := loadBlobList(b, keys.BlobList(account, collection, document))
	if err != nil {
		return err
	}
	for _, hash := range hashes {
		if _, err := blobstore.Release(b, hash); err != nil {
			return err
		}
	}
	return nil
}

// applyFieldOps writes/clears the stored-value, index, bitmap, term-index,
// and blob rows for one document's queued operations.
func (w *Writer) applyFieldOps(b *badgerkv.Batch, bitmaps *bitmapAccumulator, termAssigner *fts.Assigner, account ids.AccountId, collection ids.CollectionId, document ids.DocumentId, doc *document.Document, defaultLanguage string) error {
	if doc == nil {
		return nil
	}

	var blobAdds, blobRemoves [][]byte

	for _, op := range doc.Ops {
		switch op.Kind {
		case document.KindText:
			language := op.Language
			if language == "" {
				language = defaultLanguage
			}
			if err := w.applyText(b, bitmaps, termAssigner, account, collection, document, op, language); err != nil {
				return err
			}
		case document.KindNumber:
			if err := w.applyNumber(b, account, collection, document, op); err != nil {
				return err
			}
		case document.KindBinary:
			if err := w.applyBinary(b, account, collection, document, op, &blobAdds, &blobRemoves); err != nil {
				return err
			}
		case document.KindTag:
			w.applyTag(bitmaps, account, collection, document, op)
		}
	}

	return updateBlobList(b, account, collection, document, blobAdds, blobRemoves)
}

func valueRowKey(account ids.AccountId, collection ids.CollectionId, document ids.DocumentId, op document.Operation) []byte {
	return keys.Value(account, collection, document, op.Field)
}

func (w *Writer) applyText(b *badgerkv.Batch, bitmaps *bitmapAccumulator, termAssigner *fts.Assigner, account ids.AccountId, collection ids.CollectionId, document ids.DocumentId, op document.Operation, language string) error {
	valueKey := valueRowKey(account, collection, document, op)
	if op.Options.Clear {
		if err := b.Delete(valueKey); err != nil {
			return err
		}
	} else if op.Options.Store {
		if err := b.Put(valueKey, []byte(op.Text)); err != nil {
			return err
		}
	}

	if op.Options.Sort {
		idxKey := keys.Index(account, collection, op.Field, keys.SortableText(op.Text), document)
		if op.Options.Clear {
			if err := b.Delete(idxKey); err != nil {
				return err
			}
		} else if err := b.Put(idxKey, nil); err != nil {
			return err
		}
	}

	switch op.Options.TextMode {
	case document.TextKeyword:
		word := fts.Normalize(op.Text)
		if word == "" {
			return nil
		}
		key := keys.BitmapText(account, collection, op.Field, word)
		if op.Options.Clear {
			bitmaps.clear(key, document)
		} else {
			bitmaps.set(key, document)
		}
		return nil

	case document.TextTokenized:
		for _, tok := range fts.Tokenize(op.Text, language) {
			if len(tok.Word) > maxTokenizedWordLength {
				continue
			}
			key := keys.BitmapText(account, collection, op.Field, tok.Word)
			if op.Options.Clear {
				bitmaps.clear(key, document)
			} else {
				bitmaps.set(key, document)
			}
		}
		return nil

	case document.TextFullText:
		result, err := fts.Index(b, termAssigner, op.Text, language)
		if err != nil {
			return domain.Wrap(domain.KindSerialize, "store.applyText", "build term index", err)
		}
		for _, term := range result.ExactTermIDs {
			key := keys.BitmapTermExact(account, collection, op.Field, term)
			if op.Options.Clear {
				bitmaps.clear(key, document)
			} else {
				bitmaps.set(key, document)
			}
		}
		for _, term := range result.StemmedTermIDs {
			key := keys.BitmapTermStemmed(account, collection, op.Field, term)
			if op.Options.Clear {
				bitmaps.clear(key, document)
			} else {
				bitmaps.set(key, document)
			}
		}
		posKey := keys.PositionalIndex(account, collection, document, op.Field, op.Options.BlobIndex)
		if op.Options.Clear {
			return b.Delete(posKey)
		}
		return b.Put(posKey, result.Positions)
	}

	return nil
}

func (w *Writer) applyNumber(b *badgerkv.Batch, account ids.AccountId, collection ids.CollectionId, document ids.DocumentId, op document.Operation) error {
	valueKey := valueRowKey(account, collection, document, op)
	if op.Options.Clear {
		if err := b.Delete(valueKey); err != nil {
			return err
		}
	} else if op.Options.Store {
		if err := b.Put(valueKey, encodeFloat64(op.Number)); err != nil {
			return err
		}
	}

	if op.Options.Sort {
		idxKey := keys.Index(account, collection, op.Field, keys.SortableFloat64(op.Number), document)
		if op.Options.Clear {
			return b.Delete(idxKey)
		}
		return b.Put(idxKey, nil)
	}
	return nil
}

func (w *Writer) applyBinary(b *badgerkv.Batch, account ids.AccountId, collection ids.CollectionId, document ids.DocumentId, op document.Operation, blobAdds, blobRemoves *[][]byte) error {
	valueKey := valueRowKey(account, collection, document, op)

	if op.Options.StoreAsBlob {
		if op.Options.Clear {
			oldHash, err := b.Get(valueKey)
			if err != nil {
				if domain.Is(err, domain.KindNotFound) {
					return nil
				}
				return err
			}
			*blobRemoves = append(*blobRemoves, append([]byte(nil), oldHash...))
			return b.Delete(valueKey)
		}
		hash, err := blobstore.Store(b, op.Bytes)
		if err != nil {
			return err
		}
		*blobAdds = append(*blobAdds, hash)
		return b.Put(valueKey, hash)
	}

	if op.Options.Clear {
		if err := b.Delete(valueKey); err != nil {
			return err
		}
	} else if op.Options.Store {
		if err := b.Put(valueKey, op.Bytes); err != nil {
			return err
		}
	}

	if op.Options.Sort {
		idxKey := keys.Index(account, collection, op.Field, op.Bytes, document)
		if op.Options.Clear {
			return b.Delete(idxKey)
		}
		return b.Put(idxKey, nil)
	}
	return nil
}

func (w *Writer) applyTag(bitmaps *bitmapAccumulator, account ids.AccountId, collection ids.CollectionId, document ids.DocumentId, op document.Operation) {
	var key []byte
	switch op.Tag.Kind {
	case document.TagStatic:
		key = keys.BitmapTagStatic(account, collection, op.Field, op.Tag.ID)
	case document.TagNumeric:
		key = keys.BitmapTagID(account, collection, op.Field, op.Tag.ID)
	case document.TagText:
		key = keys.BitmapTagText(account, collection, op.Field, op.Tag.Text)
	default:
		return
	}
	if op.Options.Clear {
		bitmaps.clear(key, document)
	} else {
		bitmaps.set(key, document)
	}
}

func encodeFloat64(v float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}
