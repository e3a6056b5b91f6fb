package store

import (
	"github.com/jmapstore/engine/internal/core/document"
	"github.com/jmapstore/engine/internal/core/fts"
	"github.com/jmapstore/engine/internal/core/ids"
	"github.com/jmapstore/engine/internal/core/keys"
	"github.com/jmapstore/engine/internal/storage/badgerkv"
)

// Purge physically removes a tombstoned document: every row clearOps
// names (typically built by calling orm.Delete against the document's last
// stored snapshot), its blob-list row and the refcounts it held, and its
// membership bit moves from USED_IDS/TOMBSTONED_IDS to FREED_IDS. Called by
// the background tombstone sweeper, never by Commit itself: a document
// stays fully readable-as-tombstoned between Commit's Delete and the sweep
// that eventually calls Purge.
func (w *Writer) Purge(account ids.AccountId, collection ids.CollectionId, documentID ids.DocumentId, clearOps *document.Document) error {
	err := w.engine.Update(func(b *badgerkv.Batch) error {
		bitmaps := newBitmapAccumulator()
		termAssigner := fts.NewAssigner()

		if err := w.applyFieldOps(b, bitmaps, termAssigner, account, collection, documentID, clearOps, w.defaultLanguage); err != nil {
			return err
		}
		if err := w.releaseDocumentBlobs(b, account, collection, documentID); err != nil {
			return err
		}
		if err := b.Delete(keys.BlobList(account, collection, documentID)); err != nil {
			return err
		}

		bitmaps.clear(keys.BitmapUsedIDs(account, collection), documentID)
		bitmaps.clear(keys.BitmapTombstonedIDs(account, collection), documentID)
		bitmaps.set(keys.BitmapFreedIDs(account, collection), documentID)

		return bitmaps.flush(b)
	})
	if err != nil {
		return err
	}

	if assigner, ok := w.assigners.Get(account, collection); ok {
		assigner.NoteFreed(documentID)
	}
	return nil
}
