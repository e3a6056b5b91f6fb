// Package badgerkv implements the document storage engine's KV back-end on
// top of Badger: stored values, secondary indexes, every bitmap family,
// the changelog, and blobs all live in one Badger instance, keyed by the
// family-tagged layouts in internal/core/keys.
//
// Bitmap and reference-count mutations are applied as a read-modify-write
// inside the same Badger transaction as the rest of a write batch, with
// conflict detection enabled so concurrent batches touching the same key
// are serialised by Badger's optimistic concurrency control rather than a
// hand-rolled lock; Update retries a bounded number of times on conflict.
package badgerkv
