// Package bitmap wraps a compressed sorted integer set used for every
// membership family the storage engine persists: tag bitmaps, term
// bitmaps, USED_IDS/TOMBSTONED_IDS/FREED_IDS, and query-time document
// sets. Mutations are expressed as a single positive/negative changeset so
// a document id can be set and cleared within one batch without the two
// operations flapping against each other.
package bitmap
