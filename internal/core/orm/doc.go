// Package orm maps a schema's typed properties to a document's field
// operations: Insert emits the initial set of ops for a new object, Merge
// diffs two snapshots into the minimal set of index/tag updates, and
// Delete clears everything a snapshot previously contributed. Every
// object's full property map is additionally serialised into the
// reserved snapshot field so it can be read back without replaying
// indexes.
//
// Schemas (which properties exist, which are required, which are indexed
// or tagged, and under what field id) live above this package, one per
// JMAP collection (Mail, Mailbox, Thread, ...); orm itself is
// schema-agnostic, parameterised over the caller's property enum.
package orm
