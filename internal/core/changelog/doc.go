// Package changelog implements the per-(account, collection) monotonic
// change log: recording insert/update/child-update/delete document sets
// under a ChangeId, and the on-disk binary encoding for entries and
// compaction snapshots described in the persisted layout.
package changelog
