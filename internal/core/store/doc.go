// Package store implements the write pipeline: it turns a WriteBatch of
// document mutations into the full set of KV writes that materialise a
// document (stored values, secondary index rows, bitmap memberships, the
// term index, blob references, and a changelog entry), committing all of
// them atomically. Document and change id assignment and tombstoning live
// here too. The hook for appending a matching Raft log entry is called
// after the KV transaction has committed; that append is not part of the
// atomic write.
package store
