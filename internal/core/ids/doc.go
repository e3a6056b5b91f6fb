// Package ids defines the scalar identifier types shared across the storage
// and replication engine: account, collection, document, field, tag, term
// and change ids, plus the composite JMAP and Raft identifiers.
//
// @design DS-0101
package ids
