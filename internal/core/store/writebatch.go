package store

import (
	"github.com/jmapstore/engine/internal/core/changelog"
	"github.com/jmapstore/engine/internal/core/document"
	"github.com/jmapstore/engine/internal/core/ids"
)

// Action discriminates the three shapes a document mutation can take.
type Action uint8

const (
	Insert Action = iota
	Update
	Delete
)

// DocumentChange is one document mutation queued in a WriteBatch.
type DocumentChange struct {
	Action     Action
	Collection ids.CollectionId

	// DocumentID names the target for Update and Delete; ignored for
	// Insert, whose id is assigned by the write pipeline.
	DocumentID ids.DocumentId

	// Doc carries the queued field operations for Insert and Update;
	// ignored for Delete, which only tombstones and releases blobs.
	Doc *document.Document
}

// WriteBatch is the unit of atomic commit: one or more document mutations
// against a single account, plus an optional explicit changelog payload per
// touched collection (synthesized from the document mutations when absent).
type WriteBatch struct {
	Account ids.AccountId

	Documents []DocumentChange

	// Changes overrides the synthesized changelog Change for a collection,
	// used by callers that know a semantic distinction the raw Insert/
	// Update/Delete actions don't carry (e.g. a child-object update).
	Changes map[ids.CollectionId]changelog.Change

	// DefaultLanguage is used for KindText operations that carry no
	// explicit language.
	DefaultLanguage string
}

// CommitResult reports everything a caller needs after a successful commit:
// ids assigned to Insert actions (keyed by their index in WriteBatch.
// Documents), the ChangeId recorded per touched collection, and the Raft
// log id the commit was appended under, if a RaftAppender was configured.
type CommitResult struct {
	AssignedIDs map[int]ids.DocumentId
	ChangeIDs   map[ids.CollectionId]ids.ChangeId
	RaftID      ids.RaftId
}
