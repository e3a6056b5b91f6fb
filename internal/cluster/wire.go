package cluster

import (
	"github.com/jmapstore/engine/internal/core/document"
	"github.com/jmapstore/engine/internal/core/ids"
)

// MessageType tags a frame's payload so the receiver knows which struct to
// decode into; see codec.go for the frame layout.
type MessageType uint8

const (
	MsgBecomeFollower MessageType = iota + 1
	MsgAppendEntriesSynchronize
	MsgAppendEntriesUpdateLog
	MsgAppendEntriesUpdateStore

	MsgBecomeFollowerResponse
	MsgSynchronizeLog
	MsgNeedUpdates
	MsgContinue
	MsgNone

	// MsgUpdatePeers, MsgVote, MsgPong are outside this package's scope
	// (leader election and cluster membership RPCs); a replication task
	// that receives one logs it and otherwise ignores it.
	MsgUpdatePeers
	MsgVote
	MsgPong
)

// BecomeFollower tells a peer to step down (or start following) as of term,
// carrying the sender's last known log position.
type BecomeFollower struct {
	Term    uint64
	LastLog ids.RaftId
}

// BecomeFollowerResponse answers BecomeFollower. Success is false, or
// Term greater than the sender's, means the sender must step down instead.
type BecomeFollowerResponse struct {
	Term    uint64
	Success bool
}

// Synchronize asks the peer which of its log entries match the leader's
// history up to LastLog.
type Synchronize struct {
	LastLog ids.RaftId
}

// SynchronizeLog answers Synchronize with the highest entry the follower
// holds that is <= the request's LastLog. A divergent Matched (one the
// leader never issued at that position) is fatal for that peer.
type SynchronizeLog struct {
	Matched ids.RaftId
}

// UpdateLog ships a contiguous batch of raw log entries ending at LastLog.
type UpdateLog struct {
	LastLog ids.RaftId
	Entries []LogEntry
}

// UpdateCollection names one (account, collection) pair a follower needs
// refreshed, and the change id it has already applied (if any).
type UpdateCollection struct {
	Account      ids.AccountId
	Collection   ids.CollectionId
	FromChangeID ids.ChangeId
	HasChangeID  bool
}

// NeedUpdates is a follower's reply to UpdateLog when one or more referenced
// collections are behind; the leader must switch to document-level catch-up
// for exactly these pairs before resuming log shipping.
type NeedUpdates struct {
	Collections []UpdateCollection
}

// Continue is a follower's reply to UpdateLog when every referenced
// collection was already caught up, so the entries were committed directly.
type Continue struct{}

// None means the peer is unreachable; the leader task waits on a liveness
// watcher and restarts at BecomeLeader.
type None struct{}

// UpdateStore carries one batch of document-level catch-up Changes for a
// single (account, collection) pair.
type UpdateStore struct {
	Account    ids.AccountId
	Collection ids.CollectionId
	Changes    []Change
}

// ChangeKind discriminates the variant carried by a Change.
type ChangeKind uint8

const (
	ChangeInsertMail ChangeKind = iota + 1
	ChangeUpdateMail
	ChangeUpdateMailbox
	ChangeInsertChange
	ChangeDelete
	ChangeCommit
)

// Change is one entry of a document-level catch-up stream. Exactly the
// fields relevant to Kind are populated; the rest are left zero.
type Change struct {
	Kind ChangeKind

	// InsertMail / UpdateMail
	JmapID     ids.JmapId
	Keywords   []TagRef
	Mailboxes  []TagRef
	ReceivedAt int64 // unix seconds, InsertMail only
	Body       []byte // snappy-compressed, 4-byte big-endian length prefix (compressBody), InsertMail only

	// UpdateMailbox
	Mailbox []byte // opaque mailbox identity blob

	// InsertChange
	ChangeID   ids.ChangeId
	EntryBytes []byte

	// Delete
	DocumentID ids.DocumentId
}

// TagRef is a wire-portable form of document.Tag.
type TagRef struct {
	Kind document.TagKind
	ID   ids.TagId
	Text string
}

func tagRefFrom(t document.Tag) TagRef {
	return TagRef{Kind: t.Kind, ID: t.ID, Text: t.Text}
}

func (r TagRef) toTag() document.Tag {
	return document.Tag{Kind: r.Kind, ID: r.ID, Text: r.Text}
}
