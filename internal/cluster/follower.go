package cluster

import (
	"log/slog"
	"sync"

	"github.com/jmapstore/engine/internal/core/ids"
)

// StoreApplier applies one UpdateStore batch of document-level catch-up
// Changes to the local document store.
type StoreApplier interface {
	ApplyChanges(account ids.AccountId, collection ids.CollectionId, changes []Change) error
}

// LogApplier is the follower-side counterpart of LogAppender: it reports
// per-collection progress and durably commits entries once they are known
// safe to apply (either immediately, or after document-level catch-up has
// closed the gap UpdateLog found).
type LogApplier interface {
	// LastChangeID reports the highest ChangeId this follower has applied
	// for (account, collection); ok is false if the pair has never been
	// touched.
	LastChangeID(account ids.AccountId, collection ids.CollectionId) (id ids.ChangeId, ok bool)
	// CommitEntries durably appends entries to this follower's own log and
	// advances its change watchers.
	CommitEntries(entries []LogEntry) error
}

// Follower is the single task draining one peer connection's request
// stream, per spec §4.7's "Follower side" paragraph: it tracks pending_entries
// (log entries held back pending document-level catch-up), commit_id (the
// leader's last_log as of the most recent Synchronize, or of the last
// UpdateLog committed directly), and whether it is
// currently up to date.
type Follower struct {
	logs       *LogStore
	store      StoreApplier
	logApplier LogApplier
	logger     *slog.Logger

	mu             sync.Mutex
	term           uint64
	commitID       ids.RaftId
	pendingEntries []LogEntry
	upToDate       bool
}

// NewFollower builds a follower task. store and logApplier are supplied by
// the server layer that owns the document store and its change-id
// bookkeeping; this package only drives the protocol.
func NewFollower(logs *LogStore, store StoreApplier, logApplier LogApplier, logger *slog.Logger) *Follower {
	if logger == nil {
		logger = slog.Default()
	}
	return &Follower{logs: logs, store: store, logApplier: logApplier, logger: logger, upToDate: true}
}

// Serve drains c until it errors or closes, dispatching one request at a
// time; replication is strictly request/response, so no concurrent
// dispatch is needed per connection.
func (f *Follower) Serve(c *Conn) {
	defer c.Close()
	for {
		msgType, body, err := c.Receive()
		if err != nil {
			return
		}
		if !f.dispatch(c, msgType, body) {
			return
		}
	}
}

func (f *Follower) dispatch(c *Conn, msgType MessageType, body []byte) bool {
	switch msgType {
	case MsgBecomeFollower:
		req, err := decodePayload[BecomeFollower](body)
		if err != nil {
			return false
		}
		return f.handleBecomeFollower(c, req)

	case MsgAppendEntriesSynchronize:
		req, err := decodePayload[Synchronize](body)
		if err != nil {
			return false
		}
		return f.handleSynchronize(c, req)

	case MsgAppendEntriesUpdateLog:
		req, err := decodePayload[UpdateLog](body)
		if err != nil {
			return false
		}
		return f.handleUpdateLog(c, req)

	case MsgAppendEntriesUpdateStore:
		req, err := decodePayload[UpdateStore](body)
		if err != nil {
			return false
		}
		return f.handleUpdateStore(c, req)

	default:
		f.logger.Debug("cluster: follower ignoring unexpected message", "type", msgType)
		return true
	}
}

func (f *Follower) handleBecomeFollower(c *Conn, req BecomeFollower) bool {
	f.mu.Lock()
	if req.Term < f.term {
		term := f.term
		f.mu.Unlock()
		return c.Send(MsgBecomeFollowerResponse, BecomeFollowerResponse{Term: term, Success: false}) == nil
	}
	f.term = req.Term
	f.mu.Unlock()
	return c.Send(MsgBecomeFollowerResponse, BecomeFollowerResponse{Term: req.Term, Success: true}) == nil
}

func (f *Follower) handleSynchronize(c *Conn, req Synchronize) bool {
	f.mu.Lock()
	f.commitID = req.LastLog
	f.mu.Unlock()

	last, err := f.logs.LastIndex()
	if err != nil {
		return false
	}
	if last > req.LastLog.Index {
		last = req.LastLog.Index
	}
	matched := ids.RaftIdNone()
	if last > 0 {
		id, err := f.logs.RaftIDAt(last)
		if err != nil {
			return false
		}
		matched = id
	}
	return c.Send(MsgSynchronizeLog, SynchronizeLog{Matched: matched}) == nil
}

func (f *Follower) handleUpdateLog(c *Conn, req UpdateLog) bool {
	var needed []UpdateCollection
	seen := make(map[ids.CollectionId]bool)
	for _, entry := range req.Entries {
		for collection := range entry.ChangeIDs {
			if seen[collection] {
				continue
			}
			last, ok := f.logApplier.LastChangeID(entry.Account, collection)
			want := entry.ChangeIDs[collection]
			if !ok || last < want {
				seen[collection] = true
				needed = append(needed, UpdateCollection{
					Account:      entry.Account,
					Collection:   collection,
					FromChangeID: last,
					HasChangeID:  ok,
				})
			}
		}
	}

	f.mu.Lock()
	if len(needed) > 0 {
		f.pendingEntries = append(f.pendingEntries, req.Entries...)
		f.upToDate = false
		f.mu.Unlock()
		return c.Send(MsgNeedUpdates, NeedUpdates{Collections: needed}) == nil
	}
	f.mu.Unlock()

	if err := f.logApplier.CommitEntries(req.Entries); err != nil {
		f.logger.Error("cluster: commit entries failed", "error", err)
		return false
	}
	f.mu.Lock()
	f.commitID = req.LastLog
	f.mu.Unlock()
	return c.Send(MsgContinue, Continue{}) == nil
}

func (f *Follower) handleUpdateStore(c *Conn, req UpdateStore) bool {
	isCommit := len(req.Changes) > 0 && req.Changes[len(req.Changes)-1].Kind == ChangeCommit
	applyable := req.Changes
	if isCommit {
		applyable = req.Changes[:len(req.Changes)-1]
	}

	if len(applyable) > 0 {
		if err := f.store.ApplyChanges(req.Account, req.Collection, applyable); err != nil {
			f.logger.Error("cluster: apply catch-up changes failed", "error", err)
			return false
		}
	}

	if isCommit {
		f.mu.Lock()
		pending := f.pendingEntries
		f.pendingEntries = nil
		f.mu.Unlock()

		if len(pending) > 0 {
			if err := f.logApplier.CommitEntries(pending); err != nil {
				f.logger.Error("cluster: commit pending entries failed", "error", err)
				return false
			}
		}

		f.mu.Lock()
		if len(pending) > 0 && pending[len(pending)-1].RaftID == f.commitID {
			f.upToDate = true
		}
		f.mu.Unlock()
	}

	return c.Send(MsgContinue, Continue{}) == nil
}

// UpToDate reports whether this follower believes it has no outstanding
// document-level catch-up in flight.
func (f *Follower) UpToDate() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upToDate
}
