package cluster

import (
	"sync"

	"github.com/jmapstore/engine/internal/core/bitmap"
	"github.com/jmapstore/engine/internal/core/ids"
	"github.com/jmapstore/engine/internal/core/keys"
	"github.com/jmapstore/engine/internal/storage/badgerkv"
)

// LogAppender implements store.RaftAppender: once per commit it records the
// new ChangeId each touched collection reached and durably appends that as
// one LogEntry, handing back the RaftId a leader task will later ship to
// followers. store.Writer's bitmap of touched collections packs each
// ids.CollectionId as a DocumentId, the same abuse of bitmap.Set as a small
// integer set that store.Writer itself uses to build it.
type LogAppender struct {
	engine *badgerkv.Engine
	logs   *LogStore

	mu        sync.Mutex
	term      uint64
	nextIndex uint64

	onAppend func(ids.RaftId) // notifies the local commit-index watcher
}

// NewLogAppender seeds a LogAppender from the log store's persisted term and
// last index, so a restarted leader resumes numbering where it left off.
func NewLogAppender(engine *badgerkv.Engine, logs *LogStore) (*LogAppender, error) {
	term, err := logs.CurrentTerm()
	if err != nil {
		return nil, err
	}
	last, err := logs.LastIndex()
	if err != nil {
		return nil, err
	}
	return &LogAppender{engine: engine, logs: logs, term: term, nextIndex: last + 1}, nil
}

// OnAppend registers a callback fired after each successful append, used by
// the leader task's commit-index watcher (see leader.go's Wait state).
func (a *LogAppender) OnAppend(fn func(ids.RaftId)) { a.onAppend = fn }

// AppendItem satisfies store.RaftAppender.
func (a *LogAppender) AppendItem(account ids.AccountId, collections *bitmap.Set) (ids.RaftId, error) {
	changeIDs := make(map[ids.CollectionId]ids.ChangeId)
	var scanErr error
	collections.ForEach(func(d ids.DocumentId) bool {
		collection := ids.CollectionId(d)
		changeID, err := a.latestChangeID(account, collection)
		if err != nil {
			scanErr = err
			return false
		}
		changeIDs[collection] = changeID
		return true
	})
	if scanErr != nil {
		return ids.RaftId{}, scanErr
	}

	a.mu.Lock()
	index := a.nextIndex
	term := a.term
	a.nextIndex++
	a.mu.Unlock()

	raftID := ids.RaftId{Term: term, Index: index}
	entry := LogEntry{RaftID: raftID, Account: account, ChangeIDs: changeIDs}
	if err := a.logs.Append(entry); err != nil {
		a.mu.Lock()
		a.nextIndex--
		a.mu.Unlock()
		return ids.RaftId{}, err
	}

	if a.onAppend != nil {
		a.onAppend(raftID)
	}
	return raftID, nil
}

// latestChangeID scans the collection's changelog for the highest persisted
// ChangeId. It always finds one: AppendItem is only called once the local
// commit that touched this collection has already landed, so at least that
// commit's own changelog row exists.
func (a *LogAppender) latestChangeID(account ids.AccountId, collection ids.CollectionId) (ids.ChangeId, error) {
	var max ids.ChangeId
	err := a.engine.Scan(keys.ChangelogPrefix(account, collection), func(key, _ []byte) bool {
		id, err := keys.ParseChangelogChangeID(key)
		if err != nil {
			return true
		}
		if id > max {
			max = id
		}
		return true
	})
	return max, err
}

// currentTerm reports the term this appender is minting entries under.
func (a *LogAppender) currentTerm() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.term
}

// becomeTerm advances the appender to a new term (on election), persisting
// it and resetting nothing else: index numbering is log-wide, not reset
// per term, matching RaftId.Less's (term, index) lexicographic order.
func (a *LogAppender) becomeTerm(term uint64) error {
	a.mu.Lock()
	a.term = term
	a.mu.Unlock()
	return a.logs.SetCurrentTerm(term)
}

// lastIndex reports the highest index appended so far, for a liveness or
// commit-index watcher to compare against.
func (a *LogAppender) lastIndex() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nextIndex - 1
}
