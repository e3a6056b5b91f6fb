package cluster

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/jmapstore/engine/internal/core/ids"
)

// keys raft-boltdb's StableStore tracks alongside the log itself.
const (
	stableKeyCurrentTerm = "cluster/current_term"
	stableKeyCommitIndex = "cluster/commit_index"
	stableKeyLastApplied = "cluster/last_applied"
)

// LogStore durably persists the replicated log and the small amount of
// term/commit/applied bookkeeping a leader or follower needs across
// restarts. It is a thin, append-aware wrapper over raft-boltdb's BoltStore,
// which already implements hashicorp/raft's Log/LogStore/StableStore
// interfaces with fsync-per-batch durability; only that storage shape is
// reused here, not raft.Raft's consensus loop.
type LogStore struct {
	mu    sync.Mutex
	store *raftboltdb.BoltStore
}

// OpenLogStore opens (creating if absent) the BoltDB file backing a node's
// replicated log under dir.
func OpenLogStore(dir string) (*LogStore, error) {
	store, err := raftboltdb.NewBoltStore(filepath.Join(dir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("cluster: open log store: %w", err)
	}
	return &LogStore{store: store}, nil
}

// Close releases the underlying BoltDB file.
func (s *LogStore) Close() error {
	return s.store.Close()
}

// Append durably stores one LogEntry at its own RaftId position. Entries
// must be appended in strictly increasing (term, index) order within a
// term; this is the leader task's responsibility, not this store's.
func (s *LogStore) Append(e LogEntry) error {
	log, err := toRaftLog(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.StoreLog(&log)
}

// AppendBatch durably stores several entries as one batch.
func (s *LogStore) AppendBatch(entries []LogEntry) error {
	logs := make([]*raft.Log, len(entries))
	for i, e := range entries {
		log, err := toRaftLog(e)
		if err != nil {
			return err
		}
		logs[i] = &log
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.StoreLogs(logs)
}

// Get fetches one entry by its log-wide index, whatever the entry's term;
// ok is false if no entry is stored at index.
func (s *LogStore) Get(index uint64) (LogEntry, bool, error) {
	var log raft.Log
	if err := s.store.GetLog(index, &log); err != nil {
		if err == raft.ErrLogNotFound {
			return LogEntry{}, false, nil
		}
		return LogEntry{}, false, err
	}
	entry, err := fromRaftLog(&log)
	return entry, true, err
}

// Range returns every entry with index in (after, through] in ascending
// order, bounded by maxEntries and maxBytes (whichever is reached first).
// Either bound of zero means unbounded.
func (s *LogStore) Range(after, through uint64, maxEntries int, maxBytes int) ([]LogEntry, error) {
	var out []LogEntry
	var size int
	for idx := after + 1; idx <= through; idx++ {
		entry, ok, err := s.Get(idx)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, entry)
		size += len(entry.ChangeIDs)*16 + 24
		if maxEntries > 0 && len(out) >= maxEntries {
			break
		}
		if maxBytes > 0 && size >= maxBytes {
			break
		}
	}
	return out, nil
}

// LastIndex reports the highest index stored in the log (raft-boltdb
// tracks this as a monotonic log-wide index, across terms).
func (s *LogStore) LastIndex() (uint64, error) {
	return s.store.LastIndex()
}

// FirstIndex reports the lowest index still retained.
func (s *LogStore) FirstIndex() (uint64, error) {
	return s.store.FirstIndex()
}

// DeleteRange removes entries with index in [min, max], used to enforce a
// retention window once every peer has acknowledged past max (see
// DESIGN.md's note on the retention window being a deployment policy).
func (s *LogStore) DeleteRange(min, max uint64) error {
	return s.store.DeleteRange(min, max)
}

// CurrentTerm / SetCurrentTerm persist the node's view of the current Raft
// term across restarts.
func (s *LogStore) CurrentTerm() (uint64, error) {
	return s.getUint64OrZero(stableKeyCurrentTerm)
}

func (s *LogStore) SetCurrentTerm(term uint64) error {
	return s.store.SetUint64([]byte(stableKeyCurrentTerm), term)
}

// CommitIndex / SetCommitIndex persist the highest RaftId this node has
// committed (applied to the document store).
func (s *LogStore) CommitIndex() (uint64, error) {
	return s.getUint64OrZero(stableKeyCommitIndex)
}

func (s *LogStore) SetCommitIndex(index uint64) error {
	return s.store.SetUint64([]byte(stableKeyCommitIndex), index)
}

// LastApplied / SetLastApplied persist the highest index applied to this
// node's own log bookkeeping (distinct from CommitIndex on a follower mid
// document-level catch-up, where entries are held in pending_entries before
// being durably committed).
func (s *LogStore) LastApplied() (uint64, error) {
	return s.getUint64OrZero(stableKeyLastApplied)
}

func (s *LogStore) SetLastApplied(index uint64) error {
	return s.store.SetUint64([]byte(stableKeyLastApplied), index)
}

// getUint64OrZero reads a stable-store counter, treating "never written" the
// same as zero instead of surfacing raft-boltdb's ErrKeyNotFound: every
// counter this store tracks is meaningfully zero before its first write.
func (s *LogStore) getUint64OrZero(key string) (uint64, error) {
	v, err := s.store.GetUint64([]byte(key))
	if err == raftboltdb.ErrKeyNotFound {
		return 0, nil
	}
	return v, err
}

// RaftIDAt resolves the RaftId (term, index) of the entry stored at
// index, or the none id if absent.
func (s *LogStore) RaftIDAt(index uint64) (ids.RaftId, error) {
	entry, ok, err := s.Get(index)
	if err != nil || !ok {
		return ids.RaftIdNone(), err
	}
	return entry.RaftID, nil
}
