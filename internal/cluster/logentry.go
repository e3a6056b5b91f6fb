package cluster

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/raft"
	"github.com/jmapstore/engine/internal/core/ids"
)

// LogEntry is the raw payload shipped by AppendEntries::UpdateLog: one
// commit's (account, collection) footprint and the ChangeId each touched
// collection reached, so a follower can tell whether it is already current
// without fetching the documents themselves.
type LogEntry struct {
	RaftID    ids.RaftId
	Account   ids.AccountId
	ChangeIDs map[ids.CollectionId]ids.ChangeId
}

func encodeLogEntry(e LogEntry) ([]byte, error) {
	return json.Marshal(e)
}

func decodeLogEntry(data []byte) (LogEntry, error) {
	var e LogEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return LogEntry{}, fmt.Errorf("cluster: decode log entry: %w", err)
	}
	return e, nil
}

// toRaftLog adapts a LogEntry to the hashicorp/raft.Log shape its
// LogStore/StableStore implementation expects, so raft-boltdb's durability
// guarantees (fsync per batch, term-ordered keys) can be reused without its
// consensus engine.
func toRaftLog(e LogEntry) (raft.Log, error) {
	data, err := encodeLogEntry(e)
	if err != nil {
		return raft.Log{}, err
	}
	return raft.Log{
		Index: e.RaftID.Index,
		Term:  e.RaftID.Term,
		Type:  raft.LogCommand,
		Data:  data,
	}, nil
}

func fromRaftLog(l *raft.Log) (LogEntry, error) {
	return decodeLogEntry(l.Data)
}
