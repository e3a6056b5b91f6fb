package replication

import (
	"os"
	"testing"

	"github.com/jmapstore/engine/internal/cluster"
	"github.com/jmapstore/engine/internal/core/ids"
	"github.com/jmapstore/engine/internal/core/keys"
	"github.com/jmapstore/engine/internal/storage/badgerkv"
)

func openTestAdapter(t *testing.T) (*Adapter, *badgerkv.Engine, *cluster.LogStore) {
	t.Helper()
	kvDir, err := os.MkdirTemp("", "jmapstore-replication-kv-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(kvDir) })

	cfg := badgerkv.DefaultConfig(kvDir)
	cfg.GCInterval = "1h"
	engine, err := badgerkv.Open(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { engine.Close() })

	logDir, err := os.MkdirTemp("", "jmapstore-replication-log-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(logDir) })

	logs, err := cluster.OpenLogStore(logDir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { logs.Close() })

	return NewAdapter(engine, logs), engine, logs
}

func TestAdapterLastChangeIDUnknownPair(t *testing.T) {
	a, _, _ := openTestAdapter(t)
	if _, ok := a.LastChangeID(1, 4); ok {
		t.Fatal("expected ok=false for an untouched (account, collection) pair")
	}
}

func TestAdapterApplyChangesReplaysOpaqueEntries(t *testing.T) {
	a, _, _ := openTestAdapter(t)

	account, collection := ids.AccountId(1), ids.CollectionId(4)
	changes := []cluster.Change{
		{Kind: cluster.ChangeInsertChange, ChangeID: 5, EntryBytes: []byte("entry-5")},
		{Kind: cluster.ChangeInsertChange, ChangeID: 9, EntryBytes: []byte("entry-9")},
		{Kind: cluster.ChangeCommit},
	}
	if err := a.ApplyChanges(account, collection, changes); err != nil {
		t.Fatal(err)
	}

	id, ok := a.LastChangeID(account, collection)
	if !ok || id != 9 {
		t.Fatalf("LastChangeID = (%d, %v), want (9, true)", id, ok)
	}

	key := keys.Changelog(account, collection, 5)
	got, err := a.engine.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "entry-5" {
		t.Fatalf("replayed entry = %q, want %q", got, "entry-5")
	}
}

func TestAdapterApplyChangesRejectsUnregisteredMailKind(t *testing.T) {
	a, _, _ := openTestAdapter(t)
	err := a.ApplyChanges(1, 4, []cluster.Change{{Kind: cluster.ChangeInsertMail}})
	if err == nil {
		t.Fatal("expected an error for a Mail-shaped change with no registered schema")
	}
}

func TestAdapterCommitEntriesAppendsToLog(t *testing.T) {
	a, _, logs := openTestAdapter(t)
	entries := []cluster.LogEntry{
		{RaftID: ids.RaftId{Term: 1, Index: 1}, Account: 1, ChangeIDs: map[ids.CollectionId]ids.ChangeId{4: 1}},
		{RaftID: ids.RaftId{Term: 1, Index: 2}, Account: 1, ChangeIDs: map[ids.CollectionId]ids.ChangeId{4: 2}},
	}
	if err := a.CommitEntries(entries); err != nil {
		t.Fatal(err)
	}
	last, err := logs.LastIndex()
	if err != nil {
		t.Fatal(err)
	}
	if last != 2 {
		t.Fatalf("LastIndex() = %d, want 2", last)
	}
}
