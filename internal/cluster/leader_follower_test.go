package cluster

import (
	"sync"
	"testing"
	"time"

	"github.com/jmapstore/engine/internal/core/ids"
)

type fakeStoreApplier struct{}

func (fakeStoreApplier) ApplyChanges(ids.AccountId, ids.CollectionId, []Change) error { return nil }

type fakeLogApplier struct {
	mu        sync.Mutex
	committed []LogEntry
	changeIDs map[ids.CollectionId]ids.ChangeId
	applied   chan struct{}
}

func newFakeLogApplier() *fakeLogApplier {
	return &fakeLogApplier{
		changeIDs: make(map[ids.CollectionId]ids.ChangeId),
		applied:   make(chan struct{}, 16),
	}
}

func (f *fakeLogApplier) LastChangeID(_ ids.AccountId, collection ids.CollectionId) (ids.ChangeId, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.changeIDs[collection]
	return id, ok
}

func (f *fakeLogApplier) CommitEntries(entries []LogEntry) error {
	f.mu.Lock()
	f.committed = append(f.committed, entries...)
	for _, e := range entries {
		for collection, changeID := range e.ChangeIDs {
			if changeID > f.changeIDs[collection] {
				f.changeIDs[collection] = changeID
			}
		}
	}
	f.mu.Unlock()
	f.applied <- struct{}{}
	return nil
}

func (f *fakeLogApplier) committedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.committed)
}

// TestLeaderReplicatesEntryToFollower exercises BecomeLeader -> Synchronize
// -> AppendEntries -> Continue over a real loopback TCP connection, with the
// follower already caught up (LastChangeID reports the entry's own ChangeId)
// so no document-level PushChanges detour is needed.
func TestLeaderReplicatesEntryToFollower(t *testing.T) {
	followerLogs := openTestLogStore(t)
	logApplier := newFakeLogApplier()
	// Seed the follower as already holding the ChangeId the entry will carry,
	// so handleUpdateLog takes the direct-commit path instead of NeedUpdates.
	logApplier.changeIDs[ids.CollectionId(2)] = ids.ChangeId(5)

	follower := NewFollower(followerLogs, fakeStoreApplier{}, logApplier, nil)
	followerTransport, err := Listen("127.0.0.1:0", 2*time.Second, nil, func(c *Conn) { follower.Serve(c) })
	if err != nil {
		t.Fatal(err)
	}
	defer followerTransport.Close()

	leaderLogs := openTestLogStore(t)
	entry := LogEntry{
		RaftID:    ids.RaftId{Term: 1, Index: 1},
		Account:   ids.AccountId(1),
		ChangeIDs: map[ids.CollectionId]ids.ChangeId{ids.CollectionId(2): ids.ChangeId(5)},
	}
	if err := leaderLogs.Append(entry); err != nil {
		t.Fatal(err)
	}

	leaderTransport, err := Listen("127.0.0.1:0", 2*time.Second, nil, func(*Conn) {})
	if err != nil {
		t.Fatal(err)
	}
	defer leaderTransport.Close()

	catchup := NewCatchUp(openTestCatchUpEngine(t))
	replicator := NewPeerReplicator(followerTransport.Addr().String(), 1, leaderTransport, leaderLogs, catchup, nil)
	go replicator.Run()
	defer replicator.Stop()

	select {
	case <-logApplier.applied:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for follower to commit the replicated entry")
	}

	if logApplier.committedCount() != 1 {
		t.Fatalf("committed count = %d, want 1", logApplier.committedCount())
	}
	if !follower.UpToDate() {
		t.Fatal("follower should report up to date with no pending catch-up")
	}
}
