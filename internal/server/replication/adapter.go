// Package replication adapts the local document store to the interfaces
// internal/cluster needs to drive the follower side of replication
// (StoreApplier, LogApplier): it turns catch-up Changes back into KV writes
// and tracks each follower's own replicated log.
package replication

import (
	"fmt"

	"github.com/jmapstore/engine/internal/cluster"
	"github.com/jmapstore/engine/internal/core/ids"
	"github.com/jmapstore/engine/internal/core/keys"
	"github.com/jmapstore/engine/internal/storage/badgerkv"
)

// Adapter implements cluster.StoreApplier and cluster.LogApplier over a
// local badgerkv.Engine and its replicated log. Mail-shaped Changes
// (InsertMail/UpdateMail/UpdateMailbox/Delete) require a registered schema
// that knows how to rebuild index and ORM rows from a MailRecord; until a
// Mail schema package is wired in, ApplyChanges only replays the opaque
// InsertChange path, which is what every collection not registered with
// CatchUp.RegisterMailCollection produces.
type Adapter struct {
	engine *badgerkv.Engine
	logs   *cluster.LogStore
}

// NewAdapter builds an Adapter over engine and the node's log store.
func NewAdapter(engine *badgerkv.Engine, logs *cluster.LogStore) *Adapter {
	return &Adapter{engine: engine, logs: logs}
}

// ApplyChanges replays one batch of catch-up Changes for (account,
// collection) into the local engine.
func (a *Adapter) ApplyChanges(account ids.AccountId, collection ids.CollectionId, changes []cluster.Change) error {
	return a.engine.Update(func(b *badgerkv.Batch) error {
		for _, ch := range changes {
			switch ch.Kind {
			case cluster.ChangeInsertChange:
				key := keys.Changelog(account, collection, ch.ChangeID)
				if err := b.Put(key, ch.EntryBytes); err != nil {
					return fmt.Errorf("replication: replay changelog entry: %w", err)
				}
			case cluster.ChangeCommit:
				// Sentinel marking the end of one UpdateStore batch; the
				// follower strips it before calling ApplyChanges.
			default:
				return fmt.Errorf("replication: change kind %v needs a registered Mail schema decoder", ch.Kind)
			}
		}
		return nil
	})
}

// LastChangeID reports the highest ChangeId ever replayed or locally
// committed for (account, collection), found by scanning the changelog
// prefix; a fresh (account, collection) pair reports ok=false.
func (a *Adapter) LastChangeID(account ids.AccountId, collection ids.CollectionId) (ids.ChangeId, bool) {
	prefix := keys.ChangelogPrefix(account, collection)
	var last ids.ChangeId
	var found bool
	_ = a.engine.Scan(prefix, func(key, _ []byte) bool {
		if id, err := keys.ParseChangelogChangeID(key); err == nil {
			last = id
			found = true
		}
		return true
	})
	return last, found
}

// CommitEntries durably appends entries to this node's own replicated log.
func (a *Adapter) CommitEntries(entries []cluster.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return a.logs.AppendBatch(entries)
}
