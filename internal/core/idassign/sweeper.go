package idassign

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jmapstore/engine/internal/core/bitmap"
	"github.com/jmapstore/engine/internal/core/document"
	"github.com/jmapstore/engine/internal/core/domain"
	"github.com/jmapstore/engine/internal/core/ids"
	"github.com/jmapstore/engine/internal/core/keys"
	"github.com/jmapstore/engine/internal/storage/badgerkv"
)

// Purger physically removes one tombstoned document's rows and moves its
// id from USED_IDS/TOMBSTONED_IDS to FREED_IDS. Implemented by
// internal/core/store.Writer; declared here as an interface so this
// package need not import store (store already imports idassign).
type Purger interface {
	Purge(account ids.AccountId, collection ids.CollectionId, documentID ids.DocumentId, clearOps *document.Document) error
}

// SnapshotReader recovers the clear-ops Document for one tombstoned
// document's last stored ORM snapshot. idassign carries no schema of its
// own: whichever internal/core/orm schema owns a collection supplies this
// at wiring time via Sweeper.Register, the same pattern internal/cluster's
// CatchUp uses for its MailDecoder.
type SnapshotReader interface {
	ClearOps(account ids.AccountId, collection ids.CollectionId, documentID ids.DocumentId) (*document.Document, error)
}

// Sweeper periodically purges every TOMBSTONED_IDS document across every
// (account, collection) pair with a registered SnapshotReader.
// Unregistered collections are skipped: purging requires knowing which
// rows a deleted document's last snapshot touched, which only the owning
// schema can say.
type Sweeper struct {
	engine *badgerkv.Engine
	purger Purger
	logger *slog.Logger

	readers map[ids.CollectionId]SnapshotReader

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSweeper builds a Sweeper over engine's current state. purger is
// typically the server's *store.Writer.
func NewSweeper(engine *badgerkv.Engine, purger Purger, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		engine:  engine,
		purger:  purger,
		logger:  logger,
		readers: make(map[ids.CollectionId]SnapshotReader),
	}
}

// Register marks collection as purgeable, decoding each tombstoned
// document's clear-ops via reader.
func (s *Sweeper) Register(collection ids.CollectionId, reader SnapshotReader) {
	s.readers[collection] = reader
}

// SweepOnce purges every currently tombstoned document in every registered
// collection and returns how many were purged. Idempotent: documents
// purged by an earlier call no longer appear in TOMBSTONED_IDS, and a
// document purged concurrently by two sweeps simply has Purge called on it
// twice, which is itself safe since Purge's bitmap/refcount operations are
// all clear-if-set / decrement-if-positive.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	type target struct {
		account    ids.AccountId
		collection ids.CollectionId
	}

	var targets []target
	err := s.engine.Scan([]byte{byte(keys.FamilyBitmapTombstonedIDs)}, func(key, _ []byte) bool {
		account, collection, err := keys.ParseBitmapKey(key)
		if err != nil {
			s.logger.Warn("idassign: skipping malformed tombstone bitmap key", "error", err)
			return true
		}
		if _, ok := s.readers[collection]; ok {
			targets = append(targets, target{account, collection})
		}
		return true
	})
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, t := range targets {
		select {
		case <-ctx.Done():
			return purged, ctx.Err()
		default:
		}

		n, err := s.sweepCollection(t.account, t.collection)
		if err != nil {
			s.logger.Error("idassign: sweep collection failed",
				"account", t.account, "collection", t.collection, "error", err)
			continue
		}
		purged += n
	}
	return purged, nil
}

func (s *Sweeper) sweepCollection(account ids.AccountId, collection ids.CollectionId) (int, error) {
	raw, err := s.engine.Get(keys.BitmapTombstonedIDs(account, collection))
	if errors.Is(err, domain.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	tombstoned, err := bitmap.FromBytes(raw)
	if err != nil {
		return 0, err
	}

	reader := s.readers[collection]
	purged := 0
	for _, documentID := range tombstoned.ToSlice() {
		clearOps, err := reader.ClearOps(account, collection, documentID)
		if err != nil {
			s.logger.Error("idassign: decode clear ops failed",
				"account", account, "collection", collection, "document", documentID, "error", err)
			continue
		}
		if err := s.purger.Purge(account, collection, documentID, clearOps); err != nil {
			s.logger.Error("idassign: purge failed",
				"account", account, "collection", collection, "document", documentID, "error", err)
			continue
		}
		purged++
	}
	return purged, nil
}

// Run sweeps every interval until ctx is cancelled or Stop is called.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	defer close(s.doneCh)

	if interval <= 0 {
		s.logger.Error("idassign: invalid sweep interval, defaulting to 15m", "interval", interval)
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("idassign: tombstone sweep failed", "error", err)
			}
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}

// Stop signals a running Run loop to exit and waits for it to return.
func (s *Sweeper) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
}
