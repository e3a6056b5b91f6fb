package badgerkv

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jmapstore/engine/internal/core/bitmap"
	"github.com/jmapstore/engine/internal/core/domain"
)

// Config tunes the Badger instance backing the document store.
type Config struct {
	Dir string

	// GCInterval is the interval between automatic value-log GC runs.
	GCInterval string
	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	GCThreshold float64
	// CacheSize is the block cache size in bytes.
	CacheSize int64
	// ValueLogFileSize is the max value log file size in bytes.
	ValueLogFileSize int64
	// MaxBatchConflictRetries bounds how many times Update retries a batch
	// that lost an optimistic-concurrency race.
	MaxBatchConflictRetries int
}

// DefaultConfig returns tuning defaults suited to a document store with
// frequent small read-modify-write batches.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                     dir,
		GCInterval:              "10m",
		GCThreshold:             0.5,
		CacheSize:               64 << 20,
		ValueLogFileSize:        1 << 30,
		MaxBatchConflictRetries: 5,
	}
}

// Engine wraps a Badger instance with the atomic-batch and merge semantics
// the write pipeline needs.
type Engine struct {
	db     *badger.DB
	cfg    Config
	logger *slog.Logger

	lastGCTime       atomic.Int64
	gcBytesReclaimed atomic.Uint64

	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsTotalSize    prometheus.Gauge
	metricsGCReclaimed  prometheus.Counter

	stopCh chan struct{}
	doneCh chan struct{}
}

// Open creates or reopens a Badger-backed document store.
func Open(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("badgerkv: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBatchConflictRetries <= 0 {
		cfg.MaxBatchConflictRetries = 5
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = &adaptedLogger{logger: logger}
	opts.BlockCacheSize = cfg.CacheSize
	opts.ValueLogFileSize = cfg.ValueLogFileSize
	// Conflict detection backs the read-modify-write bitmap/refcount merges
	// in Batch; without it two concurrent batches touching the same bitmap
	// key could silently lose an update.
	opts.DetectConflicts = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerkv: open: %w", err)
	}

	e := &Engine{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go e.gcLoop()

	logger.Info("document store opened", "dir", cfg.Dir)
	return e, nil
}

// Get retrieves a value by key.
func (e *Engine) Get(key []byte) ([]byte, error) {
	var value []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrKeyNotFound
			}
			return domain.Wrap(domain.KindInternal, "badgerkv.Get", "transaction failed", err)
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Scan iterates over keys with the given prefix in ascending key order.
// fn returning false stops iteration early.
func (e *Engine) Scan(prefix []byte, fn func(key, value []byte) bool) error {
	return e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			value, err := item.ValueCopy(nil)
			if err != nil {
				return domain.Wrap(domain.KindInternal, "badgerkv.Scan", "read value", err)
			}
			if !fn(key, value) {
				break
			}
		}
		return nil
	})
}

// Close shuts down the engine, stopping the background GC loop first.
func (e *Engine) Close() error {
	close(e.stopCh)
	<-e.doneCh
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("badgerkv: close: %w", err)
	}
	return nil
}

// Stats reports approximate storage size.
type Stats struct {
	LSMSize          int64
	ValueLogSize     int64
	LastGCTime       int64
	GCBytesReclaimed uint64
}

// Stats returns approximate storage statistics.
func (e *Engine) Stats() Stats {
	lsm, vlog := e.db.Size()
	return Stats{
		LSMSize:          lsm,
		ValueLogSize:     vlog,
		LastGCTime:       e.lastGCTime.Load(),
		GCBytesReclaimed: e.gcBytesReclaimed.Load(),
	}
}

// SaveSnapshot streams a full backup of the document store, used by
// internal/server/localserver's backup.snapshot handler.
func (e *Engine) SaveSnapshot() (io.ReadCloser, error) {
	tmpFile, err := os.CreateTemp("", "jmapstore-snapshot-*.bak")
	if err != nil {
		return nil, fmt.Errorf("badgerkv: create temp snapshot file: %w", err)
	}
	if _, err := e.db.Backup(tmpFile, 0); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return nil, fmt.Errorf("badgerkv: backup: %w", err)
	}
	if _, err := tmpFile.Seek(0, 0); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return nil, fmt.Errorf("badgerkv: seek: %w", err)
	}
	return &autoDeleteReader{ReadCloser: tmpFile, path: tmpFile.Name()}, nil
}

// LoadSnapshot restores the document store from a backup produced by
// SaveSnapshot, overwriting existing data.
func (e *Engine) LoadSnapshot(r io.Reader) error {
	if err := e.db.Load(r, 256); err != nil {
		return fmt.Errorf("badgerkv: load snapshot: %w", err)
	}
	return nil
}

// GC runs Badger's value-log garbage collection until no further space can
// be reclaimed at the configured threshold.
func (e *Engine) GC() error {
	for {
		err := e.db.RunValueLogGC(e.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return fmt.Errorf("badgerkv: gc: %w", err)
		}
		e.gcBytesReclaimed.Add(1 << 20)
	}
	e.lastGCTime.Store(time.Now().UnixMilli())
	return nil
}

func (e *Engine) gcLoop() {
	defer close(e.doneCh)

	interval, err := time.ParseDuration(e.cfg.GCInterval)
	if err != nil {
		e.logger.Error("invalid gc interval, defaulting to 10m", "error", err)
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.GC(); err != nil {
				e.logger.Error("document store gc failed", "error", err)
			}
		case <-e.stopCh:
			return
		}
	}
}

// RegisterMetrics registers document store Prometheus metrics and starts
// the background updater. Returns e for chaining.
func (e *Engine) RegisterMetrics(registry *prometheus.Registry) *Engine {
	e.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "jmapstore", Subsystem: "docstore", Name: "lsm_size_bytes",
		Help: "Document store LSM tree size in bytes.",
	})
	e.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "jmapstore", Subsystem: "docstore", Name: "value_log_size_bytes",
		Help: "Document store value log size in bytes.",
	})
	e.metricsTotalSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "jmapstore", Subsystem: "docstore", Name: "total_size_bytes",
		Help: "Document store total size on disk in bytes.",
	})
	e.metricsGCReclaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jmapstore", Subsystem: "docstore", Name: "gc_bytes_reclaimed_total",
		Help: "Total bytes reclaimed by document store garbage collection.",
	})
	registry.MustRegister(e.metricsLSMSize, e.metricsValueLogSize, e.metricsTotalSize, e.metricsGCReclaimed)

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats := e.Stats()
				e.metricsLSMSize.Set(float64(stats.LSMSize))
				e.metricsValueLogSize.Set(float64(stats.ValueLogSize))
				e.metricsTotalSize.Set(float64(stats.LSMSize + stats.ValueLogSize))
			case <-e.stopCh:
				return
			}
		}
	}()
	return e
}

// Update runs fn against a fresh Batch and commits it, retrying on an
// optimistic-concurrency conflict up to MaxBatchConflictRetries times.
func (e *Engine) Update(fn func(*Batch) error) error {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxBatchConflictRetries; attempt++ {
		b := e.newBatch()
		if err := fn(b); err != nil {
			b.Discard()
			return err
		}
		err := b.commit()
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return domain.Wrap(domain.KindInternal, "badgerkv.Update", "commit failed", err)
		}
		lastErr = err
	}
	return domain.Wrap(domain.KindInternal, "badgerkv.Update", "exhausted conflict retries", lastErr)
}

// Batch accumulates the writes of one atomic document-store commit: plain
// puts/deletes plus bitmap/refcount merges resolved by read-modify-write
// against this same transaction.
type Batch struct {
	eng *Engine
	txn *badger.Txn
}

func (e *Engine) newBatch() *Batch {
	return &Batch{eng: e, txn: e.db.NewTransaction(true)}
}

// Put writes key/value.
func (b *Batch) Put(key, value []byte) error {
	return b.txn.Set(key, value)
}

// Delete removes key.
func (b *Batch) Delete(key []byte) error {
	return b.txn.Delete(key)
}

// Get reads key within the batch's transaction, returning
// domain.ErrKeyNotFound if absent.
func (b *Batch) Get(key []byte) ([]byte, error) {
	item, err := b.txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrKeyNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// MergeBitmap applies cs to the bitmap stored at key (treating a missing
// key as an empty set) and writes the result back, all within this batch's
// transaction.
func (b *Batch) MergeBitmap(key []byte, cs bitmap.ChangeSet) error {
	if cs.IsEmpty() {
		return nil
	}
	raw, err := b.Get(key)
	if err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
		return err
	}
	var base *bitmap.Set
	if err == nil {
		base, err = bitmap.FromBytes(raw)
		if err != nil {
			return domain.Wrap(domain.KindDataCorruption, "badgerkv.MergeBitmap", "decode stored bitmap", err)
		}
	}
	merged := bitmap.Apply(base, cs)
	return b.Put(key, merged.Bytes())
}

// MergeRefcount adds delta to the signed counter stored at key and returns
// the resulting value. A count that reaches zero or below deletes the key.
func (b *Batch) MergeRefcount(key []byte, delta int64) (int64, error) {
	raw, err := b.Get(key)
	if err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
		return 0, err
	}
	var current int64
	if err == nil {
		current, err = decodeInt64(raw)
		if err != nil {
			return 0, domain.Wrap(domain.KindDataCorruption, "badgerkv.MergeRefcount", "decode stored counter", err)
		}
	}
	next := current + delta
	if next <= 0 {
		return next, b.Delete(key)
	}
	return next, b.Put(key, encodeInt64(next))
}

func (b *Batch) commit() error {
	defer b.txn.Discard()
	return b.txn.Commit()
}

// Discard abandons the batch without committing.
func (b *Batch) Discard() {
	b.txn.Discard()
}

type autoDeleteReader struct {
	io.ReadCloser
	path string
}

func (r *autoDeleteReader) Close() error {
	err1 := r.ReadCloser.Close()
	err2 := os.Remove(r.path)
	if err1 != nil {
		return err1
	}
	return err2
}

// adaptedLogger adapts *slog.Logger to Badger's Logger interface.
type adaptedLogger struct {
	logger *slog.Logger
}

func (l *adaptedLogger) Errorf(format string, args ...interface{})   { l.logger.Error(fmt.Sprintf(format, args...)) }
func (l *adaptedLogger) Warningf(format string, args ...interface{}) { l.logger.Warn(fmt.Sprintf(format, args...)) }
func (l *adaptedLogger) Infof(format string, args ...interface{})    { l.logger.Info(fmt.Sprintf(format, args...)) }
func (l *adaptedLogger) Debugf(format string, args ...interface{})   { l.logger.Debug(fmt.Sprintf(format, args...)) }
