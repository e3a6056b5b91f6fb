// Package config defines the storage engine's server configuration
// structure.
package config

import "time"

// ServerConfig is the root configuration for jmapstore-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Storage  StorageSection  `koanf:"storage"`
	Security SecuritySection `koanf:"security"`
	Cluster  ClusterSection  `koanf:"cluster"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures the node's non-replication endpoints. The JMAP
// wire protocol itself is out of scope for this engine (see SPEC_FULL.md's
// Non-goals); Local is the admin socket jmapstore-cli talks to for
// operational commands (stats, backup, compaction).
type ServerSection struct {
	Local LocalConfig `koanf:"local"`
}

// LocalConfig configures the local management socket.
type LocalConfig struct {
	Path string `koanf:"path"`
}

// StorageSection configures the embedded KV engine and blob store.
type StorageSection struct {
	DataDir      string        `koanf:"data_dir"`
	BlobDir      string        `koanf:"blob_dir"`
	GCInterval   time.Duration `koanf:"gc_interval"`
	SnapshotDir  string        `koanf:"snapshot_dir"`
	SnapshotKeep int           `koanf:"snapshot_keep"`

	// DefaultLanguage seeds internal/core/fts's stemmer/stopword selection
	// for documents that don't specify a language of their own.
	DefaultLanguage string `koanf:"default_language"`

	// TombstoneSweepInterval is how often idassign.Sweeper scans for and
	// physically purges tombstoned documents.
	TombstoneSweepInterval time.Duration `koanf:"tombstone_sweep_interval"`
}

// SecuritySection configures at-rest encryption and cluster transport TLS.
type SecuritySection struct {
	// SnapshotEncryptionKey, if set, is either a raw 32-byte key written as
	// 64 hex characters or an operator passphrase: any other value is passed
	// to internal/storage/snapshotenc.DeriveKey to derive a key from.
	SnapshotEncryptionKey string `koanf:"snapshot_encryption_key"`

	// TLSCAFile, TLSCertFile, and TLSKeyFile configure mutual TLS for the
	// cluster replication transport (internal/cluster's Transport). All
	// three must be set together; see config.ToClusterConfig.
	TLSCAFile   string `koanf:"tls_ca_file"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`
}

// ClusterSection configures gossip membership and document replication.
type ClusterSection struct {
	NodeID    string   `koanf:"node_id"`
	ClusterID string   `koanf:"cluster_id"`
	DataDir   string   `koanf:"data_dir"`
	SeedNodes []string `koanf:"seed_nodes"`

	GossipAddr      string `koanf:"gossip_addr"`
	GossipPort      int    `koanf:"gossip_port"`
	ReplicationAddr string `koanf:"replication_addr"`

	// ShardReplicationFactor must be at least 1 (see Verify); no other
	// component reads it.
	ShardReplicationFactor int `koanf:"shard_replication_factor"`

	// CatchUpBytesPerSec caps how fast a leader ships catch-up batches to a
	// recovering peer. Zero means unlimited.
	CatchUpBytesPerSec int `koanf:"catch_up_bytes_per_sec"`
}

// LogSection configures structured logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
