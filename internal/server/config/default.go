package config

import "time"

// Default configuration values.
const (
	DefaultLocalSocket = "/var/run/jmapstore/jmapstore.sock"

	DefaultDataDir         = "/var/lib/jmapstore/data"
	DefaultBlobDir         = "/var/lib/jmapstore/blobs"
	DefaultSnapshotDir     = "/var/lib/jmapstore/snapshots"
	DefaultGCInterval             = 10 * time.Minute
	DefaultSnapshotKeep           = 3
	DefaultDefaultLanguage        = "en"
	DefaultTombstoneSweepInterval = 15 * time.Minute

	DefaultGossipAddr             = "0.0.0.0"
	DefaultGossipPort             = 7946
	DefaultReplicationAddr        = "127.0.0.1:7373"
	DefaultShardReplicationFactor = 3

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Local: LocalConfig{
				Path: DefaultLocalSocket,
			},
		},
		Storage: StorageSection{
			DataDir:                DefaultDataDir,
			BlobDir:                DefaultBlobDir,
			SnapshotDir:            DefaultSnapshotDir,
			GCInterval:             DefaultGCInterval,
			SnapshotKeep:           DefaultSnapshotKeep,
			DefaultLanguage:        DefaultDefaultLanguage,
			TombstoneSweepInterval: DefaultTombstoneSweepInterval,
		},
		Cluster: ClusterSection{
			GossipAddr:             DefaultGossipAddr,
			GossipPort:             DefaultGossipPort,
			ReplicationAddr:        DefaultReplicationAddr,
			ShardReplicationFactor: DefaultShardReplicationFactor,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
