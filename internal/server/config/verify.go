package config

import (
	"errors"
	"os"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyCluster(&cfg.Cluster); err != nil {
		return err
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}

	if cfg.BlobDir != "" {
		if err := os.MkdirAll(cfg.BlobDir, 0750); err != nil {
			return errors.New("cannot create blob directory: " + err.Error())
		}
	}
	if cfg.SnapshotDir != "" {
		if err := os.MkdirAll(cfg.SnapshotDir, 0750); err != nil {
			return errors.New("cannot create snapshot directory: " + err.Error())
		}
	}

	if cfg.SnapshotKeep < 1 {
		return errors.New("storage.snapshot_keep must be at least 1")
	}

	return nil
}

func verifyCluster(cfg *ClusterSection) error {
	if cfg.ReplicationAddr == "" {
		return errors.New("cluster.replication_addr is required")
	}
	if cfg.GossipPort <= 0 || cfg.GossipPort > 65535 {
		return errors.New("cluster.gossip_port must be between 1 and 65535")
	}
	if cfg.ShardReplicationFactor < 1 {
		return errors.New("cluster.shard_replication_factor must be at least 1")
	}
	return nil
}
