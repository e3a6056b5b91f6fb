package config

import (
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmapstore/engine/internal/cluster"
	"github.com/jmapstore/engine/internal/infra/tlsroots"
)

// ToClusterConfig converts ServerConfig into internal/cluster.Config,
// generating a NodeID when the operator hasn't pinned one.
func ToClusterConfig(cfg *ServerConfig, logger *slog.Logger) (cluster.Config, error) {
	if cfg == nil {
		return cluster.Config{}, fmt.Errorf("server config is nil")
	}

	nodeID := cfg.Cluster.NodeID
	if nodeID == "" {
		generated, err := generateNodeID()
		if err != nil {
			return cluster.Config{}, fmt.Errorf("generate node ID: %w", err)
		}
		nodeID = generated
		logger.Info("generated cluster node ID", "node_id", nodeID)
	}

	dataDir := cfg.Cluster.DataDir
	if dataDir == "" {
		dataDir = cfg.Storage.DataDir
	}

	tlsConfig, err := clusterTLSConfig(&cfg.Security)
	if err != nil {
		return cluster.Config{}, fmt.Errorf("cluster TLS: %w", err)
	}

	return cluster.Config{
		NodeID:             nodeID,
		ClusterID:          cfg.Cluster.ClusterID,
		DataDir:            dataDir,
		BindAddr:           cfg.Cluster.GossipAddr,
		BindPort:           cfg.Cluster.GossipPort,
		ReplicationAddr:    cfg.Cluster.ReplicationAddr,
		SeedNodes:          cfg.Cluster.SeedNodes,
		TLSConfig:          tlsConfig,
		CatchUpBytesPerSec: cfg.Cluster.CatchUpBytesPerSec,
		Logger:             logger,
	}, nil
}

// clusterTLSConfig builds a mutual TLS config for the replication transport
// from the operator's CA/cert/key files. Mutual TLS is only enabled once
// all three are configured; a bare TLSCAFile with no cert/key is rejected
// rather than silently falling back to plaintext, since that combination
// can only be an incomplete configuration, never an intentional one.
func clusterTLSConfig(sec *SecuritySection) (*tls.Config, error) {
	if sec.TLSCAFile == "" && sec.TLSCertFile == "" && sec.TLSKeyFile == "" {
		return nil, nil
	}
	if sec.TLSCAFile == "" || sec.TLSCertFile == "" || sec.TLSKeyFile == "" {
		return nil, fmt.Errorf("cluster mutual TLS requires tls_ca_file, tls_cert_file, and tls_key_file together")
	}

	pool := tlsroots.NewEmptyPool()
	if err := pool.AddCertFile(sec.TLSCAFile); err != nil {
		return nil, err
	}
	return pool.MutualTLSConfig(sec.TLSCertFile, sec.TLSKeyFile)
}

// generateNodeID generates a unique node identifier from a ULID, whose
// embedded millisecond timestamp makes nodes sortable by join order in
// admin tooling without a separate join-time field.
//
// Format: jms-<26 char ULID> (e.g., "jms-01ARZ3NDEKTSV4RRFFQ69G5FAV")
func generateNodeID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", fmt.Errorf("generate ulid: %w", err)
	}
	return "jms-" + id.String(), nil
}
