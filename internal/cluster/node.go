package cluster

import (
	"crypto/tls"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/jmapstore/engine/internal/core/ids"
)

// Config configures one cluster node's gossip and replication endpoints.
type Config struct {
	NodeID    string
	ClusterID string
	DataDir   string

	BindAddr string // gossip transport
	BindPort int

	ReplicationAddr string // cluster TCP transport bind address
	SeedNodes       []string

	// TLSConfig, if set (via internal/infra/tlsroots.Pool.MutualTLSConfig),
	// upgrades the replication transport to mutual TLS. Nil means plaintext
	// TCP, the teacher's own default.
	TLSConfig *tls.Config

	// CatchUpBytesPerSec caps how fast a PeerReplicator ships catch-up
	// batches to a recovering follower. Zero means unlimited.
	CatchUpBytesPerSec int

	Logger *slog.Logger
}

// Node wires peer discovery, the durable replicated log, and one
// PeerReplicator per known peer into a running cluster member. A
// PeerReplicator is started for every peer that joins, whatever the shard
// assignment; the ShardMap is kept in step with membership and exposed for
// routing decisions above this package. Leader election itself is out of
// this package's scope (spec.md leaves
// election mechanics to the standard protocol and only specifies log
// append and state-machine application).
type Node struct {
	cfg       Config
	logger    *slog.Logger
	logs      *LogStore
	transport *Transport
	discovery *Discovery
	shardMap  *ShardMap
	limiter   *rate.Limiter // nil means unlimited; shared across every peer

	mu          sync.Mutex
	replicators map[string]*PeerReplicator
}

// NewNode starts accepting replication connections on logs and joins (or
// bootstraps) the gossip cluster. logs is opened by the caller (typically
// shared with a LogAppender driving this node's own commits) so both sides
// of replication operate on one LogStore handle. store and logApplier are
// the server layer's hooks into the local document store; catchup computes
// document-level catch-up streams for peers that fall behind.
func NewNode(cfg Config, logs *LogStore, store StoreApplier, logApplier LogApplier, catchup *CatchUp) (*Node, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	n := &Node{
		cfg:         cfg,
		logger:      cfg.Logger,
		logs:        logs,
		shardMap:    NewShardMap(),
		replicators: make(map[string]*PeerReplicator),
	}
	if cfg.CatchUpBytesPerSec > 0 {
		n.limiter = rate.NewLimiter(rate.Limit(cfg.CatchUpBytesPerSec), BatchMaxBytes)
	}

	follower := NewFollower(logs, store, logApplier, cfg.Logger)
	transport, err := Listen(cfg.ReplicationAddr, rpcTimeout, cfg.TLSConfig, func(c *Conn) { follower.Serve(c) })
	if err != nil {
		return nil, err
	}
	n.transport = transport

	discovery, err := NewDiscovery(DiscoveryConfig{
		NodeID:          cfg.NodeID,
		ClusterID:       cfg.ClusterID,
		BindAddr:        cfg.BindAddr,
		BindPort:        cfg.BindPort,
		ReplicationAddr: transport.Addr().String(),
		SeedNodes:       cfg.SeedNodes,
		Logger:          cfg.Logger,
	})
	if err != nil {
		transport.Close()
		return nil, err
	}
	n.discovery = discovery

	discovery.OnJoin(func(peerID, addr string) {
		n.shardMap.AddPeer(peerID)
		n.startReplicator(peerID, addr, catchup)
	})
	discovery.OnLeave(func(peerID string) {
		n.shardMap.RemovePeer(peerID)
		n.stopReplicator(peerID)
	})

	return n, nil
}

func (n *Node) startReplicator(peerID, addr string, catchup *CatchUp) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.replicators[peerID]; exists {
		return
	}
	term, err := n.logs.CurrentTerm()
	if err != nil {
		n.logger.Error("cluster: read current term failed", "error", err)
		return
	}
	r := NewPeerReplicatorWithLimiter(addr, term, n.transport, n.logs, catchup, n.logger, n.limiter)
	n.replicators[peerID] = r
	go r.Run()
}

func (n *Node) stopReplicator(peerID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if r, ok := n.replicators[peerID]; ok {
		r.Stop()
		delete(n.replicators, peerID)
	}
}

// NotifyCommit wakes every peer replication task out of its Wait state;
// wire this as LogAppender.OnAppend so a fresh local commit is shipped
// promptly instead of waiting for the next liveness timeout.
func (n *Node) NotifyCommit(raftID ids.RaftId) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, r := range n.replicators {
		r.NotifyCommit()
	}
}

// ShardMap exposes the node's consistent-hash ring for account-to-peer
// routing decisions made above this package.
func (n *Node) ShardMap() *ShardMap { return n.shardMap }

// NodeID reports this node's configured identifier.
func (n *Node) NodeID() string { return n.cfg.NodeID }

// ReplicationAddr reports the address peers should dial to reach this
// node's cluster transport.
func (n *Node) ReplicationAddr() string { return n.transport.Addr().String() }

// PeerCount reports the number of other members currently visible in the
// gossip membership list.
func (n *Node) PeerCount() int {
	members := n.discovery.Members()
	if len(members) == 0 {
		return 0
	}
	return len(members) - 1
}

// Close stops every replication task, leaves the gossip cluster, and closes
// the transport listener. The LogStore passed to NewNode is owned by the
// caller and outlives Close.
func (n *Node) Close() error {
	n.mu.Lock()
	for peerID, r := range n.replicators {
		r.Stop()
		delete(n.replicators, peerID)
	}
	n.mu.Unlock()

	n.discovery.Leave()
	n.discovery.Shutdown()
	return n.transport.Close()
}
