package cluster

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/memberlist"
)

// Discovery tracks cluster membership over a gossip protocol, so peers
// learn each other's replication address without a central registry.
type Discovery struct {
	config     *memberlist.Config
	memberList *memberlist.Memberlist
	logger     *slog.Logger
	shutdown   atomic.Bool

	clusterID string

	onJoin  func(peerID, replicationAddr string)
	onLeave func(peerID string)
}

// DiscoveryConfig configures one node's membership gossip.
type DiscoveryConfig struct {
	// NodeID is this node's unique identifier.
	NodeID string

	// ClusterID rejects gossip from a differently-named cluster sharing
	// the same network, preventing an accidental merge of two clusters.
	ClusterID string

	// BindAddr / BindPort is the gossip transport's own address.
	BindAddr string
	BindPort int

	// ReplicationAddr is this node's cluster TCP transport address
	// (Transport.Addr from transport.go), advertised to peers in gossip
	// metadata.
	ReplicationAddr string

	SeedNodes []string
	Logger    *slog.Logger
}

// NewDiscovery starts gossiping and, if SeedNodes is non-empty, joins an
// existing cluster.
func NewDiscovery(cfg DiscoveryConfig) (*Discovery, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = cfg.NodeID
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	// memberlist only knows how to log through a stdlib-shaped io.Writer,
	// writing glog-style "[LEVEL] ..." lines. hclog's StandardWriter parses
	// that prefix and re-dispatches at the right severity, so a noisy
	// [DEBUG] line doesn't compete for attention with an [ERR] one the way
	// a flat io.Writer shim would; hclog's own Output is our slog bridge.
	hclogger := hclog.New(&hclog.LoggerOptions{
		Name:   "memberlist",
		Level:  hclog.Trace,
		Output: &slogWriter{logger: cfg.Logger},
	})
	mlConfig.LogOutput = hclogger.StandardWriter(&hclog.StandardLoggerOptions{InferLevels: true})

	d := &Discovery{config: mlConfig, logger: cfg.Logger, clusterID: cfg.ClusterID}

	mlConfig.Delegate = &metadataDelegate{metadata: nodeMetadata{
		ReplicationAddr: cfg.ReplicationAddr,
		ClusterID:       cfg.ClusterID,
	}}
	mlConfig.Events = &eventDelegate{discovery: d}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("cluster: create memberlist: %w", err)
	}
	d.memberList = ml

	if len(cfg.SeedNodes) > 0 {
		n, err := ml.Join(cfg.SeedNodes)
		if err != nil {
			ml.Shutdown()
			return nil, fmt.Errorf("cluster: join seed nodes: %w", err)
		}
		cfg.Logger.Info("cluster: joined", "node_id", cfg.NodeID, "joined_count", n)
	} else {
		cfg.Logger.Info("cluster: bootstrapping", "node_id", cfg.NodeID)
	}
	return d, nil
}

// Members returns the current gossip membership list.
func (d *Discovery) Members() []*memberlist.Node {
	if d.memberList == nil {
		return nil
	}
	return d.memberList.Members()
}

// Leave broadcasts a graceful departure.
func (d *Discovery) Leave() error {
	if d.memberList == nil {
		return nil
	}
	return d.memberList.Leave(0)
}

// Shutdown stops gossiping. Safe to call more than once.
func (d *Discovery) Shutdown() error {
	if !d.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	if d.memberList == nil {
		return nil
	}
	return d.memberList.Shutdown()
}

// OnJoin registers a callback fired when a peer joins, with its advertised
// replication address (not its gossip address).
func (d *Discovery) OnJoin(fn func(peerID, replicationAddr string)) { d.onJoin = fn }

// OnLeave registers a callback fired when a peer leaves.
func (d *Discovery) OnLeave(fn func(peerID string)) { d.onLeave = fn }

type eventDelegate struct {
	discovery *Discovery
}

func (e *eventDelegate) NotifyJoin(node *memberlist.Node) {
	gossipAddr := net.JoinHostPort(node.Addr.String(), fmt.Sprintf("%d", node.Port))

	var metadata nodeMetadata
	if len(node.Meta) > 0 {
		if err := json.Unmarshal(node.Meta, &metadata); err != nil {
			e.discovery.logger.Error("cluster: bad node metadata, rejecting", "node_id", node.Name, "error", err)
			return
		}
	}
	if e.discovery.clusterID != "" && metadata.ClusterID != "" && metadata.ClusterID != e.discovery.clusterID {
		e.discovery.logger.Error("cluster: cluster id mismatch, rejecting", "node_id", node.Name)
		return
	}

	replicationAddr := metadata.ReplicationAddr
	if replicationAddr == "" {
		replicationAddr = gossipAddr
	}
	e.discovery.logger.Info("cluster: peer joined", "node_id", node.Name, "replication_addr", replicationAddr)
	if e.discovery.onJoin != nil {
		e.discovery.onJoin(node.Name, replicationAddr)
	}
}

func (e *eventDelegate) NotifyLeave(node *memberlist.Node) {
	e.discovery.logger.Info("cluster: peer left", "node_id", node.Name)
	if e.discovery.onLeave != nil {
		e.discovery.onLeave(node.Name)
	}
}

func (e *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	e.discovery.logger.Debug("cluster: peer metadata updated", "node_id", node.Name)
}

type slogWriter struct{ logger *slog.Logger }

func (w *slogWriter) Write(p []byte) (int, error) {
	w.logger.Debug(string(p))
	return len(p), nil
}

type nodeMetadata struct {
	ReplicationAddr string `json:"replication_addr"`
	ClusterID       string `json:"cluster_id"`
}

type metadataDelegate struct {
	metadata nodeMetadata
}

func (m *metadataDelegate) NodeMeta(limit int) []byte {
	data, err := json.Marshal(m.metadata)
	if err != nil {
		return nil
	}
	if len(data) > limit {
		return data[:limit]
	}
	return data
}

func (m *metadataDelegate) NotifyMsg([]byte)                           {}
func (m *metadataDelegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (m *metadataDelegate) LocalState(join bool) []byte                { return nil }
func (m *metadataDelegate) MergeRemoteState(buf []byte, join bool)     {}
