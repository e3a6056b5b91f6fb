package cluster

import (
	"encoding/binary"
	"sort"
	"strconv"
	"sync"

	"github.com/spaolacci/murmur3"

	"github.com/jmapstore/engine/internal/core/ids"
)

// DefaultShardCount is the number of shards accounts are hashed into; each
// account maps to exactly one shard.
const DefaultShardCount = 256

// DefaultVirtualNodeCount is how many points on the consistent-hash ring
// each physical peer owns.
const DefaultVirtualNodeCount = 256

// ShardMap routes an account to the peer currently responsible for its
// shard, using consistent hashing with virtual nodes so adding or removing
// a peer only reshuffles the shards nearest to it on the ring, not the
// whole map.
type ShardMap struct {
	mu sync.RWMutex

	shards   map[uint32]string
	replicas map[uint32][]string
	version  uint64

	virtualNodes map[uint64]string
	sortedHashes []uint64
}

// NewShardMap returns an empty shard map with no peers assigned.
func NewShardMap() *ShardMap {
	return &ShardMap{
		shards:       make(map[uint32]string),
		replicas:     make(map[uint32][]string),
		virtualNodes: make(map[uint64]string),
	}
}

// ShardForAccount hashes account to a shard id via MurmurHash3, matching
// the replication log's own use of murmur3 for term hashing in
// internal/core/fts, so the same hash family grounds both concerns.
func ShardForAccount(account ids.AccountId) uint32 {
	return murmur3.Sum32([]byte(strconv.FormatUint(uint64(account), 10))) % DefaultShardCount
}

// AssignShard records which peer (and replicas) owns a shard.
func (m *ShardMap) AssignShard(shardID uint32, peerID string, replicas []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shards[shardID] = peerID
	if len(replicas) > 0 {
		m.replicas[shardID] = replicas
	}
	m.version++
}

// PeerForAccount resolves the peer owning account's shard, preferring the
// explicit shard assignment and falling back to the consistent-hash ring
// when the shard has never been explicitly assigned (a fresh cluster).
func (m *ShardMap) PeerForAccount(account ids.AccountId) (peerID string, ok bool) {
	shardID := ShardForAccount(account)

	m.mu.RLock()
	peerID, ok = m.shards[shardID]
	m.mu.RUnlock()
	if ok {
		return peerID, true
	}
	var shardBytes [4]byte
	binary.BigEndian.PutUint32(shardBytes[:], shardID)
	return m.peerForHash(murmur3.Sum64(shardBytes[:]))
}

// ReplicasForAccount returns the replica peer ids for account's shard.
func (m *ShardMap) ReplicasForAccount(account ids.AccountId) []string {
	shardID := ShardForAccount(account)
	m.mu.RLock()
	defer m.mu.RUnlock()
	replicas, ok := m.replicas[shardID]
	if !ok {
		return nil
	}
	out := make([]string, len(replicas))
	copy(out, replicas)
	return out
}

// AddPeer adds peerID's virtual nodes to the ring.
func (m *ShardMap) AddPeer(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < DefaultVirtualNodeCount; i++ {
		m.virtualNodes[hashVirtualNode(peerID, i)] = peerID
	}
	m.rebuildSortedHashes()
	m.version++
}

// RemovePeer removes peerID's virtual nodes and any shard assignments that
// named it as primary.
func (m *ShardMap) RemovePeer(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < DefaultVirtualNodeCount; i++ {
		delete(m.virtualNodes, hashVirtualNode(peerID, i))
	}
	for shardID, assigned := range m.shards {
		if assigned == peerID {
			delete(m.shards, shardID)
		}
	}
	m.rebuildSortedHashes()
	m.version++
}

func (m *ShardMap) peerForHash(hash uint64) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.sortedHashes) == 0 {
		return "", false
	}
	idx := sort.Search(len(m.sortedHashes), func(i int) bool { return m.sortedHashes[i] >= hash })
	if idx == len(m.sortedHashes) {
		idx = 0
	}
	return m.virtualNodes[m.sortedHashes[idx]], true
}

func hashVirtualNode(peerID string, virtualIndex int) uint64 {
	h := murmur3.New64()
	h.Write([]byte(peerID))
	var indexBytes [4]byte
	binary.BigEndian.PutUint32(indexBytes[:], uint32(virtualIndex))
	h.Write(indexBytes[:])
	return h.Sum64()
}

func (m *ShardMap) rebuildSortedHashes() {
	m.sortedHashes = make([]uint64, 0, len(m.virtualNodes))
	for hash := range m.virtualNodes {
		m.sortedHashes = append(m.sortedHashes, hash)
	}
	sort.Slice(m.sortedHashes, func(i, j int) bool { return m.sortedHashes[i] < m.sortedHashes[j] })
}

// Clone returns a deep, independently mutable copy.
func (m *ShardMap) Clone() *ShardMap {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clone := &ShardMap{
		shards:       make(map[uint32]string, len(m.shards)),
		replicas:     make(map[uint32][]string, len(m.replicas)),
		version:      m.version,
		virtualNodes: make(map[uint64]string, len(m.virtualNodes)),
		sortedHashes: make([]uint64, len(m.sortedHashes)),
	}
	for k, v := range m.shards {
		clone.shards[k] = v
	}
	for k, v := range m.replicas {
		replicas := make([]string, len(v))
		copy(replicas, v)
		clone.replicas[k] = replicas
	}
	for k, v := range m.virtualNodes {
		clone.virtualNodes[k] = v
	}
	copy(clone.sortedHashes, m.sortedHashes)
	return clone
}

// Peers returns every distinct peer currently holding a ring position.
func (m *ShardMap) Peers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := make(map[string]struct{})
	for _, peerID := range m.virtualNodes {
		set[peerID] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for peerID := range set {
		out = append(out, peerID)
	}
	sort.Strings(out)
	return out
}

// Version reports the monotonically increasing modification counter.
func (m *ShardMap) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}
