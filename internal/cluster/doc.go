// Package cluster replicates committed writes from a leader node to its
// followers. A per-peer leader task ships raw log entries (account +
// touched collections + the new ChangeId each collection reached) over a
// framed TCP connection; a follower task applies them if its own changelog
// is already caught up, or else falls back to document-level catch-up
// streamed from the leader's changelog and blob store. Peer discovery rides
// a gossip membership list; log storage rides a durable BoltDB-backed
// implementation of hashicorp/raft's Log/LogStore/StableStore interfaces,
// kept for their durability properties even though raft.Raft's consensus
// engine itself is not used here.
package cluster
