// Package clusterv1 is reserved for Protocol Buffer definitions of the
// jmapstore replication RPC.
//
// It contains no generated code. Replication RPCs do not use Protobuf:
// internal/cluster carries them as length-prefixed, CRC32-checksummed
// frames over TCP.
//
// @design DS-0301
// @design DS-0401
package clusterv1
