// Package keys builds the byte-ordered key layouts for every key family the
// storage engine persists: stored values, secondary indexes, bitmap
// families, the changelog, blob lists, temporary blobs, and the Raft log.
//
// Every family starts with a one-byte tag so families never alias, and each
// key is built so a prefix scan over that family yields exactly its rows in
// the order callers need: LEB128 for families where only grouping matters,
// big-endian for families that must support numeric range scans.
package keys
