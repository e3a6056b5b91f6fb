// Package document implements the in-memory document builder: the ordered
// set of field mutations a caller queues before handing a Document to the
// write pipeline. Building a Document performs no I/O; the write pipeline
// is the only component that turns queued operations into KV writes.
package document
