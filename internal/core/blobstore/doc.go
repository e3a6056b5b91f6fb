// Package blobstore stores large field payloads (attachments, raw message
// bodies) out of line from the document's row, content-addressed by a
// cryptographic hash so identical bytes uploaded twice are stored once.
// Storage is reference-counted: every document that references a hash via
// Store holds one count, Release drops it, and the payload is deleted once
// the count reaches zero. Uploads land first in a temporary, per-account,
// TTL-bounded area keyed by upload time so a client can reference a blob
// before the document that uses it is committed.
package blobstore
