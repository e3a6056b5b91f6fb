// Package fts tokenizes and stems text fields into terms, assigns each
// distinct term a stable global TermId backed by a KV counter, and encodes
// the per-(document, field, blob index) positional term index that lets the
// query engine run phrase/proximity searches without re-tokenizing stored
// text.
//
// This package has no transaction of its own: callers hand it a KV view
// (typically the write pipeline's current batch) to read/assign term ids
// against, and get back pure data (tokens, term ids, an index blob) to fold
// into their own atomic commit.
package fts
