package blobstore

import (
	"lukechampine.com/blake3"

	"github.com/jmapstore/engine/internal/core/domain"
	"github.com/jmapstore/engine/internal/core/keys"
)

// Batch is the write surface blobstore needs from one atomic commit: plain
// key/value access plus the refcount merge the document store's batch
// already provides for bitmap/counter fields.
type Batch interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	MergeRefcount(key []byte, delta int64) (int64, error)
}

// Reader is the read-only surface needed to fetch a blob outside of a
// write batch.
type Reader interface {
	Get(key []byte) ([]byte, error)
}

// Hash returns data's content address.
func Hash(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}

// Store persists data under its content hash if not already present, and
// increments its reference count by one. Storing the same bytes twice is
// idempotent at the payload level: only the refcount grows.
func Store(batch Batch, data []byte) ([]byte, error) {
	hash := Hash(data)
	if err := Link(batch, hash, data); err != nil {
		return nil, err
	}
	return hash, nil
}

// Link increments hash's refcount and writes its payload if this is the
// first reference, without the caller needing to re-derive the hash (used
// when an ORM extractor callback discovers a nested blob reference inside
// a multipart payload that was already hashed once by its own Store call).
func Link(batch Batch, hash, data []byte) error {
	payloadKey := keys.BlobPayload(hash)
	if _, err := batch.Get(payloadKey); err != nil {
		if !domain.Is(err, domain.KindNotFound) {
			return err
		}
		if err := batch.Put(payloadKey, data); err != nil {
			return err
		}
	}
	_, err := batch.MergeRefcount(keys.BlobRefcount(hash), 1)
	return err
}

// Release decrements hash's refcount by one, deleting the payload once the
// count reaches zero. Releasing a hash with no outstanding references is a
// no-op, matching the tombstone sweeper's idempotent-purge contract.
func Release(batch Batch, hash []byte) (remaining int64, err error) {
	remaining, err = batch.MergeRefcount(keys.BlobRefcount(hash), -1)
	if err != nil {
		return 0, err
	}
	if remaining <= 0 {
		if err := batch.Delete(keys.BlobPayload(hash)); err != nil {
			return 0, err
		}
	}
	return remaining, nil
}

// Get reads a blob's payload by its content hash.
func Get(r Reader, hash []byte) ([]byte, error) {
	data, err := r.Get(keys.BlobPayload(hash))
	if err != nil {
		if domain.Is(err, domain.KindNotFound) {
			return nil, domain.ErrBlobNotFound
		}
		return nil, err
	}
	return data, nil
}

// Extractor pulls nested blob payloads out of a composite document (e.g.
// individual MIME parts out of a raw message), so each part can be linked
// and refcounted independently of the whole. The ORM/write pipeline
// supplies the actual parsing; blobstore only wires the result into
// storage via Link.
type Extractor func(data []byte) [][]byte

// LinkAll hashes and links every blob extractor yields from data's parsed
// form, in addition to the whole blob itself.
func LinkAll(batch Batch, data []byte, extract Extractor) (hash []byte, err error) {
	hash, err = Store(batch, data)
	if err != nil {
		return nil, err
	}
	if extract == nil {
		return hash, nil
	}
	for _, part := range extract(data) {
		if err := Link(batch, Hash(part), part); err != nil {
			return nil, err
		}
	}
	return hash, nil
}
