package store

import (
	"bytes"
	"fmt"

	"github.com/jmapstore/engine/internal/core/domain"
	"github.com/jmapstore/engine/internal/core/ids"
	"github.com/jmapstore/engine/internal/core/keys"
	"github.com/jmapstore/engine/internal/storage/badgerkv"
)

// blobHashLen is the width of a content hash as produced by blobstore.Hash
// (BLAKE3-256).
const blobHashLen = 32

// encodeBlobList concatenates hashes into the on-disk blob-list form.
func encodeBlobList(hashes [][]byte) []byte {
	buf := make([]byte, 0, len(hashes)*blobHashLen)
	for _, h := range hashes {
		buf = append(buf, h...)
	}
	return buf
}

// decodeBlobList splits a stored blob-list row back into its hashes.
func decodeBlobList(data []byte) ([][]byte, error) {
	if len(data)%blobHashLen != 0 {
		return nil, domain.Wrap(domain.KindDataCorruption, "store.decodeBlobList",
			"length is not a multiple of the hash size", fmt.Errorf("%d bytes", len(data)))
	}
	out := make([][]byte, 0, len(data)/blobHashLen)
	for i := 0; i < len(data); i += blobHashLen {
		out = append(out, append([]byte(nil), data[i:i+blobHashLen]...))
	}
	return out, nil
}

// updateBlobList folds adds/removes into a document's stored blob-list row,
// deleting the row entirely once it would be empty.
func updateBlobList(b *badgerkv.Batch, account ids.AccountId, collection ids.CollectionId, document ids.DocumentId, adds, removes [][]byte) error {
	if len(adds) == 0 && len(removes) == 0 {
		return nil
	}

	key := keys.BlobList(account, collection, document)
	existing, err := loadBlobList(b, key)
	if err != nil {
		return err
	}

	for _, rm := range removes {
		existing = removeHash(existing, rm)
	}
	for _, add := range adds {
		if !containsHash(existing, add) {
			existing = append(existing, add)
		}
	}

	if len(existing) == 0 {
		return b.Delete(key)
	}
	return b.Put(key, encodeBlobList(existing))
}

func loadBlobList(b *badgerkv.Batch, key []byte) ([][]byte, error) {
	raw, err := b.Get(key)
	if err != nil {
		if domain.Is(err, domain.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeBlobList(raw)
}

func containsHash(hashes [][]byte, target []byte) bool {
	for _, h := range hashes {
		if bytes.Equal(h, target) {
			return true
		}
	}
	return false
}

func removeHash(hashes [][]byte, target []byte) [][]byte {
	out := hashes[:0]
	for _, h := range hashes {
		if !bytes.Equal(h, target) {
			out = append(out, h)
		}
	}
	return out
}
