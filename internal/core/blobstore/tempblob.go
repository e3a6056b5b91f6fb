package blobstore

import (
	"github.com/jmapstore/engine/internal/core/ids"
	"github.com/jmapstore/engine/internal/core/keys"
)

// Scanner is the read surface needed to sweep an account's temporary
// uploads, matching the document store engine's prefix-ordered Scan.
type Scanner interface {
	Scan(prefix []byte, fn func(key, value []byte) bool) error
}

// StoreTemp uploads data to the temporary area under (account, timestamp,
// hash), ahead of the document commit that will eventually Link it.
func StoreTemp(batch Batch, account ids.AccountId, timestampUnix int64, data []byte) ([]byte, error) {
	hash := Hash(data)
	if err := batch.Put(keys.TempBlob(account, timestampUnix, hash), data); err != nil {
		return nil, err
	}
	return hash, nil
}

// ExpiredTempBlobs scans account's temporary uploads and returns the full
// keys of every entry whose timestamp is older than cutoffUnix, for the
// caller to delete within its own write batch.
func ExpiredTempBlobs(scanner Scanner, account ids.AccountId, cutoffUnix int64) ([][]byte, error) {
	var expired [][]byte
	err := scanner.Scan(keys.TempBlobPrefix(account), func(key, value []byte) bool {
		ts, _, parseErr := keys.ParseTempBlob(key)
		if parseErr == nil && ts < cutoffUnix {
			expired = append(expired, append([]byte(nil), key...))
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}
