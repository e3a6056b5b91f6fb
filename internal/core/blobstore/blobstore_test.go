package blobstore

import (
	"bytes"
	"testing"

	"github.com/jmapstore/engine/internal/core/domain"
	"github.com/jmapstore/engine/internal/core/ids"
	"github.com/jmapstore/engine/internal/core/keys"
)

type memBatch struct {
	data      map[string][]byte
	refcounts map[string]int64
}

func newMemBatch() *memBatch {
	return &memBatch{data: map[string][]byte{}, refcounts: map[string]int64{}}
}

func (m *memBatch) Get(key []byte) ([]byte, error) {
	v, ok := m.data[string(key)]
	if !ok {
		return nil, domain.ErrKeyNotFound
	}
	return v, nil
}

func (m *memBatch) Put(key, value []byte) error {
	m.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (m *memBatch) Delete(key []byte) error {
	delete(m.data, string(key))
	return nil
}

func (m *memBatch) MergeRefcount(key []byte, delta int64) (int64, error) {
	next := m.refcounts[string(key)] + delta
	if next <= 0 {
		delete(m.refcounts, string(key))
		return next, nil
	}
	m.refcounts[string(key)] = next
	return next, nil
}

func (m *memBatch) Scan(prefix []byte, fn func(key, value []byte) bool) error {
	for k, v := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			if !fn([]byte(k), v) {
				break
			}
		}
	}
	return nil
}

func TestStoreIsContentAddressedAndIdempotent(t *testing.T) {
	b := newMemBatch()
	data := []byte("hello world")

	hash1, err := Store(b, data)
	if err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	hash2, err := Store(b, data)
	if err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	if !bytes.Equal(hash1, hash2) {
		t.Error("Store() of identical bytes should yield the same content hash")
	}

	got, err := Get(b, hash1)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get() = %q, want %q", got, data)
	}
}

func TestStoreTwiceIncrementsRefcount(t *testing.T) {
	b := newMemBatch()
	data := []byte("shared attachment")

	hash, _ := Store(b, data)
	Store(b, data) // second reference

	if got := b.refcounts[string(keys.BlobRefcount(hash))]; got != 2 {
		t.Errorf("refcount after two Store() calls = %d, want 2", got)
	}
}

func TestReleaseDeletesPayloadAtZero(t *testing.T) {
	b := newMemBatch()
	data := []byte("ephemeral")
	hash, _ := Store(b, data)

	remaining, err := Release(b, hash)
	if err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if remaining != 0 {
		t.Errorf("Release() remaining = %d, want 0", remaining)
	}

	if _, err := Get(b, hash); !domain.Is(err, domain.KindNotFound) {
		t.Errorf("Get() after final Release() = %v, want ErrBlobNotFound", err)
	}
}

func TestReleaseKeepsPayloadWhileReferenced(t *testing.T) {
	b := newMemBatch()
	data := []byte("doubly referenced")
	hash, _ := Store(b, data)
	Store(b, data)

	remaining, err := Release(b, hash)
	if err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if remaining != 1 {
		t.Errorf("Release() remaining = %d, want 1", remaining)
	}

	if _, err := Get(b, hash); err != nil {
		t.Errorf("Get() while still referenced should succeed, got %v", err)
	}
}

func TestGetMissingBlobReturnsErrBlobNotFound(t *testing.T) {
	b := newMemBatch()
	if _, err := Get(b, []byte("nonexistent")); err != domain.ErrBlobNotFound {
		t.Errorf("Get() on missing blob = %v, want ErrBlobNotFound", err)
	}
}

func TestLinkAllLinksExtractedParts(t *testing.T) {
	b := newMemBatch()
	whole := []byte("outer||partA||partB")
	extract := func(data []byte) [][]byte {
		return [][]byte{[]byte("partA"), []byte("partB")}
	}

	hash, err := LinkAll(b, whole, extract)
	if err != nil {
		t.Fatalf("LinkAll() error: %v", err)
	}
	if _, err := Get(b, hash); err != nil {
		t.Errorf("Get() on whole blob failed: %v", err)
	}
	if _, err := Get(b, Hash([]byte("partA"))); err != nil {
		t.Errorf("Get() on extracted partA failed: %v", err)
	}
	if _, err := Get(b, Hash([]byte("partB"))); err != nil {
		t.Errorf("Get() on extracted partB failed: %v", err)
	}
}

func TestTempBlobExpirySweep(t *testing.T) {
	b := newMemBatch()
	account := ids.AccountId(1)

	oldHash, err := StoreTemp(b, account, 1000, []byte("old upload"))
	if err != nil {
		t.Fatalf("StoreTemp() error: %v", err)
	}
	_, err = StoreTemp(b, account, 5000, []byte("fresh upload"))
	if err != nil {
		t.Fatalf("StoreTemp() error: %v", err)
	}

	expired, err := ExpiredTempBlobs(b, account, 2000)
	if err != nil {
		t.Fatalf("ExpiredTempBlobs() error: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("ExpiredTempBlobs() returned %d keys, want 1", len(expired))
	}

	ts, hash, err := keys.ParseTempBlob(expired[0])
	if err != nil {
		t.Fatalf("parse expired key: %v", err)
	}
	if ts != 1000 || !bytes.Equal(hash, oldHash) {
		t.Errorf("ExpiredTempBlobs() returned wrong entry: ts=%d hash=%x", ts, hash)
	}
}
