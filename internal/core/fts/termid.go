package fts

import (
	"encoding/binary"
	"sync"

	"github.com/spaolacci/murmur3"

	"github.com/jmapstore/engine/internal/core/domain"
	"github.com/jmapstore/engine/internal/core/ids"
	"github.com/jmapstore/engine/internal/core/keys"
)

// KV is the minimal read/write surface fts needs to assign term ids: a
// single batch's view over the document store, so term dictionary lookups
// and the counter increment commit atomically with the rest of a write.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
}

const (
	termDictKindExact   = byte('e')
	termDictKindStemmed = byte('s')
)

// Assigner hands out stable global TermIds for normalised words, caching
// recent assignments by murmur3 hash so repeated words within one batch
// (common in a long text field) skip the KV round trip to the term
// dictionary entirely.
type Assigner struct {
	mu    sync.Mutex
	cache map[uint64]ids.TermId
}

// NewAssigner returns a term id assigner with an empty local cache.
func NewAssigner() *Assigner {
	return &Assigner{cache: make(map[uint64]ids.TermId)}
}

// AssignExact returns the TermId for word's exact (unstemmed) form,
// assigning a new one from the global counter if word has never been seen.
func (a *Assigner) AssignExact(kv KV, word string) (ids.TermId, error) {
	return a.assign(kv, termDictKindExact, word)
}

// AssignStemmed returns the TermId for word's stemmed form.
func (a *Assigner) AssignStemmed(kv KV, word string) (ids.TermId, error) {
	return a.assign(kv, termDictKindStemmed, word)
}

func (a *Assigner) assign(kv KV, kind byte, word string) (ids.TermId, error) {
	cacheKey := murmur3.Sum64(append([]byte{kind}, word...))

	a.mu.Lock()
	if id, ok := a.cache[cacheKey]; ok {
		a.mu.Unlock()
		return id, nil
	}
	a.mu.Unlock()

	dictKey := keys.TermDict(append([]byte{kind}, word...))
	if raw, err := kv.Get(dictKey); err == nil {
		id := ids.TermId(binary.BigEndian.Uint64(raw))
		a.mu.Lock()
		a.cache[cacheKey] = id
		a.mu.Unlock()
		return id, nil
	} else if !domain.Is(err, domain.KindNotFound) {
		return 0, err
	}

	next, err := nextTermID(kv)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(next))
	if err := kv.Put(dictKey, buf); err != nil {
		return 0, err
	}

	a.mu.Lock()
	a.cache[cacheKey] = next
	a.mu.Unlock()
	return next, nil
}

func nextTermID(kv KV) (ids.TermId, error) {
	counterKey := keys.TermCounterKey()
	raw, err := kv.Get(counterKey)
	var current uint64
	if err == nil {
		current = binary.BigEndian.Uint64(raw)
	} else if !domain.Is(err, domain.KindNotFound) {
		return 0, err
	}

	next := current + 1
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := kv.Put(counterKey, buf); err != nil {
		return 0, err
	}
	return ids.TermId(next), nil
}
