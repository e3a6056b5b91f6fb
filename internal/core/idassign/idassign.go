package idassign

import (
	"fmt"
	"sync"

	"github.com/jmapstore/engine/internal/core/bitmap"
	"github.com/jmapstore/engine/internal/core/domain"
	"github.com/jmapstore/engine/internal/core/ids"
	"github.com/jmapstore/engine/pkg/cmap"
)

// Assignment is the result of allocating a document id: either a reused id
// taken from the freed cache, or a newly minted one.
type Assignment struct {
	ID     ids.DocumentId
	Reused bool
}

// Assigner allocates document and change ids for one (account, collection)
// pair. All state is in-memory; callers seed it from USED_IDS/FREED_IDS and
// the last persisted ChangeId at construction and whenever Invalidate is
// called.
type Assigner struct {
	mu sync.Mutex

	poisoned bool

	nextDocument ids.DocumentId
	freed        []ids.DocumentId

	nextChange ids.ChangeId
}

// New seeds an Assigner from the current USED_IDS/FREED_IDS bitmaps and the
// last assigned ChangeId (0 if this (account, collection) has none yet).
func New(usedIDs, freedIDs *bitmap.Set, lastChangeID ids.ChangeId) *Assigner {
	a := &Assigner{}
	a.seed(usedIDs, freedIDs, lastChangeID)
	return a
}

func (a *Assigner) seed(usedIDs, freedIDs *bitmap.Set, lastChangeID ids.ChangeId) {
	a.nextDocument = 0
	if usedIDs != nil {
		if max, ok := usedIDs.Max(); ok {
			a.nextDocument = max + 1
		}
	}
	a.freed = nil
	if freedIDs != nil {
		a.freed = freedIDs.ToSlice()
	}
	a.nextChange = lastChangeID + 1
	a.poisoned = false
}

// Invalidate reseeds the assigner, e.g. after a principal purge changed the
// authoritative bitmaps out from under this in-memory cache.
func (a *Assigner) Invalidate(usedIDs, freedIDs *bitmap.Set, lastChangeID ids.ChangeId) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seed(usedIDs, freedIDs, lastChangeID)
}

// AssignID returns a freed id if one is cached, otherwise the next unused
// id. The mutex is held only long enough to mutate the in-memory counters.
func (a *Assigner) AssignID() (assignment Assignment, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.poisoned {
		return Assignment{}, domain.ErrLockPoisoned
	}
	defer func() {
		if r := recover(); r != nil {
			a.poisoned = true
			err = domain.Wrap(domain.KindInternal, "idassign.AssignID", "panic during assignment", fmt.Errorf("%v", r))
		}
	}()

	if len(a.freed) > 0 {
		id := a.freed[len(a.freed)-1]
		a.freed = a.freed[:len(a.freed)-1]
		return Assignment{ID: id, Reused: true}, nil
	}

	id := a.nextDocument
	a.nextDocument++
	return Assignment{ID: id, Reused: false}, nil
}

// AssignChangeID returns the next monotonically increasing ChangeId.
func (a *Assigner) AssignChangeID() (id ids.ChangeId, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.poisoned {
		return 0, domain.ErrLockPoisoned
	}
	defer func() {
		if r := recover(); r != nil {
			a.poisoned = true
			err = domain.Wrap(domain.KindInternal, "idassign.AssignChangeID", "panic during assignment", fmt.Errorf("%v", r))
		}
	}()

	id = a.nextChange
	a.nextChange++
	return id, nil
}

// NoteFreed adds id to the in-memory freed cache, called by the tombstone
// sweeper right after it purges a document.
func (a *Assigner) NoteFreed(id ids.DocumentId) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.poisoned {
		a.freed = append(a.freed, id)
	}
}

// key identifies one (account, collection) pair in the Registry.
type key struct {
	account    ids.AccountId
	collection ids.CollectionId
}

// Registry holds one Assigner per (account, collection), created on first
// use via Seed.
type Registry struct {
	assigners *cmap.Map[key, *Assigner]
	creating  sync.Mutex
}

// NewRegistry returns an empty assigner registry.
func NewRegistry() *Registry {
	return &Registry{assigners: cmap.New[key, *Assigner]()}
}

// Get returns the existing assigner for (account, collection), if any.
func (r *Registry) Get(account ids.AccountId, collection ids.CollectionId) (*Assigner, bool) {
	return r.assigners.Get(key{account, collection})
}

// GetOrCreate returns the assigner for (account, collection), seeding one
// via seedFn if it does not yet exist.
func (r *Registry) GetOrCreate(account ids.AccountId, collection ids.CollectionId, seedFn func() (*Assigner, error)) (*Assigner, error) {
	k := key{account, collection}
	if a, ok := r.assigners.Get(k); ok {
		return a, nil
	}

	r.creating.Lock()
	defer r.creating.Unlock()

	if a, ok := r.assigners.Get(k); ok {
		return a, nil
	}
	a, err := seedFn()
	if err != nil {
		return nil, err
	}
	r.assigners.Set(k, a)
	return a, nil
}

// Invalidate drops the cached assigner for (account, collection) so the
// next GetOrCreate call reseeds it from storage.
func (r *Registry) Invalidate(account ids.AccountId, collection ids.CollectionId) {
	r.assigners.Delete(key{account, collection})
}
