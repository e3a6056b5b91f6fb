package query

import (
	"sort"

	"github.com/jmapstore/engine/internal/core/changelog"
	"github.com/jmapstore/engine/internal/core/ids"
	"github.com/jmapstore/engine/internal/core/keys"
)

// Delta is the net effect of every committed Change for a collection in the
// range (since, upTo], merged in commit order so an id inserted and later
// deleted within the range nets out of both lists.
type Delta struct {
	changelog.Change
	UpTo ids.ChangeId
}

type changelogEntry struct {
	id     ids.ChangeId
	change changelog.Change
}

// Changes answers "what changed in (account, collection) since ChangeId
// since", scanning the changelog range and folding every entry with
// changelog.Change.Merge in ascending ChangeId order. Passing since=0 folds
// the collection's entire recorded history. UpTo reports the highest
// ChangeId folded in, so a caller can persist it as its new low-water mark.
func (e *Engine) Changes(account ids.AccountId, collection ids.CollectionId, since ids.ChangeId) (Delta, error) {
	var entries []changelogEntry
	var scanErr error

	err := e.engine.Scan(keys.ChangelogPrefix(account, collection), func(key, value []byte) bool {
		id, parseErr := keys.ParseChangelogChangeID(key)
		if parseErr != nil {
			scanErr = parseErr
			return false
		}
		if id <= since {
			return true
		}
		change, decodeErr := changelog.Decode(value)
		if decodeErr != nil {
			scanErr = decodeErr
			return false
		}
		entries = append(entries, changelogEntry{id: id, change: change})
		return true
	})
	if err != nil {
		return Delta{}, err
	}
	if scanErr != nil {
		return Delta{}, scanErr
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	merged := changelog.Change{}
	upTo := since
	for _, ent := range entries {
		merged = merged.Merge(ent.change)
		if ent.id > upTo {
			upTo = ent.id
		}
	}
	return Delta{Change: merged, UpTo: upTo}, nil
}
