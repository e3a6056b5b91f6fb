package cluster

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/golang/snappy"
	"github.com/jmapstore/engine/internal/core/blobstore"
	"github.com/jmapstore/engine/internal/core/ids"
	"github.com/jmapstore/engine/internal/core/keys"
	"github.com/jmapstore/engine/internal/core/query"
	"github.com/jmapstore/engine/internal/storage/badgerkv"
)

// MailRecord is the subset of a Mail document's ORM snapshot an
// InsertMail/UpdateMail message carries on the wire.
type MailRecord struct {
	JmapID      ids.JmapId
	Keywords    []TagRef
	Mailboxes   []TagRef
	ReceivedAt  int64
	RawBodyHash []byte // blake3 content hash, as stored by blobstore.Store
}

// MailDecoder interprets one document's ORM snapshot blob as a MailRecord.
// internal/cluster carries no Mail schema of its own: whichever
// internal/core/orm schema owns an account's Mail collection supplies this
// at wiring time via CatchUp.RegisterMailCollection.
type MailDecoder interface {
	DecodeMail(snapshot []byte) (MailRecord, error)
}

// CatchUp computes the document-level catch-up stream spec §4.7 describes:
// for one (account, collection, from_change_id), the folded changelog range
// drives an InsertMail/UpdateMail/Delete message per touched document for a
// registered Mail collection, or a raw InsertChange per changelog entry for
// any other collection, whose state is opaquely replayed.
type CatchUp struct {
	engine *badgerkv.Engine
	query  *query.Engine
	mail   map[ids.CollectionId]MailDecoder
}

// NewCatchUp builds a catch-up computer over engine's current state.
func NewCatchUp(engine *badgerkv.Engine) *CatchUp {
	return &CatchUp{engine: engine, query: query.NewEngine(engine), mail: make(map[ids.CollectionId]MailDecoder)}
}

// RegisterMailCollection marks collection as Mail-shaped, decoded with
// decoder for catch-up purposes.
func (c *CatchUp) RegisterMailCollection(collection ids.CollectionId, decoder MailDecoder) {
	c.mail[collection] = decoder
}

// Next computes one maxBytes-bounded batch of catch-up Changes for
// (account, collection) strictly after since. done reports whether the
// entire currently-known range has been drained; a false done means the
// caller should call Next again, advancing since to the highest ChangeId
// any InsertChange/tracked entry in batch carried (see lastChangeIDIn).
func (c *CatchUp) Next(account ids.AccountId, collection ids.CollectionId, since ids.ChangeId, maxBytes int) ([]Change, bool, error) {
	delta, err := c.query.Changes(account, collection, since)
	if err != nil {
		return nil, false, err
	}
	if delta.IsEmpty() {
		return nil, true, nil
	}

	decoder, isMail := c.mail[collection]
	if !isMail {
		return c.opaqueBatch(account, collection, since, delta.UpTo, maxBytes)
	}

	var out []Change
	size := 0
	emit := func(ch Change, approxSize int) bool {
		out = append(out, ch)
		size += approxSize
		return size < maxBytes
	}

	for _, doc := range delta.Inserts {
		rec, body, err := c.fetchMail(account, collection, doc, decoder, true)
		if err != nil {
			return nil, false, err
		}
		if !emit(Change{
			Kind:       ChangeInsertMail,
			JmapID:     rec.JmapID,
			Keywords:   rec.Keywords,
			Mailboxes:  rec.Mailboxes,
			ReceivedAt: rec.ReceivedAt,
			Body:       body,
		}, len(body)+64) {
			return out, false, nil
		}
	}

	updated := append(append([]ids.DocumentId{}, delta.Updates...), delta.ChildUpdates...)
	for _, doc := range updated {
		rec, _, err := c.fetchMail(account, collection, doc, decoder, false)
		if err != nil {
			return nil, false, err
		}
		if !emit(Change{Kind: ChangeUpdateMail, JmapID: rec.JmapID, Keywords: rec.Keywords, Mailboxes: rec.Mailboxes}, 64) {
			return out, false, nil
		}
	}

	for _, doc := range delta.Deletes {
		if !emit(Change{Kind: ChangeDelete, DocumentID: doc}, 8) {
			return out, false, nil
		}
	}
	return out, true, nil
}

func (c *CatchUp) fetchMail(account ids.AccountId, collection ids.CollectionId, doc ids.DocumentId, decoder MailDecoder, withBody bool) (MailRecord, []byte, error) {
	snapshot, err := c.engine.Get(keys.Value(account, collection, doc, ids.FieldSnapshot))
	if err != nil {
		return MailRecord{}, nil, fmt.Errorf("cluster: fetch snapshot for doc %d: %w", doc, err)
	}
	rec, err := decoder.DecodeMail(snapshot)
	if err != nil {
		return MailRecord{}, nil, err
	}
	if !withBody || len(rec.RawBodyHash) == 0 {
		return rec, nil, nil
	}
	raw, err := blobstore.Get(c.engine, rec.RawBodyHash)
	if err != nil {
		return MailRecord{}, nil, fmt.Errorf("cluster: fetch body blob for doc %d: %w", doc, err)
	}
	return rec, compressBody(raw), nil
}

// opaqueBatch replays raw changelog rows verbatim for a collection with no
// registered MailDecoder (e.g. Mailbox, Thread), matching the "opaque
// change entries" case of spec §4.7's catch-up computation.
func (c *CatchUp) opaqueBatch(account ids.AccountId, collection ids.CollectionId, since, upTo ids.ChangeId, maxBytes int) ([]Change, bool, error) {
	type rawEntry struct {
		id    ids.ChangeId
		bytes []byte
	}
	var entries []rawEntry
	var scanErr error

	err := c.engine.Scan(keys.ChangelogPrefix(account, collection), func(key, value []byte) bool {
		id, perr := keys.ParseChangelogChangeID(key)
		if perr != nil {
			scanErr = perr
			return false
		}
		if id <= since || id > upTo {
			return true
		}
		entries = append(entries, rawEntry{id: id, bytes: append([]byte(nil), value...)})
		return true
	})
	if err != nil {
		return nil, false, err
	}
	if scanErr != nil {
		return nil, false, scanErr
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	var out []Change
	size := 0
	for _, e := range entries {
		out = append(out, Change{Kind: ChangeInsertChange, ChangeID: e.id, EntryBytes: e.bytes})
		size += len(e.bytes) + 16
		if size >= maxBytes {
			return out, false, nil
		}
	}
	return out, true, nil
}

// compressBody snappy-compresses raw with a 4-byte big-endian original
// length prefix, standing in for the source wire format's lz4-prepended-size
// encoding (see DESIGN.md: lz4 has no library in this corpus, snappy already
// carries the positional-index compression concern and is reused here).
func compressBody(raw []byte) []byte {
	compressed := snappy.Encode(nil, raw)
	out := make([]byte, 4+len(compressed))
	binary.BigEndian.PutUint32(out[:4], uint32(len(raw)))
	copy(out[4:], compressed)
	return out
}

// decompressBody reverses compressBody.
func decompressBody(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("cluster: truncated body payload")
	}
	n := binary.BigEndian.Uint32(data[:4])
	return snappy.Decode(make([]byte, 0, n), data[4:])
}
