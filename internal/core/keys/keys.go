package keys

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jmapstore/engine/internal/core/ids"
)

// Family is the one-byte discriminator prefixing every key, emulating
// column-family separation over a single flat keyspace.
type Family byte

const (
	FamilyValue Family = iota + 1
	FamilyIndex
	FamilyBitmapText
	FamilyBitmapTermExact
	FamilyBitmapTermStemmed
	FamilyBitmapTagStatic
	FamilyBitmapTagID
	FamilyBitmapTagText
	FamilyBitmapUsedIDs
	FamilyBitmapTombstonedIDs
	FamilyBitmapFreedIDs
	FamilyChangelog
	FamilyBlobRefcount
	FamilyBlobPayload
	FamilyBlobList
	FamilyTempBlob
	FamilyTermDict
	FamilyTermCounter
	FamilyPositionalIndex
	FamilyRaftLog
)

// Value builds the stored-value key: tag ‖ account ‖ collection ‖ document ‖
// field, all LEB128 since order within the family does not matter.
func Value(account ids.AccountId, collection ids.CollectionId, document ids.DocumentId, field ids.FieldId) []byte {
	buf := []byte{byte(FamilyValue)}
	buf = binary.AppendUvarint(buf, uint64(account))
	buf = append(buf, byte(collection))
	buf = binary.AppendUvarint(buf, uint64(document))
	buf = append(buf, byte(field))
	return buf
}

// ValuePrefix builds the prefix common to every field of one document.
func ValuePrefix(account ids.AccountId, collection ids.CollectionId, document ids.DocumentId) []byte {
	buf := []byte{byte(FamilyValue)}
	buf = binary.AppendUvarint(buf, uint64(account))
	buf = append(buf, byte(collection))
	buf = binary.AppendUvarint(buf, uint64(document))
	return buf
}

// Index builds a secondary-index row key: tag ‖ account_be ‖ collection_be ‖
// field_be ‖ value_be ‖ document_be. value must already be one of the
// sortable encodings below so lexicographic order matches the field's
// natural numeric/text order.
func Index(account ids.AccountId, collection ids.CollectionId, field ids.FieldId, value []byte, document ids.DocumentId) []byte {
	buf := IndexPrefix(account, collection, field)
	buf = append(buf, value...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(document))
	return buf
}

// IndexPrefix builds the prefix shared by every row of one (account,
// collection, field) index, for range scans.
func IndexPrefix(account ids.AccountId, collection ids.CollectionId, field ids.FieldId) []byte {
	buf := []byte{byte(FamilyIndex)}
	buf = binary.BigEndian.AppendUint32(buf, uint32(account))
	buf = append(buf, byte(collection))
	buf = append(buf, byte(field))
	return buf
}

// ParseIndexDocument extracts the trailing document id from an index row key
// built by Index: the key's last four bytes, big-endian.
func ParseIndexDocument(key []byte) (ids.DocumentId, error) {
	if len(key) < 4 {
		return 0, fmt.Errorf("keys: index key too short: %d bytes", len(key))
	}
	return ids.DocumentId(binary.BigEndian.Uint32(key[len(key)-4:])), nil
}

// SortableInt64 encodes a signed integer so that big-endian byte comparison
// matches numeric order: the sign bit is flipped.
func SortableInt64(v int64) []byte {
	u := uint64(v) ^ (1 << 63)
	return binary.BigEndian.AppendUint64(nil, u)
}

// SortableFloat64 encodes a float so that big-endian byte comparison matches
// numeric order: for non-negative values flip the sign bit, for negative
// values flip every bit.
func SortableFloat64(v float64) []byte {
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return binary.BigEndian.AppendUint64(nil, bits)
}

// SortableText truncates/pads nothing: raw UTF-8 bytes already sort
// correctly under byte-lexicographic order.
func SortableText(s string) []byte { return []byte(s) }

func bitmapKey(family Family, account ids.AccountId, collection ids.CollectionId, field ids.FieldId, suffix []byte) []byte {
	buf := []byte{byte(family)}
	buf = binary.BigEndian.AppendUint32(buf, uint32(account))
	buf = append(buf, byte(collection))
	buf = append(buf, byte(field))
	buf = append(buf, suffix...)
	return buf
}

// BitmapText builds the key for the keyword/tokenised-text bitmap of one
// normalised token within (account, collection, field).
func BitmapText(account ids.AccountId, collection ids.CollectionId, field ids.FieldId, token string) []byte {
	return bitmapKey(FamilyBitmapText, account, collection, field, []byte(token))
}

// BitmapTermExact builds the key for the exact-term bitmap of one TermId.
func BitmapTermExact(account ids.AccountId, collection ids.CollectionId, field ids.FieldId, term ids.TermId) []byte {
	return bitmapKey(FamilyBitmapTermExact, account, collection, field, binary.BigEndian.AppendUint64(nil, uint64(term)))
}

// BitmapTermStemmed builds the key for the stemmed-term bitmap of one TermId.
func BitmapTermStemmed(account ids.AccountId, collection ids.CollectionId, field ids.FieldId, term ids.TermId) []byte {
	return bitmapKey(FamilyBitmapTermStemmed, account, collection, field, binary.BigEndian.AppendUint64(nil, uint64(term)))
}

// BitmapTagStatic builds the key for a static enum tag's membership bitmap.
func BitmapTagStatic(account ids.AccountId, collection ids.CollectionId, field ids.FieldId, tag ids.TagId) []byte {
	return bitmapKey(FamilyBitmapTagStatic, account, collection, field, binary.BigEndian.AppendUint32(nil, uint32(tag)))
}

// BitmapTagID builds the key for a numeric-id tag's membership bitmap.
func BitmapTagID(account ids.AccountId, collection ids.CollectionId, field ids.FieldId, tag ids.TagId) []byte {
	return bitmapKey(FamilyBitmapTagID, account, collection, field, binary.BigEndian.AppendUint32(nil, uint32(tag)))
}

// BitmapTagText builds the key for a free-text tag's membership bitmap.
func BitmapTagText(account ids.AccountId, collection ids.CollectionId, field ids.FieldId, text string) []byte {
	return bitmapKey(FamilyBitmapTagText, account, collection, field, []byte(text))
}

func internalBitmapKey(family Family, account ids.AccountId, collection ids.CollectionId) []byte {
	buf := []byte{byte(family)}
	buf = binary.BigEndian.AppendUint32(buf, uint32(account))
	buf = append(buf, byte(collection))
	return buf
}

// BitmapUsedIDs builds the key for a (account, collection)'s USED_IDS set.
func BitmapUsedIDs(account ids.AccountId, collection ids.CollectionId) []byte {
	return internalBitmapKey(FamilyBitmapUsedIDs, account, collection)
}

// BitmapTombstonedIDs builds the key for a (account, collection)'s
// TOMBSTONED_IDS set.
func BitmapTombstonedIDs(account ids.AccountId, collection ids.CollectionId) []byte {
	return internalBitmapKey(FamilyBitmapTombstonedIDs, account, collection)
}

// BitmapFreedIDs builds the key for a (account, collection)'s FREED_IDS set.
func BitmapFreedIDs(account ids.AccountId, collection ids.CollectionId) []byte {
	return internalBitmapKey(FamilyBitmapFreedIDs, account, collection)
}

// ParseBitmapKey recovers the (account, collection) pair an internal bitmap
// key (USED_IDS/TOMBSTONED_IDS/FREED_IDS) was built for, used by the
// tombstone sweeper to discover every collection with tombstoned documents
// by scanning the FamilyBitmapTombstonedIDs prefix.
func ParseBitmapKey(key []byte) (account ids.AccountId, collection ids.CollectionId, err error) {
	if len(key) != 6 {
		return 0, 0, fmt.Errorf("keys: bitmap key wrong length: %d bytes", len(key))
	}
	return ids.AccountId(binary.BigEndian.Uint32(key[1:5])), ids.CollectionId(key[5]), nil
}

// Changelog builds the key for one changelog entry: tag ‖ account_be ‖
// collection_be ‖ change_id_be.
func Changelog(account ids.AccountId, collection ids.CollectionId, change ids.ChangeId) []byte {
	buf := ChangelogPrefix(account, collection)
	return binary.BigEndian.AppendUint64(buf, uint64(change))
}

// ChangelogPrefix builds the prefix shared by every changelog entry of one
// (account, collection), for range scans bounded by ChangeId.
func ChangelogPrefix(account ids.AccountId, collection ids.CollectionId) []byte {
	buf := []byte{byte(FamilyChangelog)}
	buf = binary.BigEndian.AppendUint32(buf, uint32(account))
	buf = append(buf, byte(collection))
	return buf
}

// ParseChangelogChangeID extracts the trailing ChangeId from a changelog key.
func ParseChangelogChangeID(key []byte) (ids.ChangeId, error) {
	if len(key) < 8 {
		return 0, fmt.Errorf("keys: changelog key too short: %d bytes", len(key))
	}
	return ids.ChangeId(binary.BigEndian.Uint64(key[len(key)-8:])), nil
}

// BlobRefcount builds the key for a content-addressed blob's reference
// counter. Blobs are global, not scoped to an account.
func BlobRefcount(hash []byte) []byte {
	return append([]byte{byte(FamilyBlobRefcount)}, hash...)
}

// BlobPayload builds the key for a content-addressed blob's bytes.
func BlobPayload(hash []byte) []byte {
	return append([]byte{byte(FamilyBlobPayload)}, hash...)
}

// BlobList builds the key for a document's ordered list of blob-key
// suffixes.
func BlobList(account ids.AccountId, collection ids.CollectionId, document ids.DocumentId) []byte {
	buf := []byte{byte(FamilyBlobList)}
	buf = binary.AppendUvarint(buf, uint64(account))
	buf = append(buf, byte(collection))
	buf = binary.AppendUvarint(buf, uint64(document))
	return buf
}

// TempBlob builds the key for a TTL-bounded temporary upload blob: tag ‖
// account_be ‖ timestamp_be ‖ hash. Big-endian timestamp lets the sweeper
// range-scan for expired entries in age order.
func TempBlob(account ids.AccountId, timestampUnix int64, hash []byte) []byte {
	buf := TempBlobPrefix(account)
	buf = binary.BigEndian.AppendUint64(buf, uint64(timestampUnix))
	buf = append(buf, hash...)
	return buf
}

// TempBlobPrefix builds the prefix for one account's temporary blobs.
func TempBlobPrefix(account ids.AccountId) []byte {
	buf := []byte{byte(FamilyTempBlob)}
	buf = binary.BigEndian.AppendUint32(buf, uint32(account))
	return buf
}

// ParseTempBlob extracts the timestamp and content hash from a key built by
// TempBlob, given the known prefix length (tag + account = 5 bytes).
func ParseTempBlob(key []byte) (timestampUnix int64, hash []byte, err error) {
	const headerLen = 1 + 4
	if len(key) < headerLen+8 {
		return 0, nil, fmt.Errorf("keys: temp blob key too short: %d bytes", len(key))
	}
	ts := binary.BigEndian.Uint64(key[headerLen : headerLen+8])
	hash = key[headerLen+8:]
	return int64(ts), hash, nil
}

// TermDict builds the key mapping a normalised word to its assigned TermId.
func TermDict(word []byte) []byte {
	return append([]byte{byte(FamilyTermDict)}, word...)
}

// TermCounterKey is the singleton key holding the most recently assigned
// TermId (absent until the first assignment).
func TermCounterKey() []byte { return []byte{byte(FamilyTermCounter)} }

// PositionalIndex builds the key for one document field's compressed term
// position index.
func PositionalIndex(account ids.AccountId, collection ids.CollectionId, document ids.DocumentId, field ids.FieldId, blobIndex uint32) []byte {
	buf := []byte{byte(FamilyPositionalIndex)}
	buf = binary.AppendUvarint(buf, uint64(account))
	buf = append(buf, byte(collection))
	buf = binary.AppendUvarint(buf, uint64(document))
	buf = append(buf, byte(field))
	buf = binary.AppendUvarint(buf, uint64(blobIndex))
	return buf
}

// RaftLog builds the key for one Raft log entry: tag ‖ term_be ‖ index_be.
func RaftLog(term, index uint64) []byte {
	buf := []byte{byte(FamilyRaftLog)}
	buf = binary.BigEndian.AppendUint64(buf, term)
	buf = binary.BigEndian.AppendUint64(buf, index)
	return buf
}

// RaftLogTermPrefix builds the prefix shared by every entry of one Raft
// term, for range scans.
func RaftLogTermPrefix(term uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{byte(FamilyRaftLog)}, term)
}

// ParseRaftLog extracts (term, index) from a Raft log key built by RaftLog.
func ParseRaftLog(key []byte) (term, index uint64, err error) {
	if len(key) != 17 {
		return 0, 0, fmt.Errorf("keys: raft log key wrong length: %d bytes", len(key))
	}
	return binary.BigEndian.Uint64(key[1:9]), binary.BigEndian.Uint64(key[9:17]), nil
}
