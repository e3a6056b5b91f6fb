package document

import (
	"sort"

	"github.com/jmapstore/engine/internal/core/domain"
	"github.com/jmapstore/engine/internal/core/ids"
)

// TextMode selects how a KindText operation feeds the bitmap/term-index
// families. The zero value, TextKeyword, is the simplest mode so an
// Options built without specifying one still does something sensible.
type TextMode uint8

const (
	// TextKeyword sets one bitmap bit for the whole normalised value.
	TextKeyword TextMode = iota
	// TextTokenized splits on whitespace/punctuation and sets one bitmap
	// bit per token, with no stemming.
	TextTokenized
	// TextFullText additionally assigns exact/stemmed TermIds per token
	// and appends to the document's positional term index.
	TextFullText
)

// Options controls how one field operation affects stored values, the
// secondary index, and blob storage.
type Options struct {
	// Store persists the raw value under the stored-value key family.
	Store bool
	// Sort maintains a secondary index row for range/sort queries.
	Sort bool
	// Clear means this operation removes the previously stored/indexed
	// value rather than writing a new one; the accompanying value
	// identifies which row/bit to remove.
	Clear bool
	// StoreAsBlob routes the raw bytes to the blob store instead of (or in
	// addition to) the stored-value row, at BlobIndex.
	StoreAsBlob bool
	BlobIndex   uint32
	// TextMode only applies to KindText operations.
	TextMode TextMode
}

// Store returns Options with the Store flag set.
func Store() Options { return Options{Store: true} }

// Sort returns Options with the Sort flag set.
func Sort() Options { return Options{Sort: true} }

// Clear returns Options with the Clear flag set.
func Clear() Options { return Options{Clear: true} }

// Blob returns Options routing the value to the blob store at index.
func Blob(index uint32) Options { return Options{StoreAsBlob: true, BlobIndex: index} }

// Tokenized returns Options requesting whitespace/punctuation tokenisation
// for a text field, with no stemming.
func Tokenized() Options { return Options{TextMode: TextTokenized} }

// FullText returns Options requesting stemmed, positionally-indexed
// tokenisation for a text field.
func FullText() Options { return Options{TextMode: TextFullText} }

// With returns the union of o and other; BlobIndex is taken from whichever
// side has StoreAsBlob set (other wins if both do), and TextMode is taken
// from whichever side names a non-default mode (other wins if both do).
func (o Options) With(other Options) Options {
	out := Options{
		Store:       o.Store || other.Store,
		Sort:        o.Sort || other.Sort,
		Clear:       o.Clear || other.Clear,
		StoreAsBlob: o.StoreAsBlob || other.StoreAsBlob,
		TextMode:    o.TextMode,
	}
	if other.StoreAsBlob {
		out.BlobIndex = other.BlobIndex
	} else if o.StoreAsBlob {
		out.BlobIndex = o.BlobIndex
	}
	if other.TextMode != TextKeyword {
		out.TextMode = other.TextMode
	}
	return out
}

// TagKind discriminates the three shapes a tag value can take.
type TagKind uint8

const (
	TagStatic TagKind = iota
	TagNumeric
	TagText
)

// Tag is a field value drawn from one of the three tag bitmap families.
type Tag struct {
	Kind TagKind
	ID   ids.TagId // valid for TagStatic and TagNumeric
	Text string    // valid for TagText
}

// Kind discriminates the shape of an Operation's value.
type Kind uint8

const (
	KindText Kind = iota
	KindNumber
	KindBinary
	KindTag
)

// Operation is one queued field mutation.
type Operation struct {
	Kind     Kind
	Field    ids.FieldId
	Options  Options
	Text     string
	Language string
	Number   float64
	Bytes    []byte
	Tag      Tag
}

// Document accumulates field operations with no I/O; IsEmpty tells callers
// whether a merge produced anything worth committing.
type Document struct {
	Ops []Operation
}

// New returns an empty document builder.
func New() *Document { return &Document{} }

// IsEmpty reports whether any operation has been queued.
func (d *Document) IsEmpty() bool { return len(d.Ops) == 0 }

// Text queues a text field operation: keyword, tokenised, or full-text
// depending on Options set by the caller's schema (the write pipeline
// decides tokenisation strategy per field, not the builder).
func (d *Document) Text(field ids.FieldId, text, language string, opts Options) *Document {
	d.Ops = append(d.Ops, Operation{Kind: KindText, Field: field, Options: opts, Text: text, Language: language})
	return d
}

// Number queues a numeric field operation (integer, long integer, or float
// all share this representation; the stored width is a schema concern).
func (d *Document) Number(field ids.FieldId, num float64, opts Options) *Document {
	d.Ops = append(d.Ops, Operation{Kind: KindNumber, Field: field, Options: opts, Number: num})
	return d
}

// Binary queues a binary field operation.
func (d *Document) Binary(field ids.FieldId, data []byte, opts Options) *Document {
	d.Ops = append(d.Ops, Operation{Kind: KindBinary, Field: field, Options: opts, Bytes: data})
	return d
}

// TagStatic queues a static-enum tag operation.
func (d *Document) TagStatic(field ids.FieldId, tag ids.TagId, opts Options) *Document {
	d.Ops = append(d.Ops, Operation{Kind: KindTag, Field: field, Options: opts, Tag: Tag{Kind: TagStatic, ID: tag}})
	return d
}

// TagNumeric queues a numeric-id tag operation.
func (d *Document) TagNumeric(field ids.FieldId, tag ids.TagId, opts Options) *Document {
	d.Ops = append(d.Ops, Operation{Kind: KindTag, Field: field, Options: opts, Tag: Tag{Kind: TagNumeric, ID: tag}})
	return d
}

// TagText queues a free-text tag operation.
func (d *Document) TagText(field ids.FieldId, text string, opts Options) *Document {
	d.Ops = append(d.Ops, Operation{Kind: KindTag, Field: field, Options: opts, Tag: Tag{Kind: TagText, Text: text}})
	return d
}

// Validate checks cross-operation contracts that a single Operation cannot
// enforce alone: blob indices referenced via Options.StoreAsBlob must be
// dense, starting at 0.
func (d *Document) Validate() error {
	var blobIndices []uint32
	for _, op := range d.Ops {
		if op.Options.StoreAsBlob {
			blobIndices = append(blobIndices, op.Options.BlobIndex)
		}
	}
	if len(blobIndices) == 0 {
		return nil
	}
	sort.Slice(blobIndices, func(i, j int) bool { return blobIndices[i] < blobIndices[j] })
	for i, idx := range blobIndices {
		if idx != uint32(i) {
			return domain.ErrNonContiguousBlobIndex
		}
	}
	return nil
}
