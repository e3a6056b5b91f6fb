package query

import (
	"github.com/jmapstore/engine/internal/core/bitmap"
	"github.com/jmapstore/engine/internal/core/document"
	"github.com/jmapstore/engine/internal/core/fts"
	"github.com/jmapstore/engine/internal/core/ids"
	"github.com/jmapstore/engine/internal/core/keys"
)

// Op discriminates how a Condition's Value compares against stored rows.
type Op uint8

const (
	// OpEqual is the only comparison a bitmap-membership value (keyword,
	// tag, term) supports.
	OpEqual Op = iota
	OpLessThan
	OpLessOrEqual
	OpGreaterThan
	OpGreaterOrEqual
)

// Value resolves a Condition leaf into the matching document bitmap for one
// field within (account, collection). Equality/keyword/tag/term values
// answer with a direct bitmap lookup; sortable values answer range
// comparisons with an index range scan.
type Value interface {
	resolve(e *Engine, account ids.AccountId, collection ids.CollectionId, field ids.FieldId, op Op) (*bitmap.Set, error)
}

// Keyword matches a TextKeyword-mode field by its normalised whole value.
type Keyword string

func (k Keyword) resolve(e *Engine, account ids.AccountId, collection ids.CollectionId, field ids.FieldId, op Op) (*bitmap.Set, error) {
	if op != OpEqual {
		return nil, errUnsupportedOp("Keyword", op)
	}
	return e.readBitmap(keys.BitmapText(account, collection, field, fts.Normalize(string(k))))
}

// Token matches a TextTokenized-mode field by one of its tokens, normalised
// the same way the write pipeline tokenises the field; tokens are indexed
// and matched unstemmed.
type Token string

func (tk Token) resolve(e *Engine, account ids.AccountId, collection ids.CollectionId, field ids.FieldId, op Op) (*bitmap.Set, error) {
	if op != OpEqual {
		return nil, errUnsupportedOp("Token", op)
	}
	return e.readBitmap(keys.BitmapText(account, collection, field, fts.Normalize(string(tk))))
}

// Term matches a TextFullText-mode field by one TermId, from either the
// exact or stemmed bitmap family depending on Stemmed.
type Term struct {
	ID      ids.TermId
	Stemmed bool
}

func (t Term) resolve(e *Engine, account ids.AccountId, collection ids.CollectionId, field ids.FieldId, op Op) (*bitmap.Set, error) {
	if op != OpEqual {
		return nil, errUnsupportedOp("Term", op)
	}
	if t.Stemmed {
		return e.readBitmap(keys.BitmapTermStemmed(account, collection, field, t.ID))
	}
	return e.readBitmap(keys.BitmapTermExact(account, collection, field, t.ID))
}

// TagValue matches a tag field against one of the three tag shapes.
type TagValue document.Tag

func (tv TagValue) resolve(e *Engine, account ids.AccountId, collection ids.CollectionId, field ids.FieldId, op Op) (*bitmap.Set, error) {
	if op != OpEqual {
		return nil, errUnsupportedOp("TagValue", op)
	}
	var key []byte
	switch document.Tag(tv).Kind {
	case document.TagStatic:
		key = keys.BitmapTagStatic(account, collection, field, tv.ID)
	case document.TagNumeric:
		key = keys.BitmapTagID(account, collection, field, tv.ID)
	case document.TagText:
		key = keys.BitmapTagText(account, collection, field, tv.Text)
	}
	return e.readBitmap(key)
}

// Number compares a Sort-indexed numeric field, supporting both equality and
// range operators via the big-endian sortable-float index family.
type Number float64

func (n Number) resolve(e *Engine, account ids.AccountId, collection ids.CollectionId, field ids.FieldId, op Op) (*bitmap.Set, error) {
	return e.scanIndex(account, collection, field, keys.SortableFloat64(float64(n)), op)
}

// Text compares a Sort-indexed (but not bitmap-indexed) text field, such as
// a field stored with Sort but without any TextMode bit set.
type Text string

func (t Text) resolve(e *Engine, account ids.AccountId, collection ids.CollectionId, field ids.FieldId, op Op) (*bitmap.Set, error) {
	return e.scanIndex(account, collection, field, keys.SortableText(string(t)), op)
}

// Bytes compares a Sort-indexed binary field by raw lexicographic order.
type Bytes []byte

func (b Bytes) resolve(e *Engine, account ids.AccountId, collection ids.CollectionId, field ids.FieldId, op Op) (*bitmap.Set, error) {
	return e.scanIndex(account, collection, field, []byte(b), op)
}

func errUnsupportedOp(valueKind string, op Op) error {
	return &unsupportedOpError{valueKind: valueKind, op: op}
}

type unsupportedOpError struct {
	valueKind string
	op        Op
}

func (e *unsupportedOpError) Error() string {
	return "query: " + e.valueKind + " only supports OpEqual, not op " + opName(e.op)
}

func opName(op Op) string {
	switch op {
	case OpEqual:
		return "Equal"
	case OpLessThan:
		return "LessThan"
	case OpLessOrEqual:
		return "LessOrEqual"
	case OpGreaterThan:
		return "GreaterThan"
	case OpGreaterOrEqual:
		return "GreaterOrEqual"
	default:
		return "unknown"
	}
}
