package orm

import (
	"fmt"

	"github.com/jmapstore/engine/internal/core/document"
	"github.com/jmapstore/engine/internal/core/domain"
	"github.com/jmapstore/engine/internal/core/ids"
)

// Property is any small enum type a schema uses to name its fields.
type Property interface{ ~uint16 }

// ValidationError reports a required-property violation from Insert. Unlike
// a plain domain.StoreError, the offending property is a structured field a
// caller can extract with errors.As instead of scraping the message string.
type ValidationError[P Property] struct {
	Property P
	Reason   string // "has no tags" or "is empty"
}

func (e *ValidationError[P]) Error() string {
	return fmt.Sprintf("orm.Insert: required property %v %s", e.Property, e.Reason)
}

// ValueKind discriminates the shape of a stored property value.
type ValueKind uint8

const (
	ValueText ValueKind = iota
	ValueNumber
	ValueBinary
)

// Value is one property's stored value.
type Value struct {
	Kind   ValueKind
	Text   string
	Number float64
	Bytes  []byte
}

// Text returns a text Value.
func Text(s string) Value { return Value{Kind: ValueText, Text: s} }

// Number returns a numeric Value.
func Number(n float64) Value { return Value{Kind: ValueNumber, Number: n} }

// Binary returns a binary Value.
func Binary(b []byte) Value { return Value{Kind: ValueBinary, Bytes: b} }

// Equal reports whether two values are the same for merge-diffing
// purposes.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValueText:
		return v.Text == other.Text
	case ValueNumber:
		return v.Number == other.Number
	case ValueBinary:
		return string(v.Bytes) == string(other.Bytes)
	}
	return false
}

// PropertyDef describes how one property is stored, indexed, and tagged.
type PropertyDef struct {
	Field ids.FieldId

	// Required means Insert fails if the property has no value.
	Required bool

	// Indexed means the value also gets a Sort index row under Field.
	Indexed bool

	// Language is passed to Document.Text for text properties so the
	// write pipeline picks the right stemmer.
	Language string

	// TextMode picks the keyword/tokenised/full-text tokenisation strategy
	// for a text property; the zero value is TextKeyword.
	TextMode document.TextMode

	// Tagged means this property holds a tag set rather than a scalar
	// value; TagKind picks which of the three tag bitmap families it
	// belongs to.
	Tagged  bool
	TagKind document.TagKind
}

// Schema describes every property of one collection's ORM object.
type Schema[P Property] struct {
	Defs map[P]PropertyDef
}

// Object is one document's typed property map plus its tag sets.
type Object[P Property] struct {
	Properties map[P]Value
	Tags       map[P][]document.Tag
}

// NewObject returns an empty Object.
func NewObject[P Property]() *Object[P] {
	return &Object[P]{Properties: map[P]Value{}, Tags: map[P][]document.Tag{}}
}

func sortedProperties[P Property](schema *Schema[P]) []P {
	out := make([]P, 0, len(schema.Defs))
	for p := range schema.Defs {
		out = append(out, p)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Insert validates required properties are present and emits the
// snapshot plus index/tag ops for a brand-new object.
func Insert[P Property](schema *Schema[P], obj *Object[P], doc *document.Document) error {
	for p, def := range schema.Defs {
		if !def.Required {
			continue
		}
		if def.Tagged {
			if len(obj.Tags[p]) == 0 {
				return &ValidationError[P]{Property: p, Reason: "has no tags"}
			}
			continue
		}
		if _, ok := obj.Properties[p]; !ok {
			return &ValidationError[P]{Property: p, Reason: "is empty"}
		}
	}

	snapshot, err := Serialize(schema, obj)
	if err != nil {
		return domain.Wrap(domain.KindSerialize, "orm.Insert", "serialize snapshot", err)
	}
	doc.Binary(ids.FieldSnapshot, snapshot, document.Store())

	for _, p := range sortedProperties(schema) {
		def := schema.Defs[p]
		if def.Tagged {
			for _, tag := range obj.Tags[p] {
				emitTag(doc, def.Field, tag, document.Store())
			}
			continue
		}
		v, ok := obj.Properties[p]
		if !ok {
			continue
		}
		emitValue(doc, def, v, indexOptions(def))
	}
	return nil
}

// Merge diffs prev against next and emits the minimal set of clear/set
// field operations, returning whether any operation was queued. When
// nothing changed the caller should skip the commit entirely.
func Merge[P Property](schema *Schema[P], prev, next *Object[P], doc *document.Document) (bool, error) {
	changed := false

	for _, p := range sortedProperties(schema) {
		def := schema.Defs[p]
		if def.Tagged {
			if mergeTagSet(doc, def.Field, prev.Tags[p], next.Tags[p]) {
				changed = true
			}
			continue
		}

		oldV, hadOld := prev.Properties[p]
		newV, hasNew := next.Properties[p]

		switch {
		case hadOld && hasNew && oldV.Equal(newV):
			// unchanged
		case hadOld && !hasNew:
			if def.Indexed {
				emitValue(doc, def, oldV, document.Clear().With(indexOptions(def)))
			}
			changed = true
		case !hadOld && hasNew:
			emitValue(doc, def, newV, indexOptions(def))
			changed = true
		case hadOld && hasNew:
			if def.Indexed {
				emitValue(doc, def, oldV, document.Clear().With(indexOptions(def)))
			}
			emitValue(doc, def, newV, indexOptions(def))
			changed = true
		}
	}

	if !changed {
		return false, nil
	}

	snapshot, err := Serialize(schema, next)
	if err != nil {
		return false, domain.Wrap(domain.KindSerialize, "orm.Merge", "serialize snapshot", err)
	}
	doc.Binary(ids.FieldSnapshot, snapshot, document.Store())
	return true, nil
}

// Delete clears the snapshot field and every index/tag row the last
// stored snapshot contributed.
func Delete[P Property](schema *Schema[P], last *Object[P], doc *document.Document) error {
	doc.Binary(ids.FieldSnapshot, nil, document.Clear())

	for _, p := range sortedProperties(schema) {
		def := schema.Defs[p]
		if def.Tagged {
			for _, tag := range last.Tags[p] {
				emitTag(doc, def.Field, tag, document.Clear())
			}
			continue
		}
		if v, ok := last.Properties[p]; ok {
			emitValue(doc, def, v, document.Clear().With(indexOptions(def)))
		}
	}
	return nil
}

func indexOptions(def PropertyDef) document.Options {
	opts := document.Store()
	if def.Indexed {
		opts = opts.With(document.Sort())
	}
	switch def.TextMode {
	case document.TextTokenized:
		opts = opts.With(document.Tokenized())
	case document.TextFullText:
		opts = opts.With(document.FullText())
	}
	return opts
}

func emitValue(doc *document.Document, def PropertyDef, v Value, opts document.Options) {
	switch v.Kind {
	case ValueText:
		doc.Text(def.Field, v.Text, def.Language, opts)
	case ValueNumber:
		doc.Number(def.Field, v.Number, opts)
	case ValueBinary:
		doc.Binary(def.Field, v.Bytes, opts)
	}
}

func emitTag(doc *document.Document, field ids.FieldId, tag document.Tag, opts document.Options) {
	switch tag.Kind {
	case document.TagStatic:
		doc.TagStatic(field, tag.ID, opts)
	case document.TagNumeric:
		doc.TagNumeric(field, tag.ID, opts)
	case document.TagText:
		doc.TagText(field, tag.Text, opts)
	}
}

func tagKey(tag document.Tag) string {
	if tag.Kind == document.TagText {
		return fmt.Sprintf("t:%s", tag.Text)
	}
	return fmt.Sprintf("%d:%d", tag.Kind, tag.ID)
}

// mergeTagSet diffs prev and next tag sets and emits clear/set ops for the
// symmetric difference, returning whether anything changed.
func mergeTagSet(doc *document.Document, field ids.FieldId, prev, next []document.Tag) bool {
	prevSet := make(map[string]document.Tag, len(prev))
	for _, t := range prev {
		prevSet[tagKey(t)] = t
	}
	nextSet := make(map[string]document.Tag, len(next))
	for _, t := range next {
		nextSet[tagKey(t)] = t
	}

	changed := false
	for k, t := range prevSet {
		if _, ok := nextSet[k]; !ok {
			emitTag(doc, field, t, document.Clear())
			changed = true
		}
	}
	for k, t := range nextSet {
		if _, ok := prevSet[k]; !ok {
			emitTag(doc, field, t, document.Store())
			changed = true
		}
	}
	return changed
}
