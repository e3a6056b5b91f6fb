package orm

import (
	"encoding/binary"
	"math"

	"github.com/jmapstore/engine/internal/core/document"
	"github.com/jmapstore/engine/internal/core/domain"
	"github.com/jmapstore/engine/internal/core/ids"
)

// Serialize encodes obj's full property map (scalar values and tag sets)
// into the reserved snapshot field's binary form:
//
//	uvarint propertyCount
//	  per property: uvarint propID, byte kind, value bytes
//	uvarint taggedCount
//	  per tagged property: uvarint propID, uvarint tagCount
//	    per tag: byte kind, uvarint id OR (uvarint len, bytes text)
func Serialize[P Property](schema *Schema[P], obj *Object[P]) ([]byte, error) {
	props := sortedProperties(schema)

	var scalarProps []P
	var taggedProps []P
	for _, p := range props {
		if schema.Defs[p].Tagged {
			if len(obj.Tags[p]) > 0 {
				taggedProps = append(taggedProps, p)
			}
			continue
		}
		if _, ok := obj.Properties[p]; ok {
			scalarProps = append(scalarProps, p)
		}
	}

	buf := make([]byte, 0, 64)
	buf = binary.AppendUvarint(buf, uint64(len(scalarProps)))
	for _, p := range scalarProps {
		v := obj.Properties[p]
		buf = binary.AppendUvarint(buf, uint64(p))
		buf = append(buf, byte(v.Kind))
		switch v.Kind {
		case ValueText:
			buf = binary.AppendUvarint(buf, uint64(len(v.Text)))
			buf = append(buf, v.Text...)
		case ValueNumber:
			var nb [8]byte
			binary.BigEndian.PutUint64(nb[:], math.Float64bits(v.Number))
			buf = append(buf, nb[:]...)
		case ValueBinary:
			buf = binary.AppendUvarint(buf, uint64(len(v.Bytes)))
			buf = append(buf, v.Bytes...)
		}
	}

	buf = binary.AppendUvarint(buf, uint64(len(taggedProps)))
	for _, p := range taggedProps {
		tags := obj.Tags[p]
		buf = binary.AppendUvarint(buf, uint64(p))
		buf = binary.AppendUvarint(buf, uint64(len(tags)))
		for _, tag := range tags {
			buf = append(buf, byte(tag.Kind))
			switch tag.Kind {
			case document.TagText:
				buf = binary.AppendUvarint(buf, uint64(len(tag.Text)))
				buf = append(buf, tag.Text...)
			default:
				buf = binary.AppendUvarint(buf, uint64(tag.ID))
			}
		}
	}
	return buf, nil
}

// Deserialize decodes a snapshot produced by Serialize back into an Object.
func Deserialize[P Property](schema *Schema[P], data []byte) (*Object[P], error) {
	obj := NewObject[P]()
	b := data

	scalarCount, n := binary.Uvarint(b)
	if n <= 0 {
		return nil, domain.New(domain.KindDeserialize, "orm.Deserialize", "truncated scalar count")
	}
	b = b[n:]

	for i := uint64(0); i < scalarCount; i++ {
		propID, n := binary.Uvarint(b)
		if n <= 0 {
			return nil, domain.New(domain.KindDeserialize, "orm.Deserialize", "truncated property id")
		}
		b = b[n:]
		if len(b) < 1 {
			return nil, domain.New(domain.KindDeserialize, "orm.Deserialize", "truncated value kind")
		}
		kind := ValueKind(b[0])
		b = b[1:]

		var v Value
		switch kind {
		case ValueText:
			l, n := binary.Uvarint(b)
			if n <= 0 || uint64(len(b[n:])) < l {
				return nil, domain.New(domain.KindDeserialize, "orm.Deserialize", "truncated text value")
			}
			b = b[n:]
			v = Text(string(b[:l]))
			b = b[l:]
		case ValueNumber:
			if len(b) < 8 {
				return nil, domain.New(domain.KindDeserialize, "orm.Deserialize", "truncated number value")
			}
			v = Number(math.Float64frombits(binary.BigEndian.Uint64(b[:8])))
			b = b[8:]
		case ValueBinary:
			l, n := binary.Uvarint(b)
			if n <= 0 || uint64(len(b[n:])) < l {
				return nil, domain.New(domain.KindDeserialize, "orm.Deserialize", "truncated binary value")
			}
			b = b[n:]
			raw := make([]byte, l)
			copy(raw, b[:l])
			v = Binary(raw)
			b = b[l:]
		default:
			return nil, domain.New(domain.KindDeserialize, "orm.Deserialize", "unknown value kind")
		}
		obj.Properties[P(propID)] = v
	}

	taggedCount, n := binary.Uvarint(b)
	if n <= 0 {
		return nil, domain.New(domain.KindDeserialize, "orm.Deserialize", "truncated tagged property count")
	}
	b = b[n:]

	for i := uint64(0); i < taggedCount; i++ {
		propID, n := binary.Uvarint(b)
		if n <= 0 {
			return nil, domain.New(domain.KindDeserialize, "orm.Deserialize", "truncated tagged property id")
		}
		b = b[n:]

		tagCount, n := binary.Uvarint(b)
		if n <= 0 {
			return nil, domain.New(domain.KindDeserialize, "orm.Deserialize", "truncated tag count")
		}
		b = b[n:]

		tags := make([]document.Tag, 0, tagCount)
		for j := uint64(0); j < tagCount; j++ {
			if len(b) < 1 {
				return nil, domain.New(domain.KindDeserialize, "orm.Deserialize", "truncated tag kind")
			}
			kind := document.TagKind(b[0])
			b = b[1:]

			var tag document.Tag
			if kind == document.TagText {
				l, n := binary.Uvarint(b)
				if n <= 0 || uint64(len(b[n:])) < l {
					return nil, domain.New(domain.KindDeserialize, "orm.Deserialize", "truncated tag text")
				}
				b = b[n:]
				tag = document.Tag{Kind: kind, Text: string(b[:l])}
				b = b[l:]
			} else {
				id, n := binary.Uvarint(b)
				if n <= 0 {
					return nil, domain.New(domain.KindDeserialize, "orm.Deserialize", "truncated tag id")
				}
				b = b[n:]
				tag = document.Tag{Kind: kind, ID: ids.TagId(id)}
			}
			tags = append(tags, tag)
		}
		obj.Tags[P(propID)] = tags
	}

	return obj, nil
}
