package fts

import (
	"encoding/binary"
	"sort"

	"github.com/golang/snappy"

	"github.com/jmapstore/engine/internal/core/domain"
	"github.com/jmapstore/engine/internal/core/ids"
)

// BuildPositions groups tokens by their assigned exact TermId into a
// sorted-offset posting list, the shape EncodePositions persists.
func BuildPositions(tokens []Token, termIDs map[string]ids.TermId) map[ids.TermId][]uint32 {
	out := make(map[ids.TermId][]uint32, len(tokens))
	for _, tok := range tokens {
		id, ok := termIDs[tok.Word]
		if !ok {
			continue
		}
		out[id] = append(out[id], tok.Offset)
	}
	return out
}

// EncodePositions serialises a document field's term positions as
// uvarint(termCount), then per term: uvarint(termID), uvarint(count),
// delta-encoded uvarint offsets, the whole thing snappy-compressed so a
// long field's positional index stays small on disk.
func EncodePositions(positions map[ids.TermId][]uint32) []byte {
	termIDs := make([]ids.TermId, 0, len(positions))
	for id := range positions {
		termIDs = append(termIDs, id)
	}
	sort.Slice(termIDs, func(i, j int) bool { return termIDs[i] < termIDs[j] })

	buf := make([]byte, 0, 64)
	buf = binary.AppendUvarint(buf, uint64(len(termIDs)))
	for _, id := range termIDs {
		offsets := append([]uint32(nil), positions[id]...)
		sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

		buf = binary.AppendUvarint(buf, uint64(id))
		buf = binary.AppendUvarint(buf, uint64(len(offsets)))
		var prev uint32
		for _, off := range offsets {
			buf = binary.AppendUvarint(buf, uint64(off-prev))
			prev = off
		}
	}
	return snappy.Encode(nil, buf)
}

// DecodePositions reverses EncodePositions.
func DecodePositions(data []byte) (map[ids.TermId][]uint32, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, domain.Wrap(domain.KindDeserialize, "fts.DecodePositions", "snappy decode", err)
	}

	termCount, n := binary.Uvarint(raw)
	if n <= 0 {
		return nil, domain.New(domain.KindDeserialize, "fts.DecodePositions", "truncated term count")
	}
	raw = raw[n:]

	out := make(map[ids.TermId][]uint32, termCount)
	for i := uint64(0); i < termCount; i++ {
		termID, n := binary.Uvarint(raw)
		if n <= 0 {
			return nil, domain.New(domain.KindDeserialize, "fts.DecodePositions", "truncated term id")
		}
		raw = raw[n:]

		count, n := binary.Uvarint(raw)
		if n <= 0 {
			return nil, domain.New(domain.KindDeserialize, "fts.DecodePositions", "truncated offset count")
		}
		raw = raw[n:]

		offsets := make([]uint32, 0, count)
		var prev uint32
		for j := uint64(0); j < count; j++ {
			delta, n := binary.Uvarint(raw)
			if n <= 0 {
				return nil, domain.New(domain.KindDeserialize, "fts.DecodePositions", "truncated offset delta")
			}
			raw = raw[n:]
			prev += uint32(delta)
			offsets = append(offsets, prev)
		}
		out[ids.TermId(termID)] = offsets
	}
	return out, nil
}
