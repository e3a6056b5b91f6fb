package fts

import "github.com/jmapstore/engine/internal/core/ids"

// IndexResult is everything the write pipeline needs to record a text
// field's full-text index: the exact and stemmed TermIds to flip bits for
// in their respective bitmap families, and the encoded positional index
// blob to store under the field's PositionalIndex key.
type IndexResult struct {
	ExactTermIDs   []ids.TermId
	StemmedTermIDs []ids.TermId
	Positions      []byte
}

// Index tokenizes text, assigns exact and stemmed TermIds via assigner
// (reading/writing the term dictionary and counter through kv), and
// encodes the positional index. Duplicate words in the same field produce
// one entry per distinct TermId; positions record every occurrence.
func Index(kv KV, assigner *Assigner, text, language string) (IndexResult, error) {
	tokens := Tokenize(text, language)
	if len(tokens) == 0 {
		return IndexResult{}, nil
	}

	exactIDs := make(map[string]ids.TermId, len(tokens))
	stemmedIDs := make(map[string]ids.TermId, len(tokens))
	seenExact := make(map[ids.TermId]struct{}, len(tokens))
	seenStemmed := make(map[ids.TermId]struct{}, len(tokens))

	var result IndexResult
	for _, tok := range tokens {
		if _, ok := exactIDs[tok.Word]; !ok {
			id, err := assigner.AssignExact(kv, tok.Word)
			if err != nil {
				return IndexResult{}, err
			}
			exactIDs[tok.Word] = id
			if _, dup := seenExact[id]; !dup {
				result.ExactTermIDs = append(result.ExactTermIDs, id)
				seenExact[id] = struct{}{}
			}
		}
		if tok.Stemmed != tok.Word {
			if _, ok := stemmedIDs[tok.Stemmed]; !ok {
				id, err := assigner.AssignStemmed(kv, tok.Stemmed)
				if err != nil {
					return IndexResult{}, err
				}
				stemmedIDs[tok.Stemmed] = id
				if _, dup := seenStemmed[id]; !dup {
					result.StemmedTermIDs = append(result.StemmedTermIDs, id)
					seenStemmed[id] = struct{}{}
				}
			}
		}
	}

	positions := BuildPositions(tokens, exactIDs)
	result.Positions = EncodePositions(positions)
	return result, nil
}
