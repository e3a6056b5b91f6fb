package fts

import "github.com/blevesearch/go-porterstemmer"

// Stem reduces word to its Porter stem for language. Only "en" (and the
// zero value, treated as English) is stemmed; other languages return the
// word unchanged since the Porter algorithm is English-specific and would
// mangle other scripts.
func Stem(word, language string) string {
	if language != "" && language != "en" {
		return word
	}
	if word == "" {
		return word
	}
	return porterstemmer.StemString(word)
}
