package store

import (
	"strings"

	"golang.org/x/text/cases"
)

// folder does unicode case folding, so keyword and text matching treats
// "Ördered" and "öRDERED" the same.
var folder = cases.Fold()

// Fold returns s case-folded for caseless comparison.
func Fold(s string) string {
	return folder.String(s)
}

// WordSearch matches words against message text. All words must be present,
// none of the notWords may be. Matching is caseless on folded text.
type WordSearch struct {
	words    []string
	notWords []string
}

// PrepareWordSearch returns a search that can match multiple messages.
func PrepareWordSearch(words, notWords []string) WordSearch {
	var ws WordSearch
	for _, w := range words {
		ws.words = append(ws.words, Fold(w))
	}
	for _, w := range notWords {
		ws.notWords = append(ws.notWords, Fold(w))
	}
	return ws
}

// MatchText reports whether text satisfies the search.
func (ws WordSearch) MatchText(text string) bool {
	folded := Fold(text)
	for _, w := range ws.words {
		if !strings.Contains(folded, w) {
			return false
		}
	}
	for _, w := range ws.notWords {
		if strings.Contains(folded, w) {
			return false
		}
	}
	return true
}
