package search

import "strings"

// Words ignored when checking for verbatim matches.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "or": true, "what": true, "how": true, "which": true,
}

// keywords lowercases text, trims punctuation and drops stop words.
func keywords(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		word := strings.ToLower(strings.Trim(field, ".,!?;:'\"-()[]{}"))
		if word != "" && !stopWords[word] {
			out = append(out, word)
		}
	}
	return out
}

// containsAll reports whether every keyword in terms occurs in text.
// An empty term list never matches.
func containsAll(text string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	present := make(map[string]bool)
	for _, word := range keywords(text) {
		present[word] = true
	}
	for _, term := range terms {
		if !present[term] {
			return false
		}
	}
	return true
}
