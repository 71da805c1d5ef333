package extract

import (
	"sort"
	"strings"

	"github.com/kljensen/snowball"
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "this": {}, "with": {},
	"from": {}, "have": {}, "were": {}, "are": {}, "was": {}, "you": {},
	"your": {}, "not": {}, "but": {}, "can": {}, "all": {},
}

// topKeywords is a best-effort enrichment: stem the words in text (for
// languages snowball supports; otherwise fall back to "english"), count
// stem frequency, and return the n most frequent stems. Never gates
// extraction -- a stemming failure just yields no keywords.
func topKeywords(text, lang string, n int) []string {
	stemLang := snowballLanguage(lang)
	freq := make(map[string]int)

	for _, raw := range strings.Fields(strings.ToLower(text)) {
		word := trimPunct(raw)
		if len(word) < 4 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		stem, err := snowball.Stem(word, stemLang, true)
		if err != nil || stem == "" {
			continue
		}
		freq[stem]++
	}

	type kv struct {
		word  string
		count int
	}
	ranked := make([]kv, 0, len(freq))
	for w, c := range freq {
		ranked = append(ranked, kv{w, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.word
	}
	return out
}

func snowballLanguage(lang string) string {
	switch lang {
	case "", "en":
		return "english"
	default:
		return "english"
	}
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}
