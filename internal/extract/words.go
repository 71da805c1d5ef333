package extract

import (
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

// countWords implements spec.md 4.7 step 4: CJK languages have no
// whitespace word boundaries, so they're counted via real UAX#29 word
// segmentation (uniseg.FirstWordInString); Latin-script languages are
// counted as whitespace-delimited words of length >= 3. Long CJK texts are
// extrapolated from a fixed-size sample rather than walked in full.
func countWords(text, lang string, cjkSampleSize int) int {
	if isCJK(lang) {
		return countCJKWords(text, cjkSampleSize)
	}
	return countLatinWords(text)
}

func countLatinWords(text string) int {
	count := 0
	for _, w := range strings.Fields(text) {
		if len([]rune(w)) >= 3 {
			count++
		}
	}
	return count
}

// countCJKWords walks text's UAX#29 word boundaries, counting segments that
// contain at least one letter or number (skipping the whitespace/punctuation
// segments the algorithm also yields).
func countCJKWords(text string, sampleSize int) int {
	if len(text) <= sampleSize {
		return countSegmentedWords(text)
	}

	sample := sampleRunes(text, sampleSize)
	sampleWords := countSegmentedWords(sample)
	if sampleWords == 0 {
		return 0
	}
	return int(float64(sampleWords) * (float64(len(text)) / float64(len(sample))))
}

func countSegmentedWords(text string) int {
	count := 0
	remaining := text
	for len(remaining) > 0 {
		word, rest, _ := uniseg.FirstWordInString(remaining, -1)
		if isWordlike(word) {
			count++
		}
		remaining = rest
	}
	return count
}

func isWordlike(segment string) bool {
	for _, r := range segment {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}
