// Package transcript normalizes engine output before insertion.
package transcript

import (
	"strings"
	"unicode"
)

// Options controls transcript normalization behavior.
type Options struct {
	// TrailingSpace appends one space so consecutive dictations join
	// cleanly at the cursor.
	TrailingSpace bool
	// CapitalizeSentences uppercases the first letter after sentence
	// boundaries and the standalone pronoun "i".
	CapitalizeSentences bool
}

// Normalize collapses whitespace and applies configured casing. Empty
// or whitespace-only input yields the empty string with no trailing
// space.
func Normalize(text string, opts Options) string {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return ""
	}

	if opts.CapitalizeSentences {
		normalized = capitalize(normalized)
	}

	if opts.TrailingSpace {
		return normalized + " "
	}
	return normalized
}

// capitalize uppercases sentence starts and the pronoun I.
func capitalize(text string) string {
	runes := []rune(text)
	startOfSentence := true

	for i, r := range runes {
		if startOfSentence && unicode.IsLetter(r) {
			runes[i] = unicode.ToUpper(r)
			startOfSentence = false
			continue
		}
		switch r {
		case '.', '!', '?':
			startOfSentence = true
		default:
			if startOfSentence && !unicode.IsSpace(r) && !unicode.IsLetter(r) {
				startOfSentence = false
			}
		}
	}

	return fixPronounI(string(runes))
}

// fixPronounI uppercases standalone "i" and its contractions.
func fixPronounI(text string) string {
	words := strings.Split(text, " ")
	for i, word := range words {
		if word == "i" {
			words[i] = "I"
			continue
		}
		if strings.HasPrefix(word, "i'") {
			words[i] = "I" + word[1:]
		}
	}
	return strings.Join(words, " ")
}
