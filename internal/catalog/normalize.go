package catalog

import (
	"strings"
	"unicode"
)

// Normalize folds text into the canonical form used for matching:
// lower case words separated by single spaces, with "and" spelled "&".
func Normalize(text string) string {
	return strings.Join(tokenize(text), " ")
}

func tokenize(text string) []string {
	var (
		words []string
		cur   strings.Builder
	)

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		w := cur.String()
		if w == "and" {
			w = "&"
		}
		words = append(words, w)
		cur.Reset()
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		case r == '&':
			flush()
			words = append(words, "&")
		default:
			flush()
		}
	}
	flush()

	return words
}

// containsRun reports whether key occurs in words as a contiguous run.
func containsRun(words, key []string) bool {
	if len(key) == 0 || len(key) > len(words) {
		return false
	}
outer:
	for i := 0; i+len(key) <= len(words); i++ {
		for j, k := range key {
			if words[i+j] != k {
				continue outer
			}
		}
		return true
	}
	return false
}
