package validate

import (
	"strings"

	"github.com/agext/levenshtein"
)

// editSimilarity is normalized edit distance in [0,1].
func editSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	return levenshtein.Similarity(a, b, nil)
}

// tokenSimilarity is Jaccard overlap of word sets, tolerant of word
// reordering ("John Doe" vs "Doe, John").
func tokenSimilarity(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}

	union := len(wordsA)
	for w := range wordsB {
		if !wordsA[w] {
			union++
		}
	}

	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if w != "" {
			words[w] = true
		}
	}
	return words
}

// Similarity is the best of edit-based and token-based scores.
func Similarity(a, b string) float64 {
	edit := editSimilarity(a, b)
	token := tokenSimilarity(a, b)
	if token > edit {
		return token
	}
	return edit
}
