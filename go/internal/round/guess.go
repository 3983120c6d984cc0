package round

import "strings"

// GuessMatcher decides whether a chat message counts as guessing the
// secret word. The matching policy is pluggable; ExactMatch is the
// default and the only one the game ships with.
type GuessMatcher func(word, guess string) bool

// ExactMatch matches after trimming surrounding whitespace, ignoring
// case. No stemming, no fuzzy matching.
func ExactMatch(word, guess string) bool {
	word = strings.TrimSpace(word)
	guess = strings.TrimSpace(guess)
	if word == "" {
		return false
	}
	return strings.EqualFold(word, guess)
}
