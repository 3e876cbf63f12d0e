package cue

import "strings"

// maxPhraseWords is the number of leading/trailing words used for the
// default anchor and exit phrases.
const maxPhraseWords = 15

// ExtractPhrases derives the default anchor and exit phrases from a block's
// text: the anchor is the first min(15, n) words, the exit the last
// min(15, n). For short blocks the two may overlap partially or completely;
// that is accepted behavior, not an error.
//
// The caller guarantees text has non-empty trimmed content; empty blocks
// never reach extraction because BuildDeck skips them.
func ExtractPhrases(text string) (anchor, exit string) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return "", ""
	}

	n := min(maxPhraseWords, len(words))
	anchor = strings.Join(words[:n], " ")
	exit = strings.Join(words[len(words)-n:], " ")
	return anchor, exit
}
