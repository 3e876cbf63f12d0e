package cue

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldDiacritics decomposes to NFD, strips combining marks, and recomposes.
// This is deliberately locale-independent so that normalization produces the
// same tokens on every device and in every test environment.
var foldDiacritics = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Normalize canonicalizes raw recognized or typed text into a token sequence
// for comparison: diacritics folded, lowercased, every non-alphanumeric rune
// replaced by a space, then split on whitespace. Empty input yields nil.
//
// Normalize is pure and deterministic; normalizing the space-joined output of
// a previous Normalize call yields the same tokens.
func Normalize(text string) []string {
	if text == "" {
		return nil
	}

	folded, _, err := transform.String(foldDiacritics, text)
	if err != nil {
		// Transform only fails on malformed UTF-8; fall back to the raw
		// input, which the rune filter below still sanitizes.
		folded = text
	}

	folded = strings.ToLower(folded)
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded)

	return strings.Fields(cleaned)
}
