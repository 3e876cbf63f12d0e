package cue

import "strings"

// Card is an immutable snapshot of one script block prepared for
// recognition. Cards are built in bulk at session start (and rebuilt when
// phrases are edited) and discarded when the session ends.
type Card struct {
	// ID identifies the card; equal to the source block's ID.
	ID string

	// BlockID is the identifier of the source script block.
	BlockID string

	// Index is the card's position within the deck, not the setlist. Empty
	// blocks produce no card, so the two may differ.
	Index int

	// Text is the full block text.
	Text string

	// AnchorPhrase is the effective anchor: the override when present,
	// otherwise the extracted default.
	AnchorPhrase string

	// ExitPhrase is the effective exit phrase, with the same precedence.
	ExitPhrase string

	// DefaultAnchor and DefaultExit hold the extracted defaults regardless
	// of overrides, for "reset to default" display in the phrase editor.
	DefaultAnchor string
	DefaultExit   string

	// Precomputed normalized token sequences.
	Tokens       []string
	AnchorTokens []string
	ExitTokens   []string
}

// HasOverride reports whether either effective phrase differs from its
// extracted default.
func (c Card) HasOverride() bool {
	return c.AnchorPhrase != c.DefaultAnchor || c.ExitPhrase != c.DefaultExit
}

// BuildDeck constructs the session's cue cards from the setlist's script
// blocks and the user's phrase overrides (keyed by block ID; a missing entry
// means "use defaults"). Blocks whose trimmed text is empty are skipped, so
// every card carries non-empty anchor and exit phrases.
func BuildDeck(blocks []Block, overrides map[string]Override) []Card {
	cards := make([]Card, 0, len(blocks))

	for _, b := range blocks {
		text := strings.TrimSpace(b.Text)
		if text == "" {
			continue
		}

		defAnchor, defExit := ExtractPhrases(text)
		anchor, exit := defAnchor, defExit
		if ov, ok := overrides[b.ID]; ok {
			if s := strings.TrimSpace(ov.Anchor); s != "" {
				anchor = s
			}
			if s := strings.TrimSpace(ov.Exit); s != "" {
				exit = s
			}
		}

		cards = append(cards, Card{
			ID:            b.ID,
			BlockID:       b.ID,
			Index:         len(cards),
			Text:          text,
			AnchorPhrase:  anchor,
			ExitPhrase:    exit,
			DefaultAnchor: defAnchor,
			DefaultExit:   defExit,
			Tokens:        Normalize(text),
			AnchorTokens:  Normalize(anchor),
			ExitTokens:    Normalize(exit),
		})
	}

	return cards
}
