// Package cue models the performance script as seen by the recognition core:
// read-only script blocks coming from the setlist, per-block phrase
// overrides, and the immutable cue cards built from them for one session.
package cue

// Block is one ordered, identity-bearing unit of performance text within a
// setlist. Blocks are owned by the setlist model and read-only here.
type Block struct {
	// ID is the stable identifier of the block within its setlist.
	ID string

	// Index is the block's position within the setlist.
	Index int

	// Text is the plain-text rendering of the block. Internal line breaks
	// are normalized to "\n" by the setlist layer.
	Text string
}

// Override is an optional user customization of a block's trigger phrases.
// Empty fields mean "use the extracted default".
type Override struct {
	// Anchor replaces the extracted anchor phrase when non-empty.
	Anchor string

	// Exit replaces the extracted exit phrase when non-empty.
	Exit string
}
