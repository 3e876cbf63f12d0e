package speech

import "time"

// Transcript represents a recognition result from a speech provider.
// Both partial (interim) and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial
	// (interim) transcript.
	IsFinal bool

	// Confidence is the provider-reported confidence score (0.0–1.0).
	// May be zero if the provider does not report confidence.
	Confidence float64

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration
}

// PhraseHint represents a phrase to boost in recognition, typically a cue
// card's anchor or exit phrase.
type PhraseHint struct {
	// Phrase is the text to boost (e.g., "thanks so much goodnight").
	Phrase string

	// Boost is the intensity of the boost on the provider's native scale.
	Boost float64
}
