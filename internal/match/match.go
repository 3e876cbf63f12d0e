// Package match implements the fuzzy phrase matching that drives cue card
// navigation.
//
// The core scorer is a sliding-window positional comparison: a target phrase
// scores well only when a contiguous run of the transcript aligns with it
// word-for-word at the same relative positions. This is deliberately not an
// edit-distance or bag-of-words similarity: the anchor and exit sensitivity
// thresholds were tuned against positional semantics, so a scrambled
// transcript must score low even when it contains every target word.
//
// Two matching modes are provided:
//
//   - [Matcher.Score] is the stateless scorer over a single transcript.
//   - [Confirmed] wraps it for live detection: it prefers phrase-boundary
//     alignment and requires the threshold to be met on two consecutive
//     partial transcripts before reporting a match, suppressing single-frame
//     false positives from noisy partials.
package match

// WordCompare decides whether a transcript word matches a target word.
type WordCompare func(transcriptWord, targetWord string) bool

// StrictCompare is the default word comparison: exact token equality.
// Tokens are already normalized upstream, so no folding happens here.
func StrictCompare(a, b string) bool { return a == b }

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithWordCompare replaces the per-word comparison. The positional window
// semantics are unaffected; only individual word equality becomes more (or
// less) lenient.
func WithWordCompare(cmp WordCompare) Option {
	return func(m *Matcher) {
		if cmp != nil {
			m.eq = cmp
		}
	}
}

// Matcher scores transcript token streams against target phrases.
// A Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	eq WordCompare
}

// New returns a [Matcher] configured with the supplied options. The default
// word comparison is [StrictCompare].
func New(opts ...Option) *Matcher {
	m := &Matcher{eq: StrictCompare}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Score compares a transcript token stream against a target phrase and
// returns a confidence in [0,1]. Every window of len(target) transcript
// tokens is scored by index-wise word matches divided by len(target); the
// result is the maximum over all window offsets. Either side being empty
// yields 0; a transcript equal to the target yields 1.
func (m *Matcher) Score(transcript, target []string) float64 {
	if len(transcript) == 0 || len(target) == 0 {
		return 0
	}

	window := min(len(target), len(transcript))
	best := 0.0
	for s := 0; s <= len(transcript)-window; s++ {
		if score := m.scoreAt(transcript, target, s); score > best {
			best = score
		}
	}
	return best
}

// scoreAt scores the window of transcript starting at offset s against
// target, clipping the window to the transcript length.
func (m *Matcher) scoreAt(transcript, target []string, s int) float64 {
	end := min(s+len(target), len(transcript))
	hits := 0
	for i := s; i < end; i++ {
		if m.eq(transcript[i], target[i-s]) {
			hits++
		}
	}
	return float64(hits) / float64(len(target))
}

// Score is a convenience wrapper using strict word comparison.
func Score(transcript, target []string) float64 {
	return defaultMatcher.Score(transcript, target)
}

var defaultMatcher = New()
