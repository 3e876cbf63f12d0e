package match

import "sync"

// requiredHits is the number of consecutive observations that must meet the
// threshold before an anchor is confirmed. Partial transcripts arrive several
// times per second, so two hits cost well under half a second of latency
// while filtering out one-frame recognition glitches.
const requiredHits = 2

// Confirmed detects a single target phrase across a stream of partial
// transcripts. It reports a confirmed match only after the confidence
// threshold is met on two consecutive observations, and it prefers the
// window aligned to the transcript tail, where the phrase currently being
// spoken accumulates.
//
// All methods are safe for concurrent use.
type Confirmed struct {
	m         *Matcher
	target    []string
	threshold float64

	mu   sync.Mutex
	hits int
}

// NewConfirmed returns a detector for target using the given confidence
// threshold. Options are forwarded to the underlying [Matcher].
func NewConfirmed(target []string, threshold float64, opts ...Option) *Confirmed {
	return &Confirmed{
		m:         New(opts...),
		target:    target,
		threshold: threshold,
	}
}

// Observe scores one partial transcript. The returned confidence is the
// tail-aligned window score when that alone meets the threshold, otherwise
// the best score over all windows. confirmed is true on the observation that
// completes the consecutive-hit requirement; the hit counter then resets so
// the next confirmation again needs consecutive hits.
func (c *Confirmed) Observe(transcript []string) (confidence float64, confirmed bool) {
	confidence = c.m.Score(transcript, c.target)
	if tail := c.tailScore(transcript); tail >= c.threshold {
		confidence = tail
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if confidence >= c.threshold {
		c.hits++
	} else {
		c.hits = 0
	}
	if c.hits >= requiredHits {
		c.hits = 0
		return confidence, true
	}
	return confidence, false
}

// Reset clears the consecutive-hit counter. Called when the recognizer
// restarts or the active card changes, so hits from a stale transcript
// stream never combine with hits from a fresh one.
func (c *Confirmed) Reset() {
	c.mu.Lock()
	c.hits = 0
	c.mu.Unlock()
}

// tailScore scores the window that ends at the transcript's final token.
func (c *Confirmed) tailScore(transcript []string) float64 {
	if len(transcript) == 0 || len(c.target) == 0 {
		return 0
	}
	s := max(0, len(transcript)-len(c.target))
	return c.m.scoreAt(transcript, c.target, s)
}
