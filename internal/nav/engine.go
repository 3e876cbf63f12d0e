// Package nav implements the cue card navigation engine: a small state
// machine over an ordered deck that consumes matcher verdicts and decides
// between anchor confirmation, exit-triggered advance, and manual
// navigation.
//
// The engine is not safe for unsynchronized concurrent use. The session
// owns it and serializes every call through its event loop, matching the
// single-owner model of the rest of the pipeline.
package nav

import (
	"fmt"
	"time"

	"github.com/stagecue/stagecue/internal/analytics"
	"github.com/stagecue/stagecue/internal/cue"
	"github.com/stagecue/stagecue/internal/match"
)

// Default tuning. Debounce absorbs echo partials immediately after a
// trigger; it is a safety net on top of the duplicate-suppression set.
const (
	DefaultAnchorThreshold = 0.7
	DefaultExitThreshold   = 0.7
	DefaultDebounce        = 800 * time.Millisecond
)

// DetectionKind labels the per-card indicator state for UI display.
type DetectionKind string

const (
	DetectionNone   DetectionKind = ""
	DetectionAnchor DetectionKind = "anchor"
	DetectionExit   DetectionKind = "exit"
)

// Indicators is the live per-card recognition state rendered next to the
// current card. Reset on every card transition.
type Indicators struct {
	AnchorConfidence float64
	ExitConfidence   float64
	LastDetection    DetectionKind
	LastDetectedAt   time.Time
}

// Haptics delivers tactile feedback on card transitions. Automatic and
// manual transitions use different intensities, so implementations receive
// the distinction.
type Haptics interface {
	CardAdvanced(automatic bool)
}

// NopHaptics ignores all feedback requests.
type NopHaptics struct{}

func (NopHaptics) CardAdvanced(bool) {}

// Recorder receives navigation events for aggregation. *analytics.Aggregator
// satisfies it.
type Recorder interface {
	RecordTransition(cardID string, kind analytics.TransitionKind, confidence float64)
	RecordAnchorHit(cardID string, confidence float64)
}

var _ Recorder = (*analytics.Aggregator)(nil)

// Flusher is notified after every automatic advance so the recognition
// session can clear the recognizer's accumulated transcript.
type Flusher interface {
	FlushSession()
}

// Config configures an [Engine]. Deck is required; zero values elsewhere
// select the defaults.
type Config struct {
	Deck []cue.Card

	// AnchorThreshold and ExitThreshold are the sensitivity thresholds in
	// (0,1]. Zero selects the defaults.
	AnchorThreshold float64
	ExitThreshold   float64

	// Debounce is the post-trigger cooldown. Zero selects the default;
	// a negative value disables debouncing.
	Debounce time.Duration

	// WordCompare optionally relaxes per-word equality (see
	// [match.PhoneticCompare]). Nil means strict comparison.
	WordCompare match.WordCompare

	Haptics  Haptics  // nil means no haptics
	Recorder Recorder // nil means events are not aggregated
	Flusher  Flusher  // nil means no flush notifications

	// OnCardTransition fires after the current card changes, with the new
	// index and card. OnAnchorDetected fires on a confirmed anchor; it does
	// not change the current card.
	OnCardTransition func(newIndex int, card cue.Card)
	OnAnchorDetected func(card cue.Card, confidence float64)

	// Now is the clock, injectable for tests. Nil means time.Now.
	Now func() time.Time
}

// Engine tracks the current position in the deck and processes normalized
// transcripts against the current card's phrases.
type Engine struct {
	deck []cue.Card
	idx  int

	anchorThreshold float64
	exitThreshold   float64
	debounce        time.Duration
	matchOpts       []match.Option

	// anchor and exit are the confirmed detectors for the current card,
	// rebuilt on every transition.
	anchor *match.Confirmed
	exit   *match.Confirmed

	// detected holds card-ID/kind keys for detections that already fired
	// this round. Entries block repeat triggers until ResetDetections.
	detected    map[string]struct{}
	lastTrigger time.Time

	indicators Indicators

	haptics          Haptics
	recorder         Recorder
	flusher          Flusher
	onCardTransition func(int, cue.Card)
	onAnchorDetected func(cue.Card, float64)
	now              func() time.Time
}

// NewEngine returns an engine positioned on the first card of cfg.Deck.
func NewEngine(cfg Config) (*Engine, error) {
	if len(cfg.Deck) == 0 {
		return nil, fmt.Errorf("nav: deck must contain at least one card")
	}
	for _, th := range []float64{cfg.AnchorThreshold, cfg.ExitThreshold} {
		if th < 0 || th > 1 {
			return nil, fmt.Errorf("nav: threshold %v out of range [0,1]", th)
		}
	}

	e := &Engine{
		deck:             cfg.Deck,
		anchorThreshold:  cfg.AnchorThreshold,
		exitThreshold:    cfg.ExitThreshold,
		debounce:         cfg.Debounce,
		haptics:          cfg.Haptics,
		recorder:         cfg.Recorder,
		flusher:          cfg.Flusher,
		onCardTransition: cfg.OnCardTransition,
		onAnchorDetected: cfg.OnAnchorDetected,
		now:              cfg.Now,
		detected:         make(map[string]struct{}),
	}
	if e.anchorThreshold == 0 {
		e.anchorThreshold = DefaultAnchorThreshold
	}
	if e.exitThreshold == 0 {
		e.exitThreshold = DefaultExitThreshold
	}
	if e.debounce == 0 {
		e.debounce = DefaultDebounce
	}
	if e.haptics == nil {
		e.haptics = NopHaptics{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if cfg.WordCompare != nil {
		e.matchOpts = []match.Option{match.WithWordCompare(cfg.WordCompare)}
	}

	e.rebuildDetectors()
	return e, nil
}

// CurrentIndex returns the current card's position in the deck.
func (e *Engine) CurrentIndex() int { return e.idx }

// CurrentCard returns the current card.
func (e *Engine) CurrentCard() cue.Card { return e.deck[e.idx] }

// Len returns the deck size.
func (e *Engine) Len() int { return len(e.deck) }

// HasNext reports whether a card follows the current one.
func (e *Engine) HasNext() bool { return e.idx < len(e.deck)-1 }

// HasPrevious reports whether a card precedes the current one.
func (e *Engine) HasPrevious() bool { return e.idx > 0 }

// Progress returns the position as a fraction in [0,1]. A single-card deck
// reports 0.
func (e *Engine) Progress() float64 {
	if len(e.deck) <= 1 {
		return 0
	}
	return float64(e.idx) / float64(len(e.deck)-1)
}

// Indicators returns the per-card recognition indicator state.
func (e *Engine) Indicators() Indicators { return e.indicators }

// ProcessTranscript scores one normalized partial transcript against the
// current card. Exit detection runs first; a confirmed exit advances and
// ends processing for this transcript. Otherwise a confirmed anchor is
// recorded as purely informative confirmation.
func (e *Engine) ProcessTranscript(tokens []string) {
	if len(tokens) == 0 {
		return
	}
	card := e.deck[e.idx]

	exitConf, exitOK := e.exit.Observe(tokens)
	e.indicators.ExitConfidence = exitConf
	if exitOK && e.mayTrigger(card.ID, DetectionExit) {
		e.markTriggered(card.ID, DetectionExit)
		if e.Advance(true, exitConf) && e.flusher != nil {
			e.flusher.FlushSession()
		}
		return
	}

	anchorConf, anchorOK := e.anchor.Observe(tokens)
	e.indicators.AnchorConfidence = anchorConf
	if anchorOK && e.mayTrigger(card.ID, DetectionAnchor) {
		e.markTriggered(card.ID, DetectionAnchor)
		if e.recorder != nil {
			e.recorder.RecordAnchorHit(card.ID, anchorConf)
		}
		if e.onAnchorDetected != nil {
			e.onAnchorDetected(card, anchorConf)
		}
	}
}

// Advance moves to the next card. It is a no-op returning false on the last
// card. confidence is recorded only for automatic advances.
func (e *Engine) Advance(automatic bool, confidence float64) bool {
	if !e.HasNext() {
		return false
	}
	from := e.deck[e.idx]
	e.idx++

	kind := analytics.TransitionManual
	if automatic {
		kind = analytics.TransitionAutomatic
	} else {
		confidence = 0
	}
	if e.recorder != nil {
		e.recorder.RecordTransition(from.ID, kind, confidence)
	}
	e.haptics.CardAdvanced(automatic)
	e.afterTransition()
	return true
}

// GoToPrevious moves back one card. Manual only; a no-op on the first card.
func (e *Engine) GoToPrevious() bool {
	if !e.HasPrevious() {
		return false
	}
	from := e.deck[e.idx]
	e.idx--
	if e.recorder != nil {
		e.recorder.RecordTransition(from.ID, analytics.TransitionManual, 0)
	}
	e.haptics.CardAdvanced(false)
	e.afterTransition()
	return true
}

// JumpTo moves directly to the card at index. Manual only; out-of-range
// indices and the current index are no-ops.
func (e *Engine) JumpTo(index int) bool {
	if index < 0 || index >= len(e.deck) || index == e.idx {
		return false
	}
	from := e.deck[e.idx]
	e.idx = index
	if e.recorder != nil {
		e.recorder.RecordTransition(from.ID, analytics.TransitionManual, 0)
	}
	e.haptics.CardAdvanced(false)
	e.afterTransition()
	return true
}

// ResetDetections clears the duplicate-suppression set, the debounce
// timestamp, and the per-card detectors, allowing every card to trigger
// again.
func (e *Engine) ResetDetections() {
	clear(e.detected)
	e.lastTrigger = time.Time{}
	e.rebuildDetectors()
	e.indicators = Indicators{}
}

// mayTrigger reports whether a confirmed match on cardID is allowed to act:
// the card must not have fired this kind of detection this round, and the
// debounce window from the previous trigger must have elapsed. The set is
// keyed per detection kind so an anchor confirmation never blocks the same
// card's exit advance.
func (e *Engine) mayTrigger(cardID string, kind DetectionKind) bool {
	if _, done := e.detected[detectionKey(cardID, kind)]; done {
		return false
	}
	if e.debounce > 0 && !e.lastTrigger.IsZero() && e.now().Sub(e.lastTrigger) < e.debounce {
		return false
	}
	return true
}

func (e *Engine) markTriggered(cardID string, kind DetectionKind) {
	e.detected[detectionKey(cardID, kind)] = struct{}{}
	e.lastTrigger = e.now()
	e.indicators.LastDetection = kind
	e.indicators.LastDetectedAt = e.lastTrigger
}

func detectionKey(cardID string, kind DetectionKind) string {
	return cardID + "/" + string(kind)
}

// afterTransition resets per-card indicators, rebuilds detectors for the new
// current card, and fires the transition callback.
func (e *Engine) afterTransition() {
	e.indicators = Indicators{}
	e.rebuildDetectors()
	if e.onCardTransition != nil {
		e.onCardTransition(e.idx, e.deck[e.idx])
	}
}

func (e *Engine) rebuildDetectors() {
	card := e.deck[e.idx]
	e.anchor = match.NewConfirmed(card.AnchorTokens, e.anchorThreshold, e.matchOpts...)
	e.exit = match.NewConfirmed(card.ExitTokens, e.exitThreshold, e.matchOpts...)
}
