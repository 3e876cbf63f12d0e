// Package analytics aggregates per-session performance data for the
// post-show summary. The aggregator is a pure read-side consumer: the
// navigation engine and recognizer report events into it, and nothing in
// this package ever influences live matching or navigation.
package analytics

import (
	"fmt"
	"sync"
	"time"
)

// Thresholds for the report's recommendations.
const (
	quietAverageLevel = 0.15
	loudPeakLevel     = 0.95
	lowConfidence     = 0.5
	mostlyManualRatio = 0.5
)

// TransitionKind distinguishes how a card transition happened.
type TransitionKind string

const (
	TransitionAutomatic TransitionKind = "automatic"
	TransitionManual    TransitionKind = "manual"
)

// Transition is one recorded card transition.
type Transition struct {
	CardID     string
	Kind       TransitionKind
	Confidence float64 // 0 for manual transitions
	At         time.Time
}

// CardStats accumulates detection outcomes for one card.
type CardStats struct {
	CardID         string
	AnchorHits     int
	ExitHits       int
	ManualAdvances int
	// ConfidenceSum and ConfidenceCount back the average confidence of
	// automatic detections on this card.
	ConfidenceSum   float64
	ConfidenceCount int
}

// AverageConfidence returns the mean confidence of this card's automatic
// detections, or 0 when none were recorded.
func (s CardStats) AverageConfidence() float64 {
	if s.ConfidenceCount == 0 {
		return 0
	}
	return s.ConfidenceSum / float64(s.ConfidenceCount)
}

// Aggregator collects session events. All methods are safe for concurrent
// use. The zero value is not usable; construct with [NewAggregator].
type Aggregator struct {
	mu sync.Mutex

	startedAt   time.Time
	transitions []Transition
	cards       map[string]*CardStats

	levelSum   float64
	levelCount int
	levelPeak  float64

	recognitionErrors int
	restarts          int
}

// NewAggregator returns an empty aggregator whose session clock starts now.
func NewAggregator() *Aggregator {
	return &Aggregator{
		startedAt: time.Now(),
		cards:     make(map[string]*CardStats),
	}
}

// RecordTransition records a card transition. Automatic transitions carry
// the detection confidence that triggered them.
func (a *Aggregator) RecordTransition(cardID string, kind TransitionKind, confidence float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.transitions = append(a.transitions, Transition{
		CardID:     cardID,
		Kind:       kind,
		Confidence: confidence,
		At:         time.Now(),
	})

	stats := a.card(cardID)
	switch kind {
	case TransitionManual:
		stats.ManualAdvances++
	case TransitionAutomatic:
		stats.ExitHits++
		stats.ConfidenceSum += confidence
		stats.ConfidenceCount++
	}
}

// RecordAnchorHit records a confirmed anchor detection on a card.
func (a *Aggregator) RecordAnchorHit(cardID string, confidence float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := a.card(cardID)
	stats.AnchorHits++
	stats.ConfidenceSum += confidence
	stats.ConfidenceCount++
}

// RecordAudioLevel records one smoothed audio level sample in [0,1].
func (a *Aggregator) RecordAudioLevel(level float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.levelSum += level
	a.levelCount++
	if level > a.levelPeak {
		a.levelPeak = level
	}
}

// RecordRecognitionError counts a recognizer error surfaced to the user.
func (a *Aggregator) RecordRecognitionError() {
	a.mu.Lock()
	a.recognitionErrors++
	a.mu.Unlock()
}

// RecordRestart counts a recognizer restart.
func (a *Aggregator) RecordRestart() {
	a.mu.Lock()
	a.restarts++
	a.mu.Unlock()
}

// card returns the stats entry for cardID, creating it if needed.
// Callers must hold a.mu.
func (a *Aggregator) card(cardID string) *CardStats {
	stats, ok := a.cards[cardID]
	if !ok {
		stats = &CardStats{CardID: cardID}
		a.cards[cardID] = stats
	}
	return stats
}

// Report is the session summary produced when a session ends.
type Report struct {
	Duration time.Duration

	TotalTransitions     int
	AutomaticTransitions int
	ManualTransitions    int
	// AutomaticRatio is automatic transitions over total transitions, 0
	// when no transitions were recorded.
	AutomaticRatio float64

	// AverageConfidence covers all automatic detections, anchors included.
	AverageConfidence float64

	AverageLevel float64
	PeakLevel    float64

	RecognitionErrors int
	Restarts          int

	// ProblemCards lists cards that needed manual help or matched with low
	// confidence, worst first is not guaranteed; order follows first use.
	ProblemCards []CardStats

	Recommendations []string
}

// Report computes the session summary from everything recorded so far.
// The aggregator keeps accumulating afterwards; Report is a snapshot.
func (a *Aggregator) Report() Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := Report{
		Duration:          time.Since(a.startedAt),
		TotalTransitions:  len(a.transitions),
		RecognitionErrors: a.recognitionErrors,
		Restarts:          a.restarts,
		PeakLevel:         a.levelPeak,
	}

	confSum, confCount := 0.0, 0
	for _, tr := range a.transitions {
		switch tr.Kind {
		case TransitionAutomatic:
			r.AutomaticTransitions++
		case TransitionManual:
			r.ManualTransitions++
		}
	}
	if r.TotalTransitions > 0 {
		r.AutomaticRatio = float64(r.AutomaticTransitions) / float64(r.TotalTransitions)
	}

	for _, stats := range a.cards {
		confSum += stats.ConfidenceSum
		confCount += stats.ConfidenceCount
		if stats.ManualAdvances > 0 || (stats.ConfidenceCount > 0 && stats.AverageConfidence() < lowConfidence) {
			r.ProblemCards = append(r.ProblemCards, *stats)
		}
	}
	if confCount > 0 {
		r.AverageConfidence = confSum / float64(confCount)
	}
	if a.levelCount > 0 {
		r.AverageLevel = a.levelSum / float64(a.levelCount)
	}

	r.Recommendations = recommendations(r, a.levelCount > 0)
	return r
}

// recommendations derives human-readable advice from the aggregated numbers.
func recommendations(r Report, haveAudio bool) []string {
	var recs []string

	if haveAudio && r.AverageLevel < quietAverageLevel {
		recs = append(recs, fmt.Sprintf(
			"average mic level was %.2f; speak louder or move the mic closer", r.AverageLevel))
	}
	if r.PeakLevel > loudPeakLevel {
		recs = append(recs, fmt.Sprintf(
			"peak mic level hit %.2f; back off the mic to avoid clipping", r.PeakLevel))
	}
	if r.AutomaticTransitions > 0 && r.AverageConfidence < lowConfidence {
		recs = append(recs, fmt.Sprintf(
			"detections averaged %.2f confidence; consider shorter, more distinctive exit phrases", r.AverageConfidence))
	}
	if r.TotalTransitions > 0 && float64(r.ManualTransitions)/float64(r.TotalTransitions) > mostlyManualRatio {
		recs = append(recs, fmt.Sprintf(
			"%d of %d transitions were manual; review the anchor and exit phrases for the flagged cards",
			r.ManualTransitions, r.TotalTransitions))
	}

	return recs
}
