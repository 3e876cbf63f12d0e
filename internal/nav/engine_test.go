package nav

import (
	"testing"
	"time"

	"github.com/stagecue/stagecue/internal/analytics"
	"github.com/stagecue/stagecue/internal/cue"
)

func testDeck(t *testing.T, texts ...string) []cue.Card {
	t.Helper()
	blocks := make([]cue.Block, len(texts))
	for i, text := range texts {
		blocks[i] = cue.Block{ID: string(rune('a' + i)), Index: i, Text: text}
	}
	deck := cue.BuildDeck(blocks, nil)
	if len(deck) != len(texts) {
		t.Fatalf("deck has %d cards, want %d", len(deck), len(texts))
	}
	return deck
}

// fakeClock advances only when told to, so debounce windows are
// deterministic in tests.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock               { return &fakeClock{t: time.Unix(1000, 0)} }
func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recordedTransition struct {
	cardID     string
	kind       analytics.TransitionKind
	confidence float64
}

type fakeRecorder struct {
	transitions []recordedTransition
	anchors     []string
}

func (r *fakeRecorder) RecordTransition(cardID string, kind analytics.TransitionKind, confidence float64) {
	r.transitions = append(r.transitions, recordedTransition{cardID, kind, confidence})
}

func (r *fakeRecorder) RecordAnchorHit(cardID string, _ float64) {
	r.anchors = append(r.anchors, cardID)
}

type fakeHaptics struct{ automatic, manual int }

func (h *fakeHaptics) CardAdvanced(automatic bool) {
	if automatic {
		h.automatic++
	} else {
		h.manual++
	}
}

type fakeFlusher struct{ calls int }

func (f *fakeFlusher) FlushSession() { f.calls++ }

func TestEngine_RequiresDeck(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine(Config{}); err == nil {
		t.Error("NewEngine with an empty deck must fail")
	}
	if _, err := NewEngine(Config{Deck: testDeck(t, "hello there"), ExitThreshold: 1.5}); err == nil {
		t.Error("NewEngine with an out-of-range threshold must fail")
	}
}

func TestEngine_NavigationBounds(t *testing.T) {
	t.Parallel()

	e, err := NewEngine(Config{Deck: testDeck(t, "one card here", "two card here", "three card here")})
	if err != nil {
		t.Fatal(err)
	}

	if e.GoToPrevious() {
		t.Error("GoToPrevious on the first card must be a no-op")
	}
	if e.JumpTo(-1) || e.JumpTo(3) {
		t.Error("JumpTo out of range must be a no-op")
	}
	if !e.Advance(false, 0) || !e.Advance(false, 0) {
		t.Fatal("Advance within the deck failed")
	}
	if e.Advance(false, 0) {
		t.Error("Advance on the last card must be a no-op")
	}
	if e.CurrentIndex() != 2 || e.HasNext() || !e.HasPrevious() {
		t.Errorf("unexpected position: idx=%d hasNext=%v hasPrev=%v",
			e.CurrentIndex(), e.HasNext(), e.HasPrevious())
	}
}

func TestEngine_Progress(t *testing.T) {
	t.Parallel()

	single, err := NewEngine(Config{Deck: testDeck(t, "only card")})
	if err != nil {
		t.Fatal(err)
	}
	if got := single.Progress(); got != 0 {
		t.Errorf("single-card Progress = %v, want 0", got)
	}

	e, err := NewEngine(Config{Deck: testDeck(t, "a a", "b b", "c c")})
	if err != nil {
		t.Fatal(err)
	}
	if got := e.Progress(); got != 0 {
		t.Errorf("Progress at start = %v, want 0", got)
	}
	e.Advance(false, 0)
	if got := e.Progress(); got != 0.5 {
		t.Errorf("Progress at middle = %v, want 0.5", got)
	}
	e.Advance(false, 0)
	if got := e.Progress(); got != 1 {
		t.Errorf("Progress at end = %v, want 1", got)
	}
}

func TestEngine_ExitAdvancesAfterTwoHits(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	rec := &fakeRecorder{}
	haptics := &fakeHaptics{}
	flusher := &fakeFlusher{}
	var transitions []int

	e, err := NewEngine(Config{
		Deck: testDeck(t,
			"hey everybody how is it going tonight folks because my landlord raised the rent again and comedy pays nothing goodnight",
			"second bit about parking tickets piling up on my windshield"),
		Haptics:  haptics,
		Recorder: rec,
		Flusher:  flusher,
		Now:      clock.Now,
		OnCardTransition: func(idx int, _ cue.Card) {
			transitions = append(transitions, idx)
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// The card has 20 words, so the exit phrase is its trailing 15 words
	// and does not overlap the anchor positionally.
	exit := cue.Normalize("going tonight folks because my landlord raised the rent again and comedy pays nothing goodnight")

	// First confirmed-matcher hit: no advance yet.
	e.ProcessTranscript(exit)
	if len(transitions) != 0 {
		t.Fatal("advanced on a single observation")
	}

	// Second consecutive hit confirms and advances.
	e.ProcessTranscript(exit)
	if len(transitions) != 1 || transitions[0] != 1 {
		t.Fatalf("transitions = %v, want [1]", transitions)
	}
	if e.CurrentIndex() != 1 {
		t.Errorf("CurrentIndex = %d, want 1", e.CurrentIndex())
	}
	if haptics.automatic != 1 || haptics.manual != 0 {
		t.Errorf("haptics = %+v, want one automatic", haptics)
	}
	if flusher.calls != 1 {
		t.Errorf("FlushSession calls = %d, want 1", flusher.calls)
	}
	if len(rec.transitions) != 1 || rec.transitions[0].kind != analytics.TransitionAutomatic {
		t.Fatalf("recorded transitions = %+v", rec.transitions)
	}
	if rec.transitions[0].confidence <= 0 {
		t.Error("automatic transition must record the triggering confidence")
	}
}

func TestEngine_DuplicateSuppression(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var transitions []int

	e, err := NewEngine(Config{
		Deck: testDeck(t,
			"alpha bit thanks so much goodnight",
			"beta bit completely different words throughout",
			"gamma bit the closer material"),
		Now: clock.Now,
		OnCardTransition: func(idx int, _ cue.Card) {
			transitions = append(transitions, idx)
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	exit := cue.Normalize("alpha bit thanks so much goodnight")
	e.ProcessTranscript(exit)
	e.ProcessTranscript(exit)
	if len(transitions) != 1 {
		t.Fatalf("transitions = %v, want exactly one", transitions)
	}

	// Go back and replay the identical transcript: the card already fired
	// this round, so no second transition may result even past debounce.
	clock.Advance(5 * time.Second)
	e.GoToPrevious()
	transitions = transitions[:0]
	e.ProcessTranscript(exit)
	e.ProcessTranscript(exit)
	e.ProcessTranscript(exit)
	if len(transitions) != 0 {
		t.Fatalf("already-detected card fired again: %v", transitions)
	}

	// An explicit reset clears the round.
	e.ResetDetections()
	e.ProcessTranscript(exit)
	e.ProcessTranscript(exit)
	if len(transitions) != 1 {
		t.Fatalf("transitions after reset = %v, want one", transitions)
	}
}

func TestEngine_DebounceAbsorbsEchoes(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var transitions []int

	e, err := NewEngine(Config{
		Deck: testDeck(t,
			"one two three thanks so much goodnight",
			"uno dos tres thanks so much goodnight",
			"completely different closer material lives here now"),
		ExitThreshold:   0.5,
		AnchorThreshold: 0.5,
		Now:             clock.Now,
		OnCardTransition: func(idx int, _ cue.Card) {
			transitions = append(transitions, idx)
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Both of the first two cards share the four-word exit tail, so the
	// echoed partial right after the first trigger also scores 4/7 on the
	// second card, above the 0.5 threshold.
	echo := cue.Normalize("well well well thanks so much goodnight")
	e.ProcessTranscript(echo)
	e.ProcessTranscript(echo)
	if len(transitions) != 1 {
		t.Fatalf("transitions = %v, want one", transitions)
	}

	// Within the debounce window: suppressed.
	clock.Advance(100 * time.Millisecond)
	e.ProcessTranscript(echo)
	e.ProcessTranscript(echo)
	if len(transitions) != 1 {
		t.Fatalf("echo within debounce advanced: %v", transitions)
	}

	// After the window the second card may trigger normally.
	clock.Advance(DefaultDebounce)
	e.ProcessTranscript(echo)
	e.ProcessTranscript(echo)
	if len(transitions) != 2 {
		t.Fatalf("transitions = %v, want two", transitions)
	}
}

func TestEngine_AnchorConfirmsWithoutAdvancing(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	var anchored []string

	// 30 words, so the anchor (first 15) and exit (last 15) are disjoint.
	e, err := NewEngine(Config{
		Deck: testDeck(t,
			"hey everybody how are you doing tonight you all look wonderful out there folks because "+
				"my landlord raised the rent again and comedy apparently does not count as a real job goodnight"),
		Recorder: rec,
		OnAnchorDetected: func(card cue.Card, _ float64) {
			anchored = append(anchored, card.ID)
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	anchor := cue.Normalize("hey everybody how are you doing tonight you all look wonderful out there folks because")
	e.ProcessTranscript(anchor)
	e.ProcessTranscript(anchor)

	if len(anchored) != 1 {
		t.Fatalf("anchor detections = %v, want one", anchored)
	}
	if e.CurrentIndex() != 0 {
		t.Error("anchor detection must not advance")
	}
	if len(rec.anchors) != 1 {
		t.Errorf("recorded anchor hits = %v, want one", rec.anchors)
	}

	// The same card's anchor must not fire a second time this round.
	e.ProcessTranscript(anchor)
	e.ProcessTranscript(anchor)
	if len(anchored) != 1 {
		t.Fatalf("anchor re-fired: %v", anchored)
	}
}

func TestEngine_ManualNavigationRecordsManual(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	e, err := NewEngine(Config{
		Deck:     testDeck(t, "a a a", "b b b", "c c c"),
		Recorder: rec,
	})
	if err != nil {
		t.Fatal(err)
	}

	e.Advance(false, 0.99)
	e.JumpTo(2)
	e.GoToPrevious()

	if len(rec.transitions) != 3 {
		t.Fatalf("recorded %d transitions, want 3", len(rec.transitions))
	}
	for i, tr := range rec.transitions {
		if tr.kind != analytics.TransitionManual {
			t.Errorf("transition %d kind = %q, want manual", i, tr.kind)
		}
		if tr.confidence != 0 {
			t.Errorf("transition %d confidence = %v, want 0 for manual", i, tr.confidence)
		}
	}
}

func TestEngine_TransitionResetsIndicators(t *testing.T) {
	t.Parallel()

	e, err := NewEngine(Config{
		Deck: testDeck(t, "first card words here now", "second card words here now"),
	})
	if err != nil {
		t.Fatal(err)
	}

	e.ProcessTranscript(cue.Normalize("first card words here now"))
	if e.Indicators().ExitConfidence == 0 {
		t.Fatal("expected a non-zero exit confidence indicator")
	}
	e.Advance(false, 0)
	if ind := e.Indicators(); ind != (Indicators{}) {
		t.Errorf("indicators after transition = %+v, want zero", ind)
	}
}
