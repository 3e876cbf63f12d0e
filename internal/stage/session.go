// Package stage ties the pipeline together for one performance or rehearsal
// session: it builds the cue card deck, owns the navigation engine and the
// recognition session manager, and serializes every state mutation through a
// single event loop so the engine needs no internal locking.
//
// Data flow: audio buffers go straight to the recognizer (FeedAudio);
// transcripts come back on recognizer goroutines and are posted into the
// session mailbox, where they are normalized and run through the matcher and
// the navigation engine. Analytics accumulate on the side and are returned
// once by Stop.
package stage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stagecue/stagecue/internal/analytics"
	"github.com/stagecue/stagecue/internal/cue"
	"github.com/stagecue/stagecue/internal/match"
	"github.com/stagecue/stagecue/internal/nav"
	"github.com/stagecue/stagecue/internal/observe"
	"github.com/stagecue/stagecue/internal/recog"
	"github.com/stagecue/stagecue/pkg/audio"
	"github.com/stagecue/stagecue/pkg/speech"
)

// Mode selects the session variant. Rehearsal enables the stalled-recognition
// watchdog; stage keeps the pipeline as quiet as possible during a live set.
type Mode int

const (
	ModeStage Mode = iota
	ModeRehearsal
)

func (m Mode) String() string {
	switch m {
	case ModeStage:
		return "stage"
	case ModeRehearsal:
		return "rehearsal"
	default:
		return "unknown"
	}
}

// hintBoost is the recognition-probability boost applied to the current
// card's phrases on providers that support hinting.
const hintBoost = 10

// Config configures a [Session]. Blocks and Provider are required.
type Config struct {
	// Blocks is the setlist in order. Overrides is keyed by block ID; a
	// missing entry means the extracted default phrases are used.
	Blocks    []cue.Block
	Overrides map[string]cue.Override

	Mode Mode

	Provider    speech.Provider
	Permissions speech.Permissions
	Stream      speech.StreamConfig

	// AnchorThreshold and ExitThreshold are the user's sensitivity settings
	// in (0,1]. Zero selects the navigation engine defaults.
	AnchorThreshold float64
	ExitThreshold   float64
	Debounce        time.Duration

	// PhoneticMatching relaxes per-word comparison for recognizers that
	// mishear words. The positional matching semantics are unchanged.
	PhoneticMatching bool

	Haptics nav.Haptics
	Metrics *observe.Metrics
}

// Snapshot is a point-in-time view of a running session for rendering.
type Snapshot struct {
	SessionID string
	Mode      Mode
	State     recog.State

	CardIndex int
	Card      cue.Card
	CardCount int
	Progress  float64

	PartialTranscript string
	Indicators        nav.Indicators
	AudioLevel        audio.LevelReading

	// Advisory is persistent user-visible advisory text, empty when the
	// pipeline is healthy.
	Advisory string
}

// Session is one continuous run bounded by Start and Stop. All exported
// methods are safe for concurrent use.
type Session struct {
	id   string
	mode Mode
	deck []cue.Card

	agg     *analytics.Aggregator
	engine  *nav.Engine
	rec     *recog.Recognizer
	metrics *observe.Metrics

	// events is the mailbox; the loop goroutine is the only place engine
	// methods and snapshot mutation run.
	events chan func()
	done   chan struct{}
	wg     sync.WaitGroup

	stopOnce sync.Once

	mu        sync.Mutex
	running   bool
	stopped   bool
	startedAt time.Time
	snapshot  Snapshot
	report    analytics.Report
}

// sessionRecorder fans navigation events out to analytics and metrics.
type sessionRecorder struct {
	agg     *analytics.Aggregator
	metrics *observe.Metrics
}

func (r *sessionRecorder) RecordTransition(cardID string, kind analytics.TransitionKind, confidence float64) {
	r.agg.RecordTransition(cardID, kind, confidence)
	if r.metrics != nil && kind == analytics.TransitionAutomatic {
		r.metrics.RecordDetection(context.Background(), "exit", confidence)
	}
}

func (r *sessionRecorder) RecordAnchorHit(cardID string, confidence float64) {
	r.agg.RecordAnchorHit(cardID, confidence)
	if r.metrics != nil {
		r.metrics.RecordDetection(context.Background(), "anchor", confidence)
	}
}

// NewSession builds the deck and wires the pipeline. Nothing runs until
// Start.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("stage: Provider is required")
	}
	deck := cue.BuildDeck(cfg.Blocks, cfg.Overrides)
	if len(deck) == 0 {
		return nil, fmt.Errorf("stage: setlist has no non-empty blocks")
	}

	s := &Session{
		id:      uuid.NewString(),
		mode:    cfg.Mode,
		deck:    deck,
		agg:     analytics.NewAggregator(),
		metrics: cfg.Metrics,
		events:  make(chan func(), 64),
		done:    make(chan struct{}),
	}

	var wordCompare match.WordCompare
	if cfg.PhoneticMatching {
		wordCompare = match.PhoneticCompare
	}

	rec, err := recog.New(recog.Config{
		Provider:    cfg.Provider,
		Permissions: cfg.Permissions,
		Stream:      cfg.Stream,
		Watchdog:    cfg.Mode == ModeRehearsal,
		Metrics:     cfg.Metrics,
		Recorder:    s.agg,
		OnTranscript: func(tr speech.Transcript) {
			s.post(func() { s.handleTranscript(tr) })
		},
		OnLevel: func(reading audio.LevelReading) {
			// Levels arrive per audio buffer; updating the snapshot
			// directly keeps the meter live without flooding the mailbox.
			s.mu.Lock()
			s.snapshot.AudioLevel = reading
			s.mu.Unlock()
		},
		OnAdvisory: func(text string) {
			s.mu.Lock()
			s.snapshot.Advisory = text
			s.mu.Unlock()
		},
	})
	if err != nil {
		return nil, err
	}
	s.rec = rec

	engine, err := nav.NewEngine(nav.Config{
		Deck:            deck,
		AnchorThreshold: cfg.AnchorThreshold,
		ExitThreshold:   cfg.ExitThreshold,
		Debounce:        cfg.Debounce,
		WordCompare:     wordCompare,
		Haptics:         cfg.Haptics,
		Recorder:        &sessionRecorder{agg: s.agg, metrics: cfg.Metrics},
		Flusher:         rec,
		OnCardTransition: func(newIndex int, card cue.Card) {
			s.handleCardTransition(newIndex, card)
		},
		OnAnchorDetected: func(card cue.Card, confidence float64) {
			slog.Debug("anchor confirmed",
				"session_id", s.id,
				"card", card.ID,
				"confidence", confidence)
		},
	})
	if err != nil {
		return nil, err
	}
	s.engine = engine

	s.snapshot = Snapshot{
		SessionID: s.id,
		Mode:      s.mode,
		CardIndex: 0,
		Card:      deck[0],
		CardCount: len(deck),
	}
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Start requests permissions and begins listening. Errors from the
// recognizer (permission denial, configuration failure) propagate unchanged
// and leave the session startable again once the user fixes the cause.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("stage: session already started")
	}
	s.mu.Unlock()

	// The recognizer rejects double starts, so concurrent Start callers
	// race safely: exactly one proceeds past this point.
	if err := s.rec.Start(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.rec.SetPhraseHints(cardHints(s.deck[0]))

	s.wg.Add(1)
	go s.loop()

	slog.Info("session started",
		"session_id", s.id,
		"mode", s.mode.String(),
		"cards", len(s.deck))
	return nil
}

// FeedAudio meters and forwards one PCM buffer. Safe to call from the audio
// capture goroutine at any point in the session lifecycle.
func (s *Session) FeedAudio(pcm []byte) audio.LevelReading {
	return s.rec.FeedAudio(pcm)
}

// Advance moves to the next card manually. Reports whether the position
// changed.
func (s *Session) Advance() bool {
	return s.doBool(func() bool { return s.engine.Advance(false, 0) })
}

// GoToPrevious moves back one card. Reports whether the position changed.
func (s *Session) GoToPrevious() bool {
	return s.doBool(func() bool { return s.engine.GoToPrevious() })
}

// JumpTo moves directly to the card at index. Reports whether the position
// changed.
func (s *Session) JumpTo(index int) bool {
	return s.doBool(func() bool { return s.engine.JumpTo(index) })
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot
	snap.State = s.rec.State()
	return snap
}

// Stop tears the session down and returns the accumulated analytics report.
// Idempotent; later calls return the same report.
func (s *Session) Stop() analytics.Report {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		wasRunning := s.running
		startedAt := s.startedAt
		s.running = false
		s.stopped = true
		s.mu.Unlock()

		s.rec.Stop()
		close(s.done)
		s.wg.Wait()

		report := s.agg.Report()
		if wasRunning {
			report.Duration = time.Since(startedAt)
			if s.metrics != nil {
				s.metrics.SessionDuration.Record(context.Background(), report.Duration.Seconds())
			}
		}

		s.mu.Lock()
		s.report = report
		s.mu.Unlock()

		slog.Info("session stopped",
			"session_id", s.id,
			"duration", report.Duration.Round(time.Second),
			"transitions", report.TotalTransitions,
			"automatic", report.AutomaticTransitions)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// loop is the single goroutine that runs all posted events.
func (s *Session) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case fn := <-s.events:
			fn()
		}
	}
}

// post queues fn for the loop; events posted after Stop are dropped.
func (s *Session) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.done:
	}
}

// doBool runs fn on the loop and waits for its result. Returns false when
// the session is not running.
func (s *Session) doBool(fn func() bool) bool {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return false
	}

	reply := make(chan bool, 1)
	s.post(func() { reply <- fn() })
	select {
	case ok := <-reply:
		return ok
	case <-s.done:
		return false
	}
}

// handleTranscript runs on the loop goroutine.
func (s *Session) handleTranscript(tr speech.Transcript) {
	s.mu.Lock()
	s.snapshot.PartialTranscript = tr.Text
	s.mu.Unlock()

	s.engine.ProcessTranscript(cue.Normalize(tr.Text))

	s.mu.Lock()
	s.snapshot.Indicators = s.engine.Indicators()
	s.mu.Unlock()
}

// handleCardTransition runs on the loop goroutine (engine callbacks fire
// within engine calls, which only happen there).
func (s *Session) handleCardTransition(newIndex int, card cue.Card) {
	s.mu.Lock()
	s.snapshot.CardIndex = newIndex
	s.snapshot.Card = card
	s.snapshot.Progress = s.engine.Progress()
	s.snapshot.PartialTranscript = ""
	s.snapshot.Indicators = nav.Indicators{}
	s.mu.Unlock()

	s.rec.SetPhraseHints(cardHints(card))

	slog.Info("card transition",
		"session_id", s.id,
		"index", newIndex,
		"card", card.ID)
}

// cardHints builds the phrase hint list for one card.
func cardHints(card cue.Card) []speech.PhraseHint {
	return []speech.PhraseHint{
		{Phrase: card.AnchorPhrase, Boost: hintBoost},
		{Phrase: card.ExitPhrase, Boost: hintBoost},
	}
}
