// Package recog implements the continuous recognition session manager. It
// owns the audio-capture-and-transcribe pipeline and its failure recovery:
// permission checks, the Idle/Starting/Listening/Restarting/Stopped state
// machine, restart-with-backoff on fatal recognizer errors, and the
// rehearsal-mode watchdog.
//
// Transcripts that arrive while the recognizer is restarting are dropped.
// The stream accumulates state across its lifetime, so after a confirmed
// match the navigation engine asks for a flush and the manager tears the
// stream down and recreates it rather than trusting stale partials.
package recog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stagecue/stagecue/internal/analytics"
	"github.com/stagecue/stagecue/internal/observe"
	"github.com/stagecue/stagecue/internal/resilience"
	"github.com/stagecue/stagecue/pkg/audio"
	"github.com/stagecue/stagecue/pkg/speech"
)

// Defaults for the restart and watchdog timing.
const (
	DefaultRestartDelay     = 300 * time.Millisecond
	DefaultRetryBackoff     = 1200 * time.Millisecond
	DefaultWatchdogAfter    = 5 * time.Second
	DefaultWatchdogMinLevel = 0.1
)

// AdvisoryDegraded is the persistent advisory text shown when restarts keep
// failing. The session stays up; the performer just loses auto-advance until
// recognition recovers.
const AdvisoryDegraded = "recognition degraded"

var (
	// ErrConfigurationFailed wraps stream-open failures during Start. Not
	// retried automatically; the caller decides whether to start over.
	ErrConfigurationFailed = errors.New("recog: recognizer configuration failed")

	// ErrNotIdle is returned by Start on a recognizer that already started
	// or stopped.
	ErrNotIdle = errors.New("recog: recognizer already started")
)

// Recorder receives recognizer events for session analytics.
// *analytics.Aggregator satisfies it.
type Recorder interface {
	RecordRecognitionError()
	RecordRestart()
	RecordAudioLevel(level float64)
}

var _ Recorder = (*analytics.Aggregator)(nil)

// Config configures a [Recognizer]. Provider is required; zero values
// elsewhere select the defaults.
type Config struct {
	Provider speech.Provider

	// Permissions gates the microphone and transcription grants requested
	// before the pipeline starts. Nil means every grant is allowed.
	Permissions speech.Permissions

	// Stream is the recognition stream configuration passed to the
	// provider on every (re)start.
	Stream speech.StreamConfig

	// OnTranscript receives every partial and final transcript while
	// listening. OnLevel receives a reading per fed audio buffer.
	// OnAdvisory receives user-visible advisory text; an empty string
	// clears the previous advisory.
	OnTranscript func(speech.Transcript)
	OnLevel      func(audio.LevelReading)
	OnAdvisory   func(text string)

	// RestartDelay is the pause before recreating a torn-down stream.
	// RetryBackoff is the longer pause after a recreation attempt fails.
	RestartDelay time.Duration
	RetryBackoff time.Duration

	// Watchdog enables the stalled-recognition check (rehearsal mode only).
	// A restart is forced when no transcript arrived for WatchdogAfter
	// despite a smoothed level of at least WatchdogMinLevel.
	Watchdog         bool
	WatchdogAfter    time.Duration
	WatchdogMinLevel float64

	// Breaker gates restart attempts. Nil constructs a default breaker.
	Breaker *resilience.Breaker

	Meter    *audio.LevelMeter // nil constructs a default meter
	Metrics  *observe.Metrics  // nil disables metric recording
	Recorder Recorder          // nil disables analytics recording
}

// Recognizer drives one continuous recognition pipeline. Create with [New],
// start with [Recognizer.Start], and always call [Recognizer.Stop].
//
// All exported methods are safe for concurrent use.
type Recognizer struct {
	provider     speech.Provider
	permissions  speech.Permissions
	stream       speech.StreamConfig
	onTranscript func(speech.Transcript)
	onLevel      func(audio.LevelReading)
	onAdvisory   func(string)

	restartDelay     time.Duration
	retryBackoff     time.Duration
	watchdog         bool
	watchdogAfter    time.Duration
	watchdogMinLevel float64

	breaker  *resilience.Breaker
	meter    *audio.LevelMeter
	metrics  *observe.Metrics
	recorder Recorder

	mu      sync.Mutex
	state   State
	session speech.SessionHandle
	hints   []speech.PhraseHint

	flushCh  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a [Recognizer] from cfg. It does not touch the microphone;
// nothing happens until Start.
func New(cfg Config) (*Recognizer, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("recog: Provider is required")
	}
	r := &Recognizer{
		provider:         cfg.Provider,
		permissions:      cfg.Permissions,
		stream:           cfg.Stream,
		onTranscript:     cfg.OnTranscript,
		onLevel:          cfg.OnLevel,
		onAdvisory:       cfg.OnAdvisory,
		restartDelay:     cfg.RestartDelay,
		retryBackoff:     cfg.RetryBackoff,
		watchdog:         cfg.Watchdog,
		watchdogAfter:    cfg.WatchdogAfter,
		watchdogMinLevel: cfg.WatchdogMinLevel,
		breaker:          cfg.Breaker,
		meter:            cfg.Meter,
		metrics:          cfg.Metrics,
		recorder:         cfg.Recorder,
		flushCh:          make(chan struct{}, 1),
		done:             make(chan struct{}),
	}
	if r.permissions == nil {
		r.permissions = speech.GrantAll{}
	}
	if r.restartDelay <= 0 {
		r.restartDelay = DefaultRestartDelay
	}
	if r.retryBackoff <= 0 {
		r.retryBackoff = DefaultRetryBackoff
	}
	if r.watchdogAfter <= 0 {
		r.watchdogAfter = DefaultWatchdogAfter
	}
	if r.watchdogMinLevel <= 0 {
		r.watchdogMinLevel = DefaultWatchdogMinLevel
	}
	if r.breaker == nil {
		r.breaker = resilience.NewBreaker(resilience.Config{Name: "recognizer"})
	}
	if r.meter == nil {
		r.meter = audio.NewLevelMeter(audio.LevelMeterConfig{})
	}
	return r, nil
}

// State returns the current lifecycle state.
func (r *Recognizer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start requests permissions and opens the recognition stream. Permission
// denial and stream-open failures leave the recognizer Idle; denial errors
// unwrap to [speech.ErrPermissionDenied] and open failures to
// [ErrConfigurationFailed].
//
// ctx bounds the whole pipeline: when it is cancelled the recognizer shuts
// down as if Stop had been called.
func (r *Recognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return ErrNotIdle
	}
	r.mu.Unlock()

	for _, grant := range []speech.Grant{speech.GrantMicrophone, speech.GrantRecognition} {
		if err := r.permissions.Request(ctx, grant); err != nil {
			return fmt.Errorf("recog: requesting %s: %w", grant, err)
		}
	}

	r.setState(StateStarting)
	session, err := r.provider.StartStream(ctx, r.streamConfig())
	if err != nil {
		r.setState(StateIdle)
		return fmt.Errorf("%w: %w", ErrConfigurationFailed, err)
	}

	r.mu.Lock()
	r.session = session
	r.state = StateListening
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveSessions.Add(ctx, 1)
	}
	slog.Info("recognizer listening",
		"sample_rate", r.stream.SampleRate,
		"language", r.stream.Language)

	r.wg.Add(1)
	go r.run(ctx, session)
	return nil
}

// FeedAudio meters one PCM buffer and forwards it to the active stream. The
// reading is always returned, even while restarting, so the UI level meter
// keeps moving during recovery.
func (r *Recognizer) FeedAudio(pcm []byte) audio.LevelReading {
	r.meter.Observe(pcm)
	reading := r.meter.Reading()

	if r.recorder != nil {
		r.recorder.RecordAudioLevel(reading.Smoothed)
	}
	if r.metrics != nil {
		r.metrics.AudioLevel.Record(context.Background(), reading.Smoothed)
	}
	if r.onLevel != nil {
		r.onLevel(reading)
	}

	r.mu.Lock()
	session, state := r.session, r.state
	r.mu.Unlock()

	if state == StateListening && session != nil {
		err := session.SendAudio(pcm)
		if err != nil && !errors.Is(err, speech.ErrNotSupported) && !errors.Is(err, speech.ErrSessionClosed) {
			slog.Debug("recognizer audio delivery failed", "error", err)
		}
	}
	return reading
}

// SetPhraseHints replaces the hint list applied to the current stream and
// every stream created by future restarts. Providers without hinting support
// are tolerated silently.
func (r *Recognizer) SetPhraseHints(hints []speech.PhraseHint) {
	r.mu.Lock()
	r.hints = hints
	session := r.session
	r.mu.Unlock()

	if session != nil {
		if err := session.SetPhraseHints(hints); err != nil && !errors.Is(err, speech.ErrNotSupported) {
			slog.Debug("recognizer hint update failed", "error", err)
		}
	}
}

// FlushSession requests a restart to clear the recognizer's accumulated
// transcript. Called by the navigation layer after a confirmed match so the
// matched words cannot re-trigger against the next card. Non-blocking;
// redundant requests collapse into one restart.
func (r *Recognizer) FlushSession() {
	select {
	case r.flushCh <- struct{}{}:
	default:
	}
}

// Stop tears the pipeline down. Idempotent and safe to call from any state;
// a pending scheduled restart is cancelled so it cannot reactivate a stopped
// recognizer.
func (r *Recognizer) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		started := r.state != StateIdle
		r.state = StateStopped
		r.mu.Unlock()

		close(r.done)
		r.wg.Wait()

		if started && r.metrics != nil {
			r.metrics.ActiveSessions.Add(context.Background(), -1)
		}
		slog.Info("recognizer stopped")
	})
}

// run is the single goroutine that owns stream consumption, restart
// scheduling, and the watchdog. All session teardown after Start happens
// here.
func (r *Recognizer) run(ctx context.Context, session speech.SessionHandle) {
	defer r.wg.Done()

	partials := session.Partials()
	finals := session.Finals()
	errs := session.Errors()
	lastResult := time.Now()
	degraded := false

	var restartTimer *time.Timer
	var restartC <-chan time.Time
	var restartReason string

	var watchdogC <-chan time.Time
	if r.watchdog {
		interval := min(max(r.watchdogAfter/2, 10*time.Millisecond), time.Second)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		watchdogC = ticker.C
	}

	// teardown closes the current stream and schedules its replacement.
	teardown := func(reason string, delay time.Duration) {
		r.setState(StateRestarting)
		r.mu.Lock()
		r.session = nil
		r.mu.Unlock()
		if session != nil {
			_ = session.Close()
			session = nil
			partials, finals, errs = nil, nil, nil
		}
		restartReason = reason
		restartTimer = time.NewTimer(delay)
		restartC = restartTimer.C
	}

	for {
		select {
		case <-r.done:
			if restartTimer != nil {
				restartTimer.Stop()
			}
			if session != nil {
				_ = session.Close()
			}
			r.setState(StateStopped)
			return

		case <-ctx.Done():
			if restartTimer != nil {
				restartTimer.Stop()
			}
			if session != nil {
				_ = session.Close()
			}
			r.setState(StateStopped)
			return

		case tr, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			lastResult = time.Now()
			r.deliver(ctx, tr, "partial")

		case tr, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			lastResult = time.Now()
			r.deliver(ctx, tr, "final")

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if isNoise(err) {
				slog.Debug("recognizer noise", "error", err)
				if r.metrics != nil {
					r.metrics.RecordRecognitionError(ctx, "noise")
				}
				continue
			}
			// Unknown error domains restart rather than kill the session;
			// the show must go on.
			slog.Warn("recognizer error, restarting", "error", err)
			if r.metrics != nil {
				r.metrics.RecordRecognitionError(ctx, "fatal")
			}
			if r.recorder != nil {
				r.recorder.RecordRecognitionError()
			}
			teardown("error", r.restartDelay)

		case <-r.flushCh:
			if r.State() != StateListening {
				continue
			}
			slog.Debug("recognizer flush requested")
			teardown("flush", r.restartDelay)

		case <-watchdogC:
			if r.State() != StateListening {
				continue
			}
			reading := r.meter.Reading()
			if time.Since(lastResult) >= r.watchdogAfter && reading.Smoothed >= r.watchdogMinLevel {
				slog.Warn("recognition stalled, forcing restart",
					"silent_for", time.Since(lastResult).Round(time.Second),
					"level", reading.Smoothed)
				teardown("watchdog", r.restartDelay)
			}

		case <-restartC:
			restartTimer = nil
			restartC = nil

			if err := r.breaker.Allow(); err != nil {
				if !degraded {
					degraded = true
					r.advise(AdvisoryDegraded)
				}
				restartTimer = time.NewTimer(r.retryBackoff)
				restartC = restartTimer.C
				continue
			}

			ns, err := r.provider.StartStream(ctx, r.streamConfig())
			if err != nil {
				r.breaker.Failed()
				slog.Warn("recognizer recreation failed, backing off",
					"error", err,
					"backoff", r.retryBackoff)
				restartTimer = time.NewTimer(r.retryBackoff)
				restartC = restartTimer.C
				continue
			}
			r.breaker.Succeeded()

			session = ns
			partials, finals, errs = ns.Partials(), ns.Finals(), ns.Errors()
			lastResult = time.Now()

			r.mu.Lock()
			r.session = ns
			r.state = StateListening
			hints := r.hints
			r.mu.Unlock()

			if len(hints) > 0 {
				if err := ns.SetPhraseHints(hints); err != nil && !errors.Is(err, speech.ErrNotSupported) {
					slog.Debug("recognizer hint update failed", "error", err)
				}
			}
			if degraded {
				degraded = false
				r.advise("")
			}
			if r.metrics != nil {
				r.metrics.RecordRestart(ctx, restartReason)
			}
			if r.recorder != nil {
				r.recorder.RecordRestart()
			}
			slog.Info("recognizer restarted", "reason", restartReason)
		}
	}
}

// deliver forwards one transcript unless the recognizer left the Listening
// state between the channel receive and now.
func (r *Recognizer) deliver(ctx context.Context, tr speech.Transcript, kind string) {
	if r.State() != StateListening {
		return
	}
	if r.metrics != nil {
		r.metrics.RecordTranscript(ctx, kind)
	}
	if r.onTranscript != nil {
		r.onTranscript(tr)
	}
}

func (r *Recognizer) advise(text string) {
	if r.onAdvisory != nil {
		r.onAdvisory(text)
	}
}

func (r *Recognizer) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// streamConfig merges the configured stream with the current hint list.
func (r *Recognizer) streamConfig() speech.StreamConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg := r.stream
	cfg.Hints = r.hints
	return cfg
}

// isNoise classifies recognizer errors that are expected during normal
// operation and must not restart the stream.
func isNoise(err error) bool {
	return errors.Is(err, speech.ErrNoSpeech) ||
		errors.Is(err, speech.ErrTimeout) ||
		errors.Is(err, speech.ErrSessionClosed) ||
		errors.Is(err, context.Canceled)
}
