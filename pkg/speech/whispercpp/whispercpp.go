// Package whispercpp implements speech.Provider on top of the whisper.cpp
// CGO bindings, giving the cue-card engine a fully on-device recognizer with
// no network dependency. The whisper.cpp static library (libwhisper.a) and
// headers (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.
//
// whisper.cpp is not a streaming recognizer, so each session buffers speech
// audio and dispatches an inference whenever a silence gap (or the maximum
// buffer duration) is reached. Every inference result is emitted first as a
// partial and then as a final, which matches how the matchers upstream
// consume cumulative partial text.
package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/stagecue/stagecue/pkg/audio"
	"github.com/stagecue/stagecue/pkg/speech"
)

const (
	defaultLanguage           = "en"
	defaultSampleRate         = 16000
	defaultSilenceThresholdMs = 500
	defaultMaxBufferMs        = 10000

	// silenceRMS is the RMS level below which a buffer counts as silence for
	// the flush gate.
	silenceRMS = 0.015
)

// Option is a functional option for configuring a [Provider].
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code for transcription (e.g., "en",
// "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate sets the audio sample rate in Hz. Must match the PCM data
// delivered via SendAudio. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithSilenceThresholdMs sets the consecutive-silence duration (ms) that
// triggers a flush of the accumulated speech buffer. Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) { p.silenceThresholdMs = ms }
}

// WithMaxBufferMs sets the maximum buffered audio duration (ms) before a
// forced flush. Defaults to 10 000 ms.
func WithMaxBufferMs(ms int) Option {
	return func(p *Provider) { p.maxBufferMs = ms }
}

// Provider implements speech.Provider using the whisper.cpp Go bindings.
// The model is loaded once at construction and shared across all sessions.
type Provider struct {
	model    whisperlib.Model
	language string

	sampleRate         int
	silenceThresholdMs int
	maxBufferMs        int
}

// Compile-time interface assertion.
var _ speech.Provider = (*Provider)(nil)

// New creates a Provider that loads the whisper.cpp model from the given file
// path. The caller must call Close when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whispercpp: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:              model,
		language:           defaultLanguage,
		sampleRate:         defaultSampleRate,
		silenceThresholdMs: defaultSilenceThresholdMs,
		maxBufferMs:        defaultMaxBufferMs,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// StartStream opens a new recognition session. Each session creates its own
// whisper.cpp context per inference from the shared model, so multiple
// sessions can run concurrently without interference.
func (p *Provider) StartStream(ctx context.Context, cfg speech.StreamConfig) (speech.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whispercpp: context already cancelled: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = p.sampleRate
	}
	ch := cfg.Channels
	if ch <= 0 {
		ch = 1
	}

	s := &session{
		model:              p.model,
		language:           lang,
		sampleRate:         sr,
		channels:           ch,
		silenceThresholdMs: p.silenceThresholdMs,
		maxBufferMs:        p.maxBufferMs,

		audioCh:  make(chan []byte, 256),
		partials: make(chan speech.Transcript, 64),
		finals:   make(chan speech.Transcript, 64),
		errs:     make(chan error, 16),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.processLoop(ctx)

	return s, nil
}

// session is a live whisper.cpp recognition session. It implements
// speech.SessionHandle. All mutable state driving silence detection and
// buffering is confined to the processLoop goroutine.
type session struct {
	// immutable configuration (set once in StartStream)
	model              whisperlib.Model
	language           string
	sampleRate         int
	channels           int
	silenceThresholdMs int
	maxBufferMs        int

	audioCh  chan []byte
	partials chan speech.Transcript
	finals   chan speech.Transcript
	errs     chan error

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a buffer of raw int16 PCM audio for silence analysis and
// buffering.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return speech.ErrSessionClosed
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return speech.ErrSessionClosed
	}
}

// Partials returns the interim transcript channel.
func (s *session) Partials() <-chan speech.Transcript { return s.partials }

// Finals returns the authoritative transcript channel.
func (s *session) Finals() <-chan speech.Transcript { return s.finals }

// Errors returns the asynchronous error channel.
func (s *session) Errors() <-chan error { return s.errs }

// SetPhraseHints always returns an error because whisper.cpp does not expose
// a phrase-boosting API.
func (s *session) SetPhraseHints(_ []speech.PhraseHint) error {
	return fmt.Errorf("whispercpp: %w", speech.ErrNotSupported)
}

// Close terminates the session, flushes any pending speech audio, and closes
// the output channels.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// processLoop is the single goroutine responsible for silence detection,
// audio buffering, and inference dispatch.
func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)
	defer close(s.errs)

	var (
		buffer    []byte
		hadSpeech bool
		silenceMs int
	)

	bytesPerMs := s.sampleRate * s.channels * 2 / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32
	}
	maxBufferBytes := s.maxBufferMs * bytesPerMs

	doFlush := func() {
		if len(buffer) == 0 || !hadSpeech {
			buffer = nil
			hadSpeech = false
			silenceMs = 0
			return
		}

		pcm := buffer
		buffer = nil
		hadSpeech = false
		silenceMs = 0

		text, err := s.infer(pcm)
		if err != nil {
			slog.Error("whispercpp: inference failed", "error", err)
			select {
			case s.errs <- err:
			default:
			}
			return
		}
		if text == "" {
			select {
			case s.errs <- speech.ErrNoSpeech:
			default:
			}
			return
		}

		select {
		case s.partials <- speech.Transcript{Text: text}:
		default:
		}
		select {
		case s.finals <- speech.Transcript{Text: text, IsFinal: true}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			doFlush()
			return

		case <-s.done:
			doFlush()
			return

		case chunk, ok := <-s.audioCh:
			if !ok {
				doFlush()
				return
			}

			rms := audio.RMS(chunk)
			chunkMs := int(audio.DurationOf(chunk, s.sampleRate, s.channels).Milliseconds())

			if rms < silenceRMS {
				if hadSpeech {
					silenceMs += chunkMs
					buffer = append(buffer, chunk...)
					if silenceMs >= s.silenceThresholdMs {
						doFlush()
					}
				}
			} else {
				hadSpeech = true
				silenceMs = 0
				buffer = append(buffer, chunk...)
				if maxBufferBytes > 0 && len(buffer) >= maxBufferBytes {
					doFlush()
				}
			}
		}
	}
}

// infer converts the buffered PCM audio to float32 mono, runs whisper.cpp
// inference using a fresh context, and returns the concatenated text.
func (s *session) infer(pcm []byte) (string, error) {
	samples := pcmToFloat32Mono(pcm, s.channels)

	// Each whisper context is not thread-safe, but the model may be shared.
	wctx, err := s.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whispercpp: create context: %w", err)
	}

	if err := wctx.SetLanguage(s.language); err != nil {
		slog.Warn("whispercpp: failed to set language, using default",
			"language", s.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whispercpp: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whispercpp: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

// Compile-time interface assertion.
var _ speech.SessionHandle = (*session)(nil)
