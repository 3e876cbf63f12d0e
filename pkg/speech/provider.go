// Package speech defines the Provider interface for continuous
// speech-to-text backends used by the cue-card engine.
//
// A speech provider wraps a streaming recognizer (e.g., the on-device
// whisper.cpp bindings, or a remote capture feed from a companion app) and
// exposes a uniform session interface. The central abstraction is
// SessionHandle: once opened, a session accepts raw PCM audio buffers and
// emits two streams of Transcript values: low-latency partials that drive
// phrase matching, and finals for the session record.
//
// Implementations must be safe for concurrent use. Audio input and transcript
// output channels are goroutine-safe by construction.
package speech

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by optional SessionHandle operations that the
// underlying provider does not implement (e.g., phrase hinting).
var ErrNotSupported = errors.New("speech: operation not supported by provider")

// Recognizer noise that the session manager swallows without restarting.
// Providers should wrap these sentinels so callers can classify with
// [errors.Is].
var (
	// ErrNoSpeech indicates the recognizer heard audio but detected no
	// speech in it. Expected during pauses; not a session failure.
	ErrNoSpeech = errors.New("speech: no speech detected")

	// ErrTimeout indicates the recognizer gave up waiting for speech.
	// Expected during long silences; not a session failure.
	ErrTimeout = errors.New("speech: recognition timed out")

	// ErrSessionClosed indicates a result or error was produced by a session
	// that is already being torn down. Expected during restarts.
	ErrSessionClosed = errors.New("speech: session is closed")
)

// StreamConfig describes the audio format and recognition hints for a new
// streaming session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Common value: 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by most
	// recognizers). Implementations may downmix stereo internally.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect, if supported.
	Language string

	// Hints is a list of phrases whose recognition probability should be
	// boosted, typically the current cue card's anchor and exit phrases.
	Hints []PhraseHint
}

// SessionHandle represents an open streaming recognition session. It is an
// interface so that test code can provide mock implementations without a live
// recognizer.
//
// Callers must call Close when the session is no longer needed; failing to do
// so may leak goroutines inside the provider implementation. All methods must
// be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a buffer of raw little-endian int16 PCM audio for
	// transcription. The buffer must match the SampleRate and Channels agreed
	// in StreamConfig. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel emitting low-latency interim
	// Transcript values. Partials are cumulative within a recognizer
	// utterance and drive the phrase matchers. The channel is closed when
	// the session ends.
	Partials() <-chan Transcript

	// Finals returns a read-only channel emitting authoritative Transcript
	// values once the provider commits to a result. The channel is closed
	// when the session ends.
	Finals() <-chan Transcript

	// Errors returns a read-only channel surfacing asynchronous recognizer
	// failures. Consumers classify them: noise sentinels are ignored,
	// anything else triggers the restart path. The channel is closed when
	// the session ends.
	Errors() <-chan error

	// SetPhraseHints replaces the active phrase hint list without restarting
	// the session. Providers without hinting support return ErrNotSupported.
	SetPhraseHints(hints []PhraseHint) error

	// Close terminates the session, flushes pending audio, and releases all
	// associated resources. After Close returns, the output channels are
	// closed. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any streaming speech recognizer.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// StartStream opens a new streaming recognition session. The returned
	// SessionHandle is ready to accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session (model
	// missing, endpoint unreachable, unsupported configuration, or ctx
	// already cancelled). The caller owns the handle and must Close it.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
