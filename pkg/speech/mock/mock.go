// Package mock provides test doubles for the speech package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// StreamConfig. Use Session to feed controlled Transcript values and inspect
// which audio buffers were delivered. Use Permissions to simulate granted or
// denied OS permissions.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.StartStream(ctx, cfg)
//	sess.EmitPartial("hey everybody", 0.9)
package mock

import (
	"context"
	"sync"

	"github.com/stagecue/stagecue/pkg/speech"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg speech.StreamConfig
}

// Provider is a mock implementation of speech.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by StartStream. If nil,
	// StartStream returns a fresh Session with buffered channels.
	Session speech.SessionHandle

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg speech.StreamConfig) (speech.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// StartStreamCount returns the number of StartStream calls. Thread-safe.
func (p *Provider) StartStreamCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

// Compile-time interface assertion.
var _ speech.Provider = (*Provider)(nil)

// SessionFactory is a mock provider that returns a new Session per
// StartStream call, handing each to the optional OnSession callback. Useful
// for restart tests where every session must be distinct.
type SessionFactory struct {
	mu sync.Mutex

	// OnSession, if non-nil, is called with each newly created Session.
	OnSession func(*Session)

	// Errs holds errors to return from successive StartStream calls; once
	// exhausted, calls succeed.
	Errs []error

	// Sessions records every Session handed out.
	Sessions []*Session
}

// StartStream returns the next queued error, or a fresh Session.
func (f *SessionFactory) StartStream(_ context.Context, _ speech.StreamConfig) (speech.SessionHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Errs) > 0 {
		err := f.Errs[0]
		f.Errs = f.Errs[1:]
		if err != nil {
			return nil, err
		}
	}
	s := NewSession()
	f.Sessions = append(f.Sessions, s)
	if f.OnSession != nil {
		f.OnSession(s)
	}
	return s, nil
}

// SessionCount returns the number of sessions handed out. Thread-safe.
func (f *SessionFactory) SessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sessions)
}

// SessionAt returns the i-th session handed out, or nil. Thread-safe.
func (f *SessionFactory) SessionAt(i int) *Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.Sessions) {
		return nil
	}
	return f.Sessions[i]
}

// Compile-time interface assertion.
var _ speech.Provider = (*SessionFactory)(nil)

// SendAudioCall records a single invocation of Session.SendAudio.
type SendAudioCall struct {
	// Chunk is a copy of the audio bytes passed to SendAudio.
	Chunk []byte
}

// SetPhraseHintsCall records a single invocation of Session.SetPhraseHints.
type SetPhraseHintsCall struct {
	// Hints is a copy of the hint list passed to SetPhraseHints.
	Hints []speech.PhraseHint
}

// Session is a mock implementation of speech.SessionHandle. Use the Emit*
// helpers to push transcripts and errors to the consumer.
type Session struct {
	mu sync.Mutex

	partials chan speech.Transcript
	finals   chan speech.Transcript
	errs     chan error
	closed   bool

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// SetPhraseHintsErr, if non-nil, is returned by every SetPhraseHints call.
	SetPhraseHintsErr error

	// CloseErr, if non-nil, is returned by the first Close.
	CloseErr error

	// --- Call records ---

	// SendAudioCalls records every call to SendAudio in order.
	SendAudioCalls []SendAudioCall

	// SetPhraseHintsCalls records every call to SetPhraseHints in order.
	SetPhraseHintsCalls []SetPhraseHintsCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewSession returns a Session with buffered output channels ready for use.
func NewSession() *Session {
	return &Session{
		partials: make(chan speech.Transcript, 16),
		finals:   make(chan speech.Transcript, 16),
		errs:     make(chan error, 16),
	}
}

// EmitPartial pushes a partial transcript to the consumer. No-op after Close.
func (s *Session) EmitPartial(text string, confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.partials <- speech.Transcript{Text: text, Confidence: confidence}
}

// EmitFinal pushes a final transcript to the consumer. No-op after Close.
func (s *Session) EmitFinal(text string, confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.finals <- speech.Transcript{Text: text, IsFinal: true, Confidence: confidence}
}

// EmitError pushes a recognizer error to the consumer. No-op after Close.
func (s *Session) EmitError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.errs <- err
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return speech.ErrSessionClosed
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Chunk: cp})
	return s.SendAudioErr
}

// Partials returns the partial transcript channel.
func (s *Session) Partials() <-chan speech.Transcript { return s.partials }

// Finals returns the final transcript channel.
func (s *Session) Finals() <-chan speech.Transcript { return s.finals }

// Errors returns the error channel.
func (s *Session) Errors() <-chan error { return s.errs }

// SetPhraseHints records the call and returns SetPhraseHintsErr.
func (s *Session) SetPhraseHints(hints []speech.PhraseHint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]speech.PhraseHint, len(hints))
	copy(cp, hints)
	s.SetPhraseHintsCalls = append(s.SetPhraseHintsCalls, SetPhraseHintsCall{Hints: cp})
	return s.SetPhraseHintsErr
}

// Close records the call, closes the output channels, and returns CloseErr.
// Calling Close more than once is safe.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.partials)
	close(s.finals)
	close(s.errs)
	return s.CloseErr
}

// Closed reports whether Close has been called. Thread-safe.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// HintCount returns the number of SetPhraseHints calls. Thread-safe.
func (s *Session) HintCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SetPhraseHintsCalls)
}

// Compile-time interface assertion.
var _ speech.SessionHandle = (*Session)(nil)

// RequestCall records a single invocation of Permissions.Request.
type RequestCall struct {
	// Grant is the grant that was requested.
	Grant speech.Grant
}

// Permissions is a mock implementation of speech.Permissions.
type Permissions struct {
	mu sync.Mutex

	// Denied lists grants that should be refused. All others are granted.
	Denied []speech.Grant

	// RequestCalls records every call to Request.
	RequestCalls []RequestCall
}

// Request records the call and refuses grants listed in Denied.
func (p *Permissions) Request(_ context.Context, grant speech.Grant) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RequestCalls = append(p.RequestCalls, RequestCall{Grant: grant})
	for _, d := range p.Denied {
		if d == grant {
			return &speech.PermissionError{Grant: grant}
		}
	}
	return nil
}

// Compile-time interface assertion.
var _ speech.Permissions = (*Permissions)(nil)
