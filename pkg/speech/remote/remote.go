// Package remote implements speech.Provider backed by a companion capture
// app streaming recognition results over WebSocket.
//
// In this deployment the phone owns the microphone and the OS speech engine;
// it pushes partial and final transcripts (plus recognizer errors) as JSON
// messages to the engine over a single WebSocket connection. Audio never
// crosses the wire, so SendAudio is not supported. Phrase hints are
// supported: they are forwarded to the capture app as a hints message so the
// OS recognizer can bias towards the current cue card's phrases.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/stagecue/stagecue/pkg/speech"
)

// Option is a functional option for configuring a [Provider].
type Option func(*Provider)

// WithAuthToken sets a Bearer token sent in the Authorization header of the
// WebSocket handshake.
func WithAuthToken(token string) Option {
	return func(p *Provider) { p.authToken = token }
}

// WithDialTimeout bounds the WebSocket handshake. Defaults to 10s.
func WithDialTimeout(d time.Duration) Option {
	return func(p *Provider) { p.dialTimeout = d }
}

// Provider implements speech.Provider by connecting to a companion capture
// app's transcript feed.
type Provider struct {
	url         string
	authToken   string
	dialTimeout time.Duration
}

// Compile-time interface assertion.
var _ speech.Provider = (*Provider)(nil)

// New creates a Provider that connects to the capture feed at url
// (e.g., "ws://192.168.1.20:7612/feed"). url must be non-empty.
func New(url string, opts ...Option) (*Provider, error) {
	if url == "" {
		return nil, errors.New("remote: url must not be empty")
	}
	p := &Provider{
		url:         url,
		dialTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream dials the capture feed and begins relaying its messages.
// cfg.Language and cfg.Hints are forwarded in the opening configure message;
// the audio format fields are ignored because capture happens on the phone.
func (p *Provider) StartStream(ctx context.Context, cfg speech.StreamConfig) (speech.SessionHandle, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()

	headers := http.Header{}
	if p.authToken != "" {
		headers.Set("Authorization", "Bearer "+p.authToken)
	}

	conn, _, err := websocket.Dial(dialCtx, p.url, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("remote: dial %s: %w", p.url, err)
	}

	sess := &session{
		conn:     conn,
		partials: make(chan speech.Transcript, 64),
		finals:   make(chan speech.Transcript, 64),
		errs:     make(chan error, 16),
		done:     make(chan struct{}),
	}

	if err := sess.writeJSON(ctx, configureMessage{
		Type:     "configure",
		Language: cfg.Language,
		Hints:    hintPhrases(cfg.Hints),
	}); err != nil {
		conn.Close(websocket.StatusInternalError, "configure failed")
		return nil, fmt.Errorf("remote: send configure: %w", err)
	}

	sess.wg.Add(1)
	go sess.readLoop(ctx)

	return sess, nil
}

// ---- wire format ----

// feedMessage is the JSON structure pushed by the capture app.
type feedMessage struct {
	// Type is one of "partial", "final", or "error".
	Type string `json:"type"`

	// Text is the transcript text for partial/final messages.
	Text string `json:"text"`

	// Confidence is the recognizer confidence in [0,1], when reported.
	Confidence float64 `json:"confidence"`

	// ElapsedMs marks the utterance start relative to capture start.
	ElapsedMs int64 `json:"elapsed_ms"`

	// Code classifies error messages: "no_speech", "timeout", or a
	// platform-specific string for everything else.
	Code string `json:"code"`

	// Message is the human-readable error description.
	Message string `json:"message"`
}

// configureMessage is sent to the capture app on session open.
type configureMessage struct {
	Type     string   `json:"type"`
	Language string   `json:"language,omitempty"`
	Hints    []string `json:"hints,omitempty"`
}

// hintsMessage replaces the capture app's active phrase hints.
type hintsMessage struct {
	Type  string   `json:"type"`
	Hints []string `json:"hints"`
}

// hintPhrases flattens PhraseHints to their phrase strings; the capture app
// applies its platform's own boost scale.
func hintPhrases(hints []speech.PhraseHint) []string {
	if len(hints) == 0 {
		return nil
	}
	out := make([]string, 0, len(hints))
	for _, h := range hints {
		if h.Phrase != "" {
			out = append(out, h.Phrase)
		}
	}
	return out
}

// ---- session ----

// session is a live capture-feed session. It implements speech.SessionHandle.
type session struct {
	conn     *websocket.Conn
	partials chan speech.Transcript
	finals   chan speech.Transcript
	errs     chan error

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio is not supported: audio is captured on the phone.
func (s *session) SendAudio(_ []byte) error {
	return fmt.Errorf("remote: audio is captured by the companion app: %w", speech.ErrNotSupported)
}

// Partials returns the channel of interim transcripts.
func (s *session) Partials() <-chan speech.Transcript { return s.partials }

// Finals returns the channel of final transcripts.
func (s *session) Finals() <-chan speech.Transcript { return s.finals }

// Errors returns the channel of recognizer errors relayed from the capture app.
func (s *session) Errors() <-chan error { return s.errs }

// SetPhraseHints forwards the new hint list to the capture app.
func (s *session) SetPhraseHints(hints []speech.PhraseHint) error {
	select {
	case <-s.done:
		return speech.ErrSessionClosed
	default:
	}
	return s.writeJSON(context.Background(), hintsMessage{
		Type:  "hints",
		Hints: hintPhrases(hints),
	})
}

// Close terminates the session cleanly.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.wg.Wait()
	})
	return nil
}

// writeJSON marshals v and writes it as a text message.
func (s *session) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("remote: marshal message: %w", err)
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// readLoop receives JSON messages from the capture app and dispatches them to
// the transcript and error channels.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)
	defer close(s.errs)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			s.dispatchReadErr(err)
			return
		}

		var m feedMessage
		if err := json.Unmarshal(msg, &m); err != nil {
			continue
		}

		switch m.Type {
		case "partial", "final":
			t := speech.Transcript{
				Text:       m.Text,
				IsFinal:    m.Type == "final",
				Confidence: m.Confidence,
				Timestamp:  time.Duration(m.ElapsedMs) * time.Millisecond,
			}
			out := s.partials
			if t.IsFinal {
				out = s.finals
			}
			select {
			case out <- t:
			case <-s.done:
			}

		case "error":
			select {
			case s.errs <- classifyFeedError(m):
			case <-s.done:
			}
		}
	}
}

// dispatchReadErr surfaces a connection-level read failure unless the
// connection ended normally (session close or a clean peer shutdown).
func (s *session) dispatchReadErr(err error) {
	select {
	case <-s.done:
		return
	default:
	}

	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return
	}

	select {
	case s.errs <- fmt.Errorf("remote: feed connection lost: %w", err):
	default:
	}
}

// classifyFeedError maps a capture-app error message onto the speech error
// taxonomy so the session manager can decide whether to restart.
func classifyFeedError(m feedMessage) error {
	switch m.Code {
	case "no_speech":
		return speech.ErrNoSpeech
	case "timeout":
		return speech.ErrTimeout
	default:
		return fmt.Errorf("remote: recognizer error %q: %s", m.Code, m.Message)
	}
}

// Compile-time interface assertion.
var _ speech.SessionHandle = (*session)(nil)
