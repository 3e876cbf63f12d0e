package recog

import (
	"context"
	"encoding/binary"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stagecue/stagecue/pkg/speech"
	"github.com/stagecue/stagecue/pkg/speech/mock"
)

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// loudPCM returns a full-scale square wave buffer, well above any level
// threshold.
func loudPCM(samples int) []byte {
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(20000)))
	}
	return pcm
}

func fastConfig(provider speech.Provider) Config {
	return Config{
		Provider:     provider,
		RestartDelay: 5 * time.Millisecond,
		RetryBackoff: 10 * time.Millisecond,
	}
}

func TestRecognizer_PermissionDenialStaysIdle(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{}
	perms := &mock.Permissions{Denied: []speech.Grant{speech.GrantMicrophone}}

	cfg := fastConfig(provider)
	cfg.Permissions = perms
	r, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	err = r.Start(context.Background())
	if !errors.Is(err, speech.ErrPermissionDenied) {
		t.Fatalf("Start = %v, want ErrPermissionDenied", err)
	}
	if got := r.State(); got != StateIdle {
		t.Errorf("State = %v, want idle after denial", got)
	}
	if provider.StartStreamCount() != 0 {
		t.Error("StartStream must not be called when permissions are denied")
	}
}

func TestRecognizer_ConfigurationFailure(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{StartStreamErr: errors.New("audio format unsupported")}
	r, err := New(fastConfig(provider))
	if err != nil {
		t.Fatal(err)
	}

	err = r.Start(context.Background())
	if !errors.Is(err, ErrConfigurationFailed) {
		t.Fatalf("Start = %v, want ErrConfigurationFailed", err)
	}
	if got := r.State(); got != StateIdle {
		t.Errorf("State = %v, want idle after open failure", got)
	}
}

func TestRecognizer_DeliversTranscripts(t *testing.T) {
	t.Parallel()

	factory := &mock.SessionFactory{}
	got := make(chan speech.Transcript, 4)

	cfg := fastConfig(factory)
	cfg.OnTranscript = func(tr speech.Transcript) { got <- tr }
	r, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	if got := r.State(); got != StateListening {
		t.Fatalf("State = %v, want listening", got)
	}

	factory.SessionAt(0).EmitPartial("hey everybody", 0.9)
	factory.SessionAt(0).EmitFinal("hey everybody how is it going", 0.95)

	select {
	case tr := <-got:
		if tr.Text != "hey everybody" || tr.IsFinal {
			t.Errorf("first transcript = %+v, want the partial", tr)
		}
	case <-time.After(time.Second):
		t.Fatal("partial transcript not delivered")
	}
	select {
	case tr := <-got:
		if !tr.IsFinal {
			t.Errorf("second transcript = %+v, want the final", tr)
		}
	case <-time.After(time.Second):
		t.Fatal("final transcript not delivered")
	}
}

func TestRecognizer_NoiseErrorsDoNotRestart(t *testing.T) {
	t.Parallel()

	factory := &mock.SessionFactory{}
	r, err := New(fastConfig(factory))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	factory.SessionAt(0).EmitError(speech.ErrNoSpeech)
	factory.SessionAt(0).EmitError(speech.ErrTimeout)

	time.Sleep(50 * time.Millisecond)
	if n := factory.SessionCount(); n != 1 {
		t.Errorf("session count = %d, want 1 (noise must not restart)", n)
	}
	if got := r.State(); got != StateListening {
		t.Errorf("State = %v, want listening", got)
	}
}

func TestRecognizer_FatalErrorRestarts(t *testing.T) {
	t.Parallel()

	factory := &mock.SessionFactory{}
	r, err := New(fastConfig(factory))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	first := factory.SessionAt(0)
	first.EmitError(errors.New("recognizer exploded"))

	waitFor(t, 2*time.Second, func() bool { return factory.SessionCount() == 2 },
		"restart did not create a second session")
	if !first.Closed() {
		t.Error("old session must be closed before the replacement opens")
	}
	waitFor(t, 2*time.Second, func() bool { return r.State() == StateListening },
		"recognizer did not return to listening")
}

func TestRecognizer_FlushRecreatesSessionAndReappliesHints(t *testing.T) {
	t.Parallel()

	factory := &mock.SessionFactory{}
	r, err := New(fastConfig(factory))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	hints := []speech.PhraseHint{{Phrase: "thanks so much goodnight", Boost: 10}}
	r.SetPhraseHints(hints)

	r.FlushSession()
	waitFor(t, 2*time.Second, func() bool { return factory.SessionCount() == 2 },
		"flush did not recreate the session")
	waitFor(t, 2*time.Second, func() bool { return factory.SessionAt(1).HintCount() >= 1 },
		"hints were not reapplied to the fresh session")
}

func TestRecognizer_RestartIsolation(t *testing.T) {
	t.Parallel()

	// The first restart attempt fails and the retry backoff is long, so the
	// recognizer is pinned in Restarting for the rest of the test.
	factory := &mock.SessionFactory{Errs: []error{nil, errors.New("still broken")}}
	var delivered atomic.Int32

	cfg := fastConfig(factory)
	cfg.RetryBackoff = time.Minute
	cfg.OnTranscript = func(speech.Transcript) { delivered.Add(1) }
	r, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	factory.SessionAt(0).EmitError(errors.New("boom"))
	waitFor(t, 2*time.Second, func() bool { return r.State() == StateRestarting },
		"recognizer did not enter restarting")

	// Audio keeps flowing during recovery; it must be metered but silently
	// not forwarded, and no transcript may be delivered.
	reading := r.FeedAudio(loudPCM(256))
	if reading.Instant == 0 {
		t.Error("FeedAudio while restarting must still meter the buffer")
	}
	time.Sleep(30 * time.Millisecond)
	if n := delivered.Load(); n != 0 {
		t.Errorf("%d transcripts delivered while restarting, want 0", n)
	}

	// Stop must cancel the pending retry rather than letting it reactivate
	// a stopped recognizer.
	r.Stop()
	if got := r.State(); got != StateStopped {
		t.Errorf("State = %v, want stopped", got)
	}
	time.Sleep(30 * time.Millisecond)
	if n := factory.SessionCount(); n != 1 {
		t.Errorf("session count after stop = %d, want 1", n)
	}
}

func TestRecognizer_WatchdogForcesRestart(t *testing.T) {
	t.Parallel()

	factory := &mock.SessionFactory{}
	cfg := fastConfig(factory)
	cfg.Watchdog = true
	cfg.WatchdogAfter = 30 * time.Millisecond
	r, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	// Loud audio with no transcripts: stalled recognition.
	pcm := loudPCM(256)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && factory.SessionCount() < 2 {
		r.FeedAudio(pcm)
		time.Sleep(5 * time.Millisecond)
	}
	if n := factory.SessionCount(); n < 2 {
		t.Fatalf("watchdog did not force a restart (sessions = %d)", n)
	}
}

func TestRecognizer_SendsAudioWhileListening(t *testing.T) {
	t.Parallel()

	sess := mock.NewSession()
	provider := &mock.Provider{Session: sess}
	r, err := New(fastConfig(provider))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	// SendAudio happens synchronously inside FeedAudio.
	r.FeedAudio(loudPCM(64))
	if n := len(sess.SendAudioCalls); n != 1 {
		t.Errorf("forwarded %d audio buffers, want 1", n)
	}
}

func TestRecognizer_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	factory := &mock.SessionFactory{}
	r, err := New(fastConfig(factory))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	r.Stop()
	r.Stop()
	if got := r.State(); got != StateStopped {
		t.Errorf("State = %v, want stopped", got)
	}
	if !factory.SessionAt(0).Closed() {
		t.Error("session must be closed on stop")
	}
	if err := r.Start(context.Background()); !errors.Is(err, ErrNotIdle) {
		t.Errorf("Start after Stop = %v, want ErrNotIdle", err)
	}
}

func TestRecognizer_DegradedAdvisory(t *testing.T) {
	t.Parallel()

	// Every recreation fails, so the breaker trips and the advisory fires.
	errs := []error{nil}
	for i := 0; i < 16; i++ {
		errs = append(errs, errors.New("mic hardware gone"))
	}
	factory := &mock.SessionFactory{Errs: errs}

	advisories := make(chan string, 8)
	cfg := fastConfig(factory)
	cfg.RetryBackoff = 5 * time.Millisecond
	cfg.OnAdvisory = func(text string) { advisories <- text }
	r, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	factory.SessionAt(0).EmitError(errors.New("boom"))

	select {
	case text := <-advisories:
		if text != AdvisoryDegraded {
			t.Errorf("advisory = %q, want %q", text, AdvisoryDegraded)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("degraded advisory never fired")
	}
}
