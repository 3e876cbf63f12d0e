// Package resilience tracks recognizer restart health. The central type is
// [Breaker], a three-state breaker over the restart path: while restarts
// keep failing the breaker trips and the session surfaces a persistent
// "recognition degraded" advisory instead of burning retries, then probes
// its way back to healthy once the cool-off elapses.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrTripped is returned by [Breaker.Allow] while the breaker is tripped
// and the cool-off has not yet elapsed.
var ErrTripped = errors.New("restart breaker is tripped")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateHealthy is the normal state; restart attempts proceed freely.
	StateHealthy State = iota

	// StateTripped means restarts failed repeatedly. Attempts are rejected
	// with [ErrTripped] until the cool-off elapses.
	StateTripped

	// StateProbing is entered after the cool-off. A limited number of
	// restart attempts are let through; enough successes heal the breaker,
	// any failure re-trips it.
	StateProbing
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateTripped:
		return "tripped"
	case StateProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// Config holds tuning knobs for a [Breaker]. Zero values select defaults.
type Config struct {
	// Name labels log messages.
	Name string

	// TripAfter is the number of consecutive restart failures before the
	// breaker trips. Default: 4.
	TripAfter int

	// CoolOff is how long the breaker stays tripped before probing.
	// Default: 15s.
	CoolOff time.Duration

	// ProbeBudget is how many attempts are allowed while probing before
	// the breaker decides. Default: 2.
	ProbeBudget int

	// Now is the clock, injectable for tests. Nil means time.Now.
	Now func() time.Time
}

// Breaker gates restart attempts on the recent failure history.
type Breaker struct {
	name        string
	tripAfter   int
	coolOff     time.Duration
	probeBudget int
	now         func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probes      int
	probeFails  int
}

// NewBreaker returns a healthy [Breaker] with the supplied configuration.
func NewBreaker(cfg Config) *Breaker {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = 4
	}
	if cfg.CoolOff <= 0 {
		cfg.CoolOff = 15 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 2
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{
		name:        cfg.Name,
		tripAfter:   cfg.TripAfter,
		coolOff:     cfg.CoolOff,
		probeBudget: cfg.ProbeBudget,
		now:         cfg.Now,
		state:       StateHealthy,
	}
}

// Allow reports whether a restart attempt may proceed now. When it returns
// nil the caller must follow up with [Breaker.Succeeded] or
// [Breaker.Failed] for the attempt.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateTripped:
		if b.now().Sub(b.lastFailure) < b.coolOff {
			return ErrTripped
		}
		b.state = StateProbing
		b.probes = 0
		b.probeFails = 0
		slog.Info("restart breaker probing", "name", b.name)

	case StateProbing:
		if b.probes >= b.probeBudget {
			return ErrTripped
		}
	}

	if b.state == StateProbing {
		b.probes++
	}
	return nil
}

// Succeeded records a successful restart attempt.
func (b *Breaker) Succeeded() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateProbing {
		if b.probes-b.probeFails >= b.probeBudget {
			b.state = StateHealthy
			b.failures = 0
			b.probes = 0
			b.probeFails = 0
			slog.Info("restart breaker healthy after probes", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// Failed records a failed restart attempt. Any failure while probing
// re-trips immediately.
func (b *Breaker) Failed() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()

	if b.state == StateProbing {
		b.probeFails++
		b.state = StateTripped
		b.failures = b.tripAfter
		slog.Warn("restart breaker re-tripped from probing", "name", b.name)
		return
	}

	b.failures++
	if b.failures >= b.tripAfter {
		b.state = StateTripped
		slog.Warn("restart breaker tripped",
			"name", b.name,
			"consecutive_failures", b.failures)
	}
}

// State returns the current [State]. A tripped breaker whose cool-off has
// elapsed reports [StateProbing]; the actual transition happens on the next
// [Breaker.Allow] call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateTripped && b.now().Sub(b.lastFailure) >= b.coolOff {
		return StateProbing
	}
	return b.state
}

// Reset forces the breaker back to [StateHealthy], clearing all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateHealthy
	b.failures = 0
	b.probes = 0
	b.probeFails = 0
}
