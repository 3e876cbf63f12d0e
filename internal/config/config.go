// Package config provides the configuration schema and loader for the
// StageCue engine.
package config

import (
	"sort"

	"github.com/stagecue/stagecue/internal/cue"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Mode selects the session variant.
type Mode string

const (
	// ModeStage is the live performance variant.
	ModeStage Mode = "stage"

	// ModeRehearsal enables the stalled-recognition watchdog and verbose
	// feedback for practice runs.
	ModeRehearsal Mode = "rehearsal"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	return m == ModeStage || m == ModeRehearsal
}

// Config is the root configuration structure for StageCue.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Speech   SpeechConfig   `yaml:"speech"`
	Matching MatchingConfig `yaml:"matching"`
	Session  SessionConfig  `yaml:"session"`
	Setlist  SetlistConfig  `yaml:"setlist"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the metrics/health endpoint listens on
	// (e.g., ":8080"). Empty disables the HTTP listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// SpeechConfig selects and configures the speech-to-text provider.
type SpeechConfig struct {
	// Provider selects the recognizer implementation: "whispercpp" for
	// on-device transcription or "remote" for a companion-app capture feed.
	Provider string `yaml:"provider"`

	// ModelPath is the whisper.cpp model file. Required for "whispercpp".
	ModelPath string `yaml:"model_path"`

	// URL is the websocket endpoint of the capture feed. Required for
	// "remote".
	URL string `yaml:"url"`

	// AuthToken authenticates against the remote capture feed, if set.
	AuthToken string `yaml:"auth_token"`

	// Language is the BCP-47 recognition language (e.g., "en"). Empty lets
	// the provider auto-detect where supported.
	Language string `yaml:"language"`

	// SampleRate is the capture sample rate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the capture channel count. Default: 1.
	Channels int `yaml:"channels"`
}

// MatchingConfig holds the user's phrase matching sensitivity settings.
type MatchingConfig struct {
	// AnchorThreshold and ExitThreshold are confidences in [0,1] above
	// which a detection counts. Zero selects the engine defaults.
	AnchorThreshold float64 `yaml:"anchor_threshold"`
	ExitThreshold   float64 `yaml:"exit_threshold"`

	// DebounceMs is the post-trigger cooldown in milliseconds. Zero selects
	// the engine default.
	DebounceMs int `yaml:"debounce_ms"`

	// Phonetic relaxes word comparison for recognizers that mishear
	// individual words.
	Phonetic bool `yaml:"phonetic"`
}

// SessionConfig selects the session variant.
type SessionConfig struct {
	// Mode is "stage" or "rehearsal". Default: "stage".
	Mode Mode `yaml:"mode"`
}

// SetlistConfig is the performance script: ordered blocks plus optional
// per-block phrase overrides.
type SetlistConfig struct {
	Blocks    []BlockConfig             `yaml:"blocks"`
	Overrides map[string]OverrideConfig `yaml:"overrides"`
}

// BlockConfig is one script block of the setlist.
type BlockConfig struct {
	// ID is the block's stable identifier, unique within the setlist.
	ID string `yaml:"id"`

	// Text is the block's performance text.
	Text string `yaml:"text"`
}

// OverrideConfig customises the phrases extracted for one block. Empty
// fields fall back to the extracted defaults.
type OverrideConfig struct {
	Anchor string `yaml:"anchor"`
	Exit   string `yaml:"exit"`
}

// Blocks converts the setlist into the core's script block form, preserving
// order.
func (c *Config) Blocks() []cue.Block {
	blocks := make([]cue.Block, len(c.Setlist.Blocks))
	for i, b := range c.Setlist.Blocks {
		blocks[i] = cue.Block{ID: b.ID, Index: i, Text: b.Text}
	}
	return blocks
}

// Overrides converts the override map into the core's form. The returned
// map is nil when no overrides are configured.
func (c *Config) Overrides() map[string]cue.Override {
	if len(c.Setlist.Overrides) == 0 {
		return nil
	}
	out := make(map[string]cue.Override, len(c.Setlist.Overrides))
	for id, ov := range c.Setlist.Overrides {
		out[id] = cue.Override{Anchor: ov.Anchor, Exit: ov.Exit}
	}
	return out
}

// OverrideIDs returns the overridden block IDs in sorted order, for stable
// log output.
func (c *Config) OverrideIDs() []string {
	ids := make([]string, 0, len(c.Setlist.Overrides))
	for id := range c.Setlist.Overrides {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
