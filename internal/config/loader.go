package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviders lists the recognised speech provider names.
var ValidProviders = []string{"whispercpp", "remote"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Speech provider
	switch {
	case cfg.Speech.Provider == "":
		errs = append(errs, errors.New("speech.provider is required"))
	case !slices.Contains(ValidProviders, cfg.Speech.Provider):
		errs = append(errs, fmt.Errorf("speech.provider %q is invalid; valid values: %s",
			cfg.Speech.Provider, strings.Join(ValidProviders, ", ")))
	case cfg.Speech.Provider == "whispercpp" && cfg.Speech.ModelPath == "":
		errs = append(errs, errors.New("speech.model_path is required when provider is whispercpp"))
	case cfg.Speech.Provider == "remote" && cfg.Speech.URL == "":
		errs = append(errs, errors.New("speech.url is required when provider is remote"))
	}
	if cfg.Speech.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("speech.sample_rate %d must not be negative", cfg.Speech.SampleRate))
	}
	if cfg.Speech.Channels < 0 || cfg.Speech.Channels > 2 {
		errs = append(errs, fmt.Errorf("speech.channels %d is out of range [0, 2]", cfg.Speech.Channels))
	}

	// Matching thresholds
	if t := cfg.Matching.AnchorThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("matching.anchor_threshold %.2f is out of range [0, 1]", t))
	}
	if t := cfg.Matching.ExitThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("matching.exit_threshold %.2f is out of range [0, 1]", t))
	}
	if cfg.Matching.DebounceMs < 0 {
		errs = append(errs, fmt.Errorf("matching.debounce_ms %d must not be negative", cfg.Matching.DebounceMs))
	}

	// Session
	if cfg.Session.Mode != "" && !cfg.Session.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("session.mode %q is invalid; valid values: stage, rehearsal", cfg.Session.Mode))
	}

	// Setlist
	if len(cfg.Setlist.Blocks) == 0 {
		errs = append(errs, errors.New("setlist.blocks must contain at least one block"))
	}
	idsSeen := make(map[string]int, len(cfg.Setlist.Blocks))
	for i, b := range cfg.Setlist.Blocks {
		prefix := fmt.Sprintf("setlist.blocks[%d]", i)
		if b.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
			continue
		}
		if prev, ok := idsSeen[b.ID]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of setlist.blocks[%d]", prefix, b.ID, prev))
		}
		idsSeen[b.ID] = i
	}
	for id := range cfg.Setlist.Overrides {
		if _, ok := idsSeen[id]; !ok {
			errs = append(errs, fmt.Errorf("setlist.overrides[%q] does not match any block id", id))
		}
	}

	return errors.Join(errs...)
}
