package audio

import "sync"

// Default metering parameters. The smoothing factor weights the newest buffer;
// lower values produce a steadier reading.
const (
	defaultSmoothing  = 0.2
	defaultQuietLevel = 0.08
	defaultLoudLevel  = 0.92
)

// LevelReading is a point-in-time snapshot of a [LevelMeter].
type LevelReading struct {
	// Instant is the RMS level of the most recent buffer.
	Instant float64

	// Smoothed is the exponentially smoothed level across the stream so far.
	Smoothed float64

	// Peak is the highest instant level observed since the last Reset.
	Peak float64

	// TooQuiet reports whether the smoothed level sits below the quiet
	// threshold. Only meaningful once at least one buffer has been observed.
	TooQuiet bool

	// TooLoud reports whether the peak has exceeded the loud threshold,
	// indicating probable clipping at the microphone.
	TooLoud bool
}

// LevelMeter accumulates per-buffer RMS energy into a smoothed audio level.
// All methods are safe for concurrent use.
type LevelMeter struct {
	mu        sync.Mutex
	smoothing float64
	quiet     float64
	loud      float64

	instant  float64
	smoothed float64
	peak     float64
	observed bool
}

// LevelMeterConfig holds tuning knobs for a [LevelMeter]. Zero-value fields
// are replaced with defaults.
type LevelMeterConfig struct {
	// Smoothing is the exponential smoothing factor in (0,1] applied to each
	// new buffer. Default: 0.2.
	Smoothing float64

	// QuietLevel is the smoothed level below which the signal is flagged as
	// too quiet. Default: 0.08.
	QuietLevel float64

	// LoudLevel is the peak level above which the signal is flagged as too
	// loud. Default: 0.92.
	LoudLevel float64
}

// NewLevelMeter creates a [LevelMeter] with the supplied configuration.
func NewLevelMeter(cfg LevelMeterConfig) *LevelMeter {
	if cfg.Smoothing <= 0 || cfg.Smoothing > 1 {
		cfg.Smoothing = defaultSmoothing
	}
	if cfg.QuietLevel <= 0 {
		cfg.QuietLevel = defaultQuietLevel
	}
	if cfg.LoudLevel <= 0 {
		cfg.LoudLevel = defaultLoudLevel
	}
	return &LevelMeter{
		smoothing: cfg.Smoothing,
		quiet:     cfg.QuietLevel,
		loud:      cfg.LoudLevel,
	}
}

// Observe meters one PCM buffer and returns its instant RMS level in [0,1].
func (m *LevelMeter) Observe(pcm []byte) float64 {
	level := RMS(pcm)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.instant = level
	if !m.observed {
		m.smoothed = level
		m.observed = true
	} else {
		m.smoothed = m.smoothed*(1-m.smoothing) + level*m.smoothing
	}
	if level > m.peak {
		m.peak = level
	}
	return level
}

// Reading returns the current [LevelReading].
func (m *LevelMeter) Reading() LevelReading {
	m.mu.Lock()
	defer m.mu.Unlock()

	return LevelReading{
		Instant:  m.instant,
		Smoothed: m.smoothed,
		Peak:     m.peak,
		TooQuiet: m.observed && m.smoothed < m.quiet,
		TooLoud:  m.peak > m.loud,
	}
}

// Reset clears all accumulated state. Use when a recognition session restarts
// so that stale peaks from the previous segment do not carry over.
func (m *LevelMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.instant = 0
	m.smoothed = 0
	m.peak = 0
	m.observed = false
}
