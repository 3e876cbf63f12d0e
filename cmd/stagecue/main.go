// Command stagecue runs the voice-triggered cue card engine for a configured
// setlist: it listens to the performer, advances cue cards when exit phrases
// are spoken, and prints a session report on shutdown.
//
// Audio input depends on the configured speech provider. With "whispercpp",
// raw little-endian int16 PCM is read from stdin (pipe a capture tool such
// as arecord or sox into it). With "remote", audio is captured on the
// companion device and only transcripts arrive over the websocket feed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/stagecue/stagecue/internal/analytics"
	"github.com/stagecue/stagecue/internal/config"
	"github.com/stagecue/stagecue/internal/observe"
	"github.com/stagecue/stagecue/internal/stage"
	"github.com/stagecue/stagecue/pkg/speech"
	"github.com/stagecue/stagecue/pkg/speech/remote"
	"github.com/stagecue/stagecue/pkg/speech/whispercpp"
)

// audioChunkBytes is the stdin read size: 100ms of 16kHz mono int16 PCM.
const audioChunkBytes = 3200

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	modeFlag := flag.String("mode", "", "override session mode: stage or rehearsal")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "stagecue: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "stagecue: %v\n", err)
		}
		return 1
	}
	if *modeFlag != "" {
		cfg.Session.Mode = config.Mode(*modeFlag)
		if !cfg.Session.Mode.IsValid() {
			fmt.Fprintf(os.Stderr, "stagecue: -mode %q is invalid; valid values: stage, rehearsal\n", *modeFlag)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("stagecue starting",
		"config", *configPath,
		"mode", cfg.Session.Mode,
		"provider", cfg.Speech.Provider,
		"cards", len(cfg.Setlist.Blocks),
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Speech provider ───────────────────────────────────────────────────────
	provider, err := buildSpeechProvider(cfg)
	if err != nil {
		slog.Error("failed to build speech provider", "err", err)
		return 1
	}

	// ── Session ───────────────────────────────────────────────────────────────
	mode := stage.ModeStage
	if cfg.Session.Mode == config.ModeRehearsal {
		mode = stage.ModeRehearsal
	}
	session, err := stage.NewSession(stage.Config{
		Blocks:    cfg.Blocks(),
		Overrides: cfg.Overrides(),
		Mode:      mode,
		Provider:  provider,
		Stream: speech.StreamConfig{
			SampleRate: cfg.Speech.SampleRate,
			Channels:   cfg.Speech.Channels,
			Language:   cfg.Speech.Language,
		},
		AnchorThreshold:  cfg.Matching.AnchorThreshold,
		ExitThreshold:    cfg.Matching.ExitThreshold,
		Debounce:         time.Duration(cfg.Matching.DebounceMs) * time.Millisecond,
		PhoneticMatching: cfg.Matching.Phonetic,
		Metrics:          metrics,
	})
	if err != nil {
		slog.Error("failed to build session", "err", err)
		return 1
	}

	if err := session.Start(ctx); err != nil {
		slog.Error("failed to start session", "err", err)
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)

	// ── Metrics endpoint ──────────────────────────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}

		g.Go(func() error {
			slog.Info("metrics endpoint listening", "addr", cfg.Server.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// ── Audio input ───────────────────────────────────────────────────────────
	if cfg.Speech.Provider == "whispercpp" {
		g.Go(func() error { return feedStdinAudio(gctx, session) })
	}

	slog.Info("session live, press Ctrl+C to end the set")
	<-gctx.Done()

	report := session.Stop()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
	}

	printReport(os.Stdout, report)
	slog.Info("goodbye")
	return 0
}

// buildSpeechProvider constructs the configured speech provider.
func buildSpeechProvider(cfg *config.Config) (speech.Provider, error) {
	switch cfg.Speech.Provider {
	case "whispercpp":
		var opts []whispercpp.Option
		if cfg.Speech.Language != "" {
			opts = append(opts, whispercpp.WithLanguage(cfg.Speech.Language))
		}
		if cfg.Speech.SampleRate > 0 {
			opts = append(opts, whispercpp.WithSampleRate(cfg.Speech.SampleRate))
		}
		return whispercpp.New(cfg.Speech.ModelPath, opts...)

	case "remote":
		var opts []remote.Option
		if cfg.Speech.AuthToken != "" {
			opts = append(opts, remote.WithAuthToken(cfg.Speech.AuthToken))
		}
		return remote.New(cfg.Speech.URL, opts...)

	default:
		return nil, fmt.Errorf("unknown speech provider %q", cfg.Speech.Provider)
	}
}

// feedStdinAudio pumps raw PCM from stdin into the session until EOF or
// cancellation.
func feedStdinAudio(ctx context.Context, session *stage.Session) error {
	buf := make([]byte, audioChunkBytes)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := os.Stdin.Read(buf)
		if n > 0 {
			session.FeedAudio(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			slog.Info("audio input ended")
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading audio from stdin: %w", err)
		}
	}
}

// printReport renders the end-of-session summary.
func printReport(w io.Writer, r analytics.Report) {
	fmt.Fprintf(w, "\nSession report\n")
	fmt.Fprintf(w, "  duration:     %s\n", r.Duration.Round(time.Second))
	fmt.Fprintf(w, "  transitions:  %d total, %d automatic, %d manual\n",
		r.TotalTransitions, r.AutomaticTransitions, r.ManualTransitions)
	if r.AutomaticTransitions > 0 {
		fmt.Fprintf(w, "  confidence:   %.2f average\n", r.AverageConfidence)
	}
	fmt.Fprintf(w, "  audio level:  %.2f average, %.2f peak\n", r.AverageLevel, r.PeakLevel)
	if r.RecognitionErrors > 0 || r.Restarts > 0 {
		fmt.Fprintf(w, "  recovery:     %d errors, %d restarts\n", r.RecognitionErrors, r.Restarts)
	}
	if len(r.ProblemCards) > 0 {
		fmt.Fprintf(w, "  problem cards:\n")
		for _, c := range r.ProblemCards {
			fmt.Fprintf(w, "    - %s (%d manual advances, %.2f avg confidence)\n",
				c.CardID, c.ManualAdvances, c.AverageConfidence())
		}
	}
	for _, rec := range r.Recommendations {
		fmt.Fprintf(w, "  tip: %s\n", rec)
	}
}

// newLogger builds the process-wide structured logger.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
