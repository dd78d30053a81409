package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sjawhar/interview-ai/internal/archive"
	"github.com/sjawhar/interview-ai/internal/audio"
	"github.com/sjawhar/interview-ai/internal/config"
	"github.com/sjawhar/interview-ai/internal/events"
	"github.com/sjawhar/interview-ai/internal/interview"
	"github.com/sjawhar/interview-ai/internal/llm"
	"github.com/sjawhar/interview-ai/internal/logging"
	"github.com/sjawhar/interview-ai/internal/metrics"
	"github.com/sjawhar/interview-ai/internal/registry"
	"github.com/sjawhar/interview-ai/internal/server"
	"github.com/sjawhar/interview-ai/internal/storage"
	"github.com/sjawhar/interview-ai/internal/suggest"
	"github.com/sjawhar/interview-ai/internal/transcribe"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "interview-ai",
		Short:         "Interview AI backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newTranscribeCmd(&configPath))
	root.AddCommand(newMigrateCmd(&configPath))
	return root
}

// loadConfig reads the config and installs the global logger.
func loadConfig(path string) (config.Config, zerolog.Logger, error) {
	cfg, warnings, err := config.Load(path)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger := logging.WithComponent("main")
	for _, w := range warnings {
		logger.Warn().Msg(w)
	}
	return cfg, logger, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("storage init: %w", err)
	}
	defer func() { _ = store.Close() }()

	m := metrics.New(prometheus.NewRegistry())

	streaming, batch, closeSpeech, err := buildTranscribers(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSpeech()

	publisher := events.New(events.Config{Brokers: cfg.Events.KafkaBrokers, Topic: cfg.Events.KafkaTopic}, m)
	defer func() { _ = publisher.Close() }()

	deps := server.Deps{
		Store:       store,
		Registry:    registry.New(m),
		Transcriber: streaming,
		Batch:       batch,
		Generator:   buildGenerator(cfg, m, logger),
		Archiver:    archive.New(cfg.ArchiveDir, buildUploader(ctx, cfg, logger)),
		Publisher:   publisher,
		Metrics:     m,
	}
	if dir := cfg.AudioDir; dir != "" {
		deps.NewRecorder = func() interview.Recorder { return audio.NewRecorder(dir) }
	}

	handler, err := server.Handler(server.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		Interview:      interviewConfig(cfg),
	}, deps)
	if err != nil {
		return fmt.Errorf("build http handler: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func interviewConfig(cfg config.Config) interview.Config {
	return interview.Config{
		Transcription:      transcriptionConfig(cfg),
		RecentResponses:    cfg.Suggestion.RecentResponses,
		TranscriptionRetry: interview.DefaultTranscriptionRetry,
		DrainTimeout:       interview.DefaultDrainTimeout,
	}
}

func transcriptionConfig(cfg config.Config) transcribe.Config {
	t := cfg.Transcription
	return transcribe.Config{
		Model:          t.Model,
		LanguageCode:   t.LanguageCode,
		SampleRate:     t.SampleRate,
		Punctuate:      t.Punctuate,
		WordOffsets:    t.WordOffsets,
		InterimResults: true,
	}
}

// buildTranscribers picks the streaming and batch speech backends. The stub
// serves both only when no real provider is configured.
func buildTranscribers(ctx context.Context, cfg config.Config, logger zerolog.Logger) (transcribe.Transcriber, transcribe.BatchTranscriber, func(), error) {
	stub := transcribe.NewStub()
	noop := func() {}

	switch cfg.Transcription.Provider {
	case "google":
		g, err := transcribe.NewGoogle(ctx, cfg.SpeechCredentialsFile)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("google speech init: %w", err)
		}
		logger.Info().Str("provider", "google").Msg("transcription backend ready")
		return g, g, func() { _ = g.Close() }, nil
	case "deepgram":
		if cfg.DeepgramAPIKey == "" {
			break
		}
		batch, err := transcribe.NewDeepgramBatch(cfg.DeepgramAPIKey, "")
		if err != nil {
			return nil, nil, noop, fmt.Errorf("deepgram batch init: %w", err)
		}
		logger.Info().Str("provider", "deepgram").Str("model", cfg.Transcription.Model).Msg("transcription backend ready")
		return transcribe.NewDeepgram(cfg.DeepgramAPIKey), batch, noop, nil
	}
	logger.Info().Str("provider", "stub").Msg("transcription backend ready")
	return stub, stub, noop, nil
}

func buildGenerator(cfg config.Config, m *metrics.Metrics, logger zerolog.Logger) suggest.Generator {
	provider, model, err := llm.ParseModel(cfg.Suggestion.Model)
	if err != nil {
		return suggest.Stub{}
	}
	key := cfg.APIKeyFor(provider)
	if key == "" {
		return suggest.Stub{}
	}
	client, err := llm.NewClient(provider, key, model)
	if err != nil {
		logger.Warn().Err(err).Str("provider", provider).Msg("llm client unavailable, using stub generator")
		return suggest.Stub{}
	}
	logger.Info().Str("provider", provider).Str("model", model).Msg("suggestion backend ready")
	return suggest.New(client, cfg.ParsedSuggestionTimeout(), m)
}

// buildUploader returns nil (local export only) unless a Drive folder is set.
func buildUploader(ctx context.Context, cfg config.Config, logger zerolog.Logger) archive.Uploader {
	if cfg.GDriveFolderID == "" {
		return nil
	}
	credPath := cfg.GoogleCredentialsFile
	if credPath == "" {
		credPath = cfg.SpeechCredentialsFile
	}
	uploader, err := archive.NewDriveUploader(ctx, credPath, cfg.GDriveFolderID)
	if err != nil {
		logger.Warn().Err(err).Msg("gdrive upload disabled")
		return nil
	}
	return uploader
}

func newTranscribeCmd(configPath *string) *cobra.Command {
	var (
		language   string
		sampleRate int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "transcribe <file.wav|file.raw>",
		Short: "Transcribe an audio file with the batch backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			_, batch, closeSpeech, err := buildTranscribers(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeSpeech()

			tcfg := transcriptionConfig(cfg)
			if sampleRate > 0 {
				tcfg.SampleRate = sampleRate
			}
			pcm, rate, err := audio.ReadPCM(args[0], tcfg.SampleRate)
			if err != nil {
				return err
			}
			tcfg.SampleRate = rate
			if language != "" {
				if !transcribe.IsSupported(language) {
					return fmt.Errorf("unsupported language %q", language)
				}
				tcfg.LanguageCode = language
			}

			result, err := batch.Transcribe(ctx, pcm, tcfg)
			if err != nil {
				return fmt.Errorf("transcribe %s: %w", args[0], err)
			}
			return printResult(cmd.OutOrStdout(), result, asJSON)
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "language code, e.g. en-US (default from config)")
	cmd.Flags().IntVar(&sampleRate, "sample-rate", 0, "sample rate of raw PCM files (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func printResult(w io.Writer, result transcribe.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	_, err := fmt.Fprintf(w, "%s\n(confidence %.2f)\n", result.Transcript, result.Confidence)
	return err
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			store, err := storage.NewSQLiteStore(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("migrate %s: %w", cfg.DBPath, err)
			}
			if err := store.Close(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "schema ready at %s\n", cfg.DBPath)
			return nil
		},
	}
}
