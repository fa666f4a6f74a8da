package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"voice-assist/config"
	"voice-assist/internal/application"
	"voice-assist/internal/domain"
	"voice-assist/internal/infra/anthropic"
	"voice-assist/internal/infra/audio"
	"voice-assist/internal/infra/gemini"
	"voice-assist/internal/infra/openai"
	"voice-assist/internal/infra/pushover"
	"voice-assist/internal/infra/sqlite"
	"voice-assist/internal/infra/web"
	"voice-assist/internal/observe"
	"voice-assist/internal/resilience"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("assistant error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Metrics.Enabled {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
		if err != nil {
			return fmt.Errorf("initialising telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("telemetry shutdown", "error", err)
			}
		}()
	}
	metrics := observe.DefaultMetrics()

	generator, err := createGenerator(ctx, cfg.LLM, metrics, logger)
	if err != nil {
		return err
	}

	source, permission := createAudioSource(cfg.Audio, logger)
	if err := source.Start(ctx); err != nil {
		return fmt.Errorf("starting %s source: %w", source.Name(), err)
	}
	defer source.Stop()

	var stt application.Transcriber = &application.NoopTranscriber{}
	if cfg.STT.APIKey != "" {
		if cfg.STT.BaseURL != "" {
			stt = openai.NewWhisperClientWithURL(cfg.STT.APIKey, cfg.Speech.Language, cfg.STT.BaseURL)
		} else {
			stt = openai.NewWhisperClient(cfg.STT.APIKey, cfg.Speech.Language)
		}
	} else {
		logger.Warn("stt.api_key not set, speech input disabled; typed input still works")
	}

	var notifier application.Notifier = &application.NoopNotifier{}
	if cfg.Pushover.Enabled {
		notifier = pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey)
	}

	var (
		archive application.Archive
		history web.History
	)
	if cfg.Archive.Enabled {
		a, err := sqlite.Open(cfg.Archive.Path)
		if err != nil {
			return err
		}
		defer a.Close()
		archive, history = a, a
	}

	assistant := application.NewAssistant(
		audio.NewRecognizerFactory(source, stt, logger.With("component", "recognizer")),
		permission,
		generator,
		application.AssistantConfig{
			Language:           cfg.Speech.Language,
			Policy:             retryPolicy(cfg.Retry),
			MaxContextMessages: cfg.LLM.MaxContextMessages,
			Archive:            archive,
			Notifier:           notifier,
			Metrics:            metrics,
		},
		logger,
	)

	server := web.NewServer(assistant, web.Config{
		Addr:       cfg.Server.Addr,
		AuthToken:  cfg.Server.AuthToken,
		RateLimit:  cfg.Server.RateLimit,
		RateWindow: cfg.Server.RateWindow,
		History:    history,
		Metrics:    metrics,
		Logger:     logger.With("component", "web"),
	})

	logger.Info("starting voice assistant",
		"version", version,
		"audio_source", source.Name(),
		"language", cfg.Speech.Language,
		"llm", cfg.LLM.Providers(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return assistant.Run(gctx) })
	g.Go(func() error { return server.ListenAndServe(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// createGenerator builds the configured provider chain. With fallbacks the
// providers sit behind per-provider circuit breakers.
func createGenerator(ctx context.Context, cfg config.LLMConfig, metrics *observe.Metrics, logger *slog.Logger) (application.AnswerGenerator, error) {
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = application.DefaultSystemPrompt
	}

	names := cfg.Providers()
	gens := make([]application.AnswerGenerator, 0, len(names))
	for _, name := range names {
		var (
			gen application.AnswerGenerator
			err error
		)
		switch name {
		case "gemini":
			gen, err = gemini.NewClient(ctx, gemini.Config{
				APIKey:       cfg.Gemini.APIKey,
				Model:        cfg.Gemini.Model,
				BaseURL:      cfg.Gemini.BaseURL,
				SystemPrompt: prompt,
				Temperature:  cfg.Temperature,
				MaxTokens:    cfg.MaxTokens,
				Timeout:      cfg.Timeout,
			})
		case "openai":
			gen, err = openai.NewChatClient(openai.ChatConfig{
				APIKey:       cfg.OpenAI.APIKey,
				Model:        cfg.OpenAI.Model,
				BaseURL:      cfg.OpenAI.BaseURL,
				SystemPrompt: prompt,
				Temperature:  cfg.Temperature,
				MaxTokens:    cfg.MaxTokens,
				Timeout:      cfg.Timeout,
			})
		case "anthropic":
			gen = anthropic.NewClaudeClient(anthropic.Config{
				APIKey:       cfg.Anthropic.APIKey,
				Model:        cfg.Anthropic.Model,
				BaseURL:      cfg.Anthropic.BaseURL,
				SystemPrompt: prompt,
				Temperature:  cfg.Temperature,
				MaxTokens:    cfg.MaxTokens,
			})
		default:
			err = fmt.Errorf("unknown llm provider %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("creating %s generator: %w", name, err)
		}
		gens = append(gens, application.NewInstrumentedGenerator(gen, name, metrics))
	}

	if len(gens) == 1 {
		return gens[0], nil
	}

	failover := resilience.NewFailoverGenerator(names[0], gens[0], resilience.BreakerConfig{
		MaxFailures: cfg.Breaker.MaxFailures,
		Cooldown:    cfg.Breaker.Cooldown,
		Logger:      logger.With("component", "failover"),
	})
	for i := 1; i < len(gens); i++ {
		failover.Add(names[i], gens[i])
	}
	return failover, nil
}

func createAudioSource(cfg config.AudioConfig, logger *slog.Logger) (application.UtteranceSource, application.PermissionChecker) {
	switch cfg.Source {
	case "file":
		return audio.NewFileSource(cfg.FileDir), application.GrantedPermission{}
	default:
		mic := audio.NewMicrophoneSource(audio.MicrophoneConfig{
			SampleRate:       cfg.SampleRate,
			SilenceThreshold: int16(cfg.SilenceThreshold),
			CompleteSilence:  cfg.CompleteSilence,
			NoSpeechTimeout:  cfg.NoSpeechTimeout,
			MaxUtterance:     cfg.MaxUtterance,
		}, logger.With("component", "microphone"))
		return mic, mic
	}
}

// retryPolicy overlays configured delays and ceilings on the default policy.
func retryPolicy(cfg config.RetryConfig) application.RetryPolicy {
	policy := application.DefaultRetryPolicy()
	for name, o := range cfg.Rules {
		kind := domain.ErrorKind(name)
		rule := policy.Rule(kind)
		if o.Delay != nil {
			rule.Delay = *o.Delay
		}
		if o.MaxRestarts != nil {
			rule.MaxRestarts = *o.MaxRestarts
		}
		policy[kind] = rule
	}
	return policy
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
