package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/MikeSquared-Agency/medbot/internal/anthropic"
	"github.com/MikeSquared-Agency/medbot/internal/api"
	"github.com/MikeSquared-Agency/medbot/internal/config"
	"github.com/MikeSquared-Agency/medbot/internal/consultation"
	"github.com/MikeSquared-Agency/medbot/internal/hermes"
	"github.com/MikeSquared-Agency/medbot/internal/llm"
	"github.com/MikeSquared-Agency/medbot/internal/observability"
	"github.com/MikeSquared-Agency/medbot/internal/openai"
	"github.com/MikeSquared-Agency/medbot/internal/processor"
	"github.com/MikeSquared-Agency/medbot/internal/session"
	"github.com/MikeSquared-Agency/medbot/internal/slack"
	"github.com/MikeSquared-Agency/medbot/internal/store"
)

func main() {
	cfg := config.Load()
	closeLog := setupLogging(cfg.LogLevel, cfg.LogFile)
	defer closeLog()

	slog.Info("medbot starting", "port", cfg.Port, "provider", cfg.Provider)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	// Text generation backend
	var gen llm.Generator
	switch cfg.Provider {
	case config.ProviderOpenAI:
		gen = openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		slog.Info("openai client ready", "model", cfg.OpenAIModel)
	default:
		gen = anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		slog.Info("anthropic client ready", "model", cfg.AnthropicModel)
	}
	gen = metrics.InstrumentGenerator(cfg.Provider, gen)

	deps := processor.Deps{Metrics: metrics}

	// Database (optional, audit archive only)
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		deps.Store = db
		slog.Info("database connected")
	} else {
		slog.Warn("DATABASE_URL not set, turns will not be archived")
	}

	// NATS/Hermes (optional)
	var hermesClient *hermes.Client
	if cfg.NatsURL != "" {
		c, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		hermesClient = c
		defer hermesClient.Close()
		deps.Hermes = hermesClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	// Slack handoff (optional)
	if cfg.SlackEnabled() {
		deps.Slack = slack.NewPoster(cfg.SlackToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	} else {
		slog.Warn("slack not configured, running without clinician handoff")
	}

	proc := processor.New(deps, slog.Default())

	budgets := consultation.Budgets{
		Gathering:   cfg.GatheringTokens,
		Summary:     cfg.SummaryTokens,
		Advice:      cfg.AdviceTokens,
		Temperature: cfg.Temperature,
	}
	sessions := session.NewManager(cfg.SessionTTL, func(id string) *consultation.Session {
		return consultation.New(id, gen,
			consultation.WithBudgets(budgets),
			consultation.WithWindow(cfg.MemoryWindow),
			consultation.WithProvider(cfg.Provider),
			consultation.WithObserver(proc),
			consultation.WithLogger(slog.Default()),
		)
	})
	sessions.SetChangeHook(metrics.SetActiveSessions)
	sessions.SetEndHook(func(s *consultation.Session) { proc.Forget(s.ID()) })
	sessions.SetExpireHook(func(s *consultation.Session) {
		slog.Info("session expired", "session_id", s.ID(), "turns", s.TurnCount())
		proc.Forget(s.ID())
	})
	sessions.StartJanitor(ctx, time.Minute)
	proc.SetSessions(sessions)

	if hermesClient != nil {
		if err := hermesClient.Subscribe(hermes.SubjectTranscript, proc.HandleTranscript); err != nil {
			slog.Error("failed to subscribe to transcript events", "error", err)
			os.Exit(1)
		}
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, sessions, metrics, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	slog.Info("medbot ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	if hermesClient != nil {
		if err := hermesClient.Drain(); err != nil {
			slog.Warn("NATS drain failed", "error", err)
		}
	}
	proc.Wait()
	cancel()
	slog.Info("medbot stopped")
}

// setupLogging writes JSON logs to stdout, and also to a rotated file when
// logFile is set. The returned func closes the file.
func setupLogging(level, logFile string) func() {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if logFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closeFn = func() { _ = rotator.Close() }
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
	return closeFn
}
