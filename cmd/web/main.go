package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"lookbook-ai/internal/config"
	"lookbook-ai/internal/gemini"
	"lookbook-ai/internal/httpclient"
	"lookbook-ai/internal/pipeline"
	"lookbook-ai/internal/preset"
	"lookbook-ai/internal/review"
	"lookbook-ai/internal/scenario"
	"lookbook-ai/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)

	catalog, err := loadCatalog(cfg.PresetsFile)
	if err != nil {
		logger.Error("preset catalog load failed", "err", err)
		os.Exit(1)
	}
	for _, rej := range catalog.Rejected() {
		logger.Warn("preset rejected", "preset", rej.ID, "reason", rej.Reason, "warnings", rej.Warnings)
	}

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
		UserAgent:  "lookbook-ai/web",
		Logger:     logger,
	})

	var judge scenario.Judge
	if cfg.JudgeEnabled() {
		judge = gemini.NewJudge(gemini.New(gemini.Options{
			APIKey:     cfg.GeminiAPIKey,
			BaseURL:    cfg.GeminiBaseURL,
			APIVersion: cfg.GeminiAPIVersion,
			Model:      cfg.JudgeModel,
			HTTPClient: httpClient,
			Logger:     logger,
		}))
	} else {
		logger.Warn("GEMINI_API_KEY not set, scenario selection uses the deterministic fallback")
	}

	selector := scenario.New(judge, scenario.Options{
		Budget:   cfg.SampleBudget,
		Timeout:  cfg.JudgeTimeout,
		CacheTTL: cfg.JudgeCacheTTL,
		Logger:   logger,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := telemetry.New(reg, logger)
	if err != nil {
		logger.Error("metrics init failed", "err", err)
		os.Exit(1)
	}
	sinks := []pipeline.Sink{metrics}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.ReviewEnabled() {
		tg, err := review.NewTelegram(review.TelegramOptions{
			Token:      cfg.TelegramToken,
			HTTPClient: httpClient,
			Logger:     logger,
		})
		if err != nil {
			logger.Error("telegram init failed", "err", err)
			os.Exit(1)
		}
		notifier := review.NewNotifier(tg, cfg.ReviewChatID, review.Options{Logger: logger})
		notifier.Start(ctx)
		defer notifier.Close()
		sinks = append(sinks, notifier)
		logger.Info("review notifications enabled", "bot", tg.Username(), "chat_id", cfg.ReviewChatID)
	}

	svc, err := pipeline.New(pipeline.Options{
		Catalog:       catalog,
		Selector:      selector,
		Sinks:         sinks,
		MaxConcurrent: cfg.MaxConcurrent,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("pipeline init failed", "err", err)
		os.Exit(1)
	}

	s := &server{svc: svc, logger: logger, gatherer: reg}
	srv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("web started", "addr", cfg.WebAddr, "catalog", catalog.Version(), "presets", catalog.Len(), "judge", cfg.JudgeEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
	logger.Info("shutting down")
}

func loadCatalog(path string) (*preset.Catalog, error) {
	if path == "" {
		return preset.Builtin()
	}
	return preset.LoadFile(path)
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}
