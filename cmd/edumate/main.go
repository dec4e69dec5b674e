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

	"edumate/internal/assistant"
	"edumate/internal/bot"
	"edumate/internal/config"
	"edumate/internal/database"
	"edumate/internal/extract"
	"edumate/internal/httpapi"
	"edumate/internal/llm"
	"edumate/internal/preset"
	"edumate/internal/scheduler"
	"edumate/internal/summarizer"
)

const (
	httpReadHeaderTimeout = 10 * time.Second
	httpShutdownTimeout   = 30 * time.Second
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.ErrorContext(ctx, "Failed to load config",
			"error", err)

		return
	}

	db, err := database.New(ctx, cfg.DBPath, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize db",
			"error", err,
			"dbPath", cfg.DBPath)

		return
	}
	defer func() {
		if err = db.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close db",
				"error", err,
				"dbPath", cfg.DBPath)
		}
	}()
	log.InfoContext(ctx, "DB is initialized",
		"dbPath", cfg.DBPath)

	svc, err := initAssistant(ctx, cfg, db, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize assistant",
			"error", err,
			"chunkSize", cfg.ChunkSize)

		return
	}

	sched := scheduler.New(ctx, db, cfg.HistoryRetention, log)

	if err = sched.Start(); err != nil {
		log.ErrorContext(ctx, "Failed to start scheduler",
			"error", err,
			"spec", scheduler.HourlyPruneSpec,
			"timezone", time.FixedZone(scheduler.Timezone, scheduler.TimezoneOffsetSeconds).String())

		return
	}
	defer sched.Stop()
	log.InfoContext(ctx, "Scheduler is started",
		"spec", scheduler.HourlyPruneSpec,
		"retention", cfg.HistoryRetention.String())

	if cfg.AdminToken == "" {
		log.WarnContext(ctx, "ADMIN_TOKEN is missing so settings and memories API is disabled",
			"envVar", "ADMIN_TOKEN")
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.New(svc, cfg.HTTP(), log).Handler(),
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}

	go func() {
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log.ErrorContext(ctx, "HTTP server failed",
				"error", serveErr,
				"addr", cfg.HTTPAddr)
			cancel()
		}
	}()
	log.InfoContext(ctx, "HTTP server is started",
		"addr", cfg.HTTPAddr)

	var botInst *bot.Bot
	if cfg.TelegramToken != "" {
		botInst, err = bot.New(cfg.TelegramToken, svc, cfg.AllowedUsers, log)
		if err != nil {
			log.ErrorContext(ctx, "Failed to initialize bot",
				"error", err,
				"allowedUsersCount", len(cfg.AllowedUsers))

			return
		}
		log.InfoContext(ctx, "Bot is initialized",
			"allowedUsersCount", len(cfg.AllowedUsers))

		go botInst.Start(ctx)
		log.InfoContext(ctx, "Bot is started")
	} else {
		log.WarnContext(ctx, "TELEGRAM_TOKEN is missing so bot is disabled",
			"envVar", "TELEGRAM_TOKEN")
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-c:
		log.InfoContext(ctx, "Shutdown signal is received",
			"signal", sig.String())
	case <-ctx.Done():
	}
	cancel()

	log.InfoContext(ctx, "Exiting...",
		"uptimeSeconds", time.Since(start).Seconds())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer shutdownCancel()

	if err = server.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(shutdownCtx, "Failed to shut down HTTP server",
			"error", err)
	}
	log.InfoContext(shutdownCtx, "HTTP server is stopped",
		"uptimeSeconds", time.Since(start).Seconds())

	if botInst != nil {
		botInst.Stop()
		log.InfoContext(shutdownCtx, "Bot is stopped",
			"uptimeSeconds", time.Since(start).Seconds())
	}
}

func initAssistant(
	ctx context.Context,
	cfg config.Config,
	db *database.Database,
	log *slog.Logger,
) (*assistant.Service, error) {
	envCreds := cfg.Credentials()
	if !llm.Credentials(envCreds).Complete() {
		log.WarnContext(ctx, "LLM_BASE_URL or LLM_API_KEY is missing so saved settings will be used",
			"envVars", []string{"LLM_BASE_URL", "LLM_API_KEY"})
	}

	client := llm.NewOpenAIClient(llm.ChainCredentials{envCreds, db}, cfg.OpenAI(), log)

	s, err := summarizer.New(client, log,
		summarizer.WithChunkSize(cfg.ChunkSize),
		summarizer.WithCallTimeout(cfg.LLMCallTimeout))
	if err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "Summarizer is initialized",
		"model", cfg.LLMModel,
		"chunkSize", cfg.ChunkSize,
		"callTimeout", cfg.LLMCallTimeout.String())

	return assistant.New(s, client, extract.New(log), preset.Default(), db, cfg.Assistant(), log), nil
}
