package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tgsforge/tgsforge/internal/bot"
	"github.com/tgsforge/tgsforge/internal/config"
	"github.com/tgsforge/tgsforge/internal/converter"
	"github.com/tgsforge/tgsforge/internal/i18n"
	"github.com/tgsforge/tgsforge/internal/moderation"
	"github.com/tgsforge/tgsforge/internal/telegram"
	"github.com/tgsforge/tgsforge/internal/web"
)

// Set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

var buildInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "tgsforge",
		Name:      "build_info",
		Help:      "Build information.",
	},
	[]string{"version", "commit"},
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	healthcheck := flag.Bool("healthcheck", false, "probe the local health endpoint and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tgsforge %s (%s)\n", version, commit)
		return
	}

	// .env is optional, real deployments set env vars directly.
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	if *healthcheck {
		os.Exit(runHealthcheck(cfg.Server.ListenPort))
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	buildInfo.WithLabelValues(version, commit).Set(1)
	logger.Info("Starting tgsforge", "version", version, "commit", commit)

	if err := run(logger, cfg); err != nil {
		logger.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadDefault()
	}
	return config.Load(path)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func runHealthcheck(port string) int {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "healthcheck returned %d\n", resp.StatusCode)
		return 1
	}
	return 0
}

func run(logger *slog.Logger, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, err := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.ProxyURL)
	if err != nil {
		return fmt.Errorf("failed to create telegram client: %w", err)
	}

	conv, err := converter.New(logger, converter.Options{
		Command:  cfg.Converter.Command,
		FPS:      cfg.Converter.FPS,
		Width:    cfg.Converter.Width,
		Height:   cfg.Converter.Height,
		Optimize: cfg.Converter.Optimize,
		Sanitize: cfg.Converter.Sanitize,
	})
	if err != nil {
		return fmt.Errorf("failed to set up converter: %w", err)
	}

	translator, err := i18n.NewTranslator(cfg.Bot.Language)
	if err != nil {
		return fmt.Errorf("failed to load locales: %w", err)
	}

	store := moderation.NewStore(cfg.Bot.OwnerID)
	downloader := telegram.NewHTTPFileDownloader(api, telegram.DefaultAPIBaseURL)
	b := bot.New(logger, cfg, api, downloader, conv, store, translator)

	server := web.NewServer(logger, cfg.Server.ListenPort)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Long polling and webhooks are mutually exclusive, clear any leftover
	// webhook before polling.
	if err := api.SetWebhook(ctx, telegram.SetWebhookRequest{URL: ""}); err != nil {
		logger.Warn("Failed to clear webhook", "error", err)
	}
	if err := b.SetupCommands(ctx); err != nil {
		logger.Warn("Failed to set bot commands", "error", err)
	}

	logger.Info("Starting long polling")
	pollErr := make(chan error, 1)
	go func() {
		pollErr <- pollUpdates(ctx, logger, api, b)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case err := <-pollErr:
		if err != nil {
			return fmt.Errorf("polling failed: %w", err)
		}
	}

	b.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", "error", err)
	}

	logger.Info("Shutdown complete")
	return nil
}

func pollUpdates(ctx context.Context, logger *slog.Logger, api telegram.BotAPI, b *bot.Bot) error {
	offset := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := api.GetUpdates(ctx, telegram.GetUpdatesRequest{
			Offset:         offset,
			Timeout:        50,
			AllowedUpdates: []string{"message"},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("Failed to get updates, retrying", "error", err)
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			b.ProcessUpdateAsync(ctx, update)
		}
	}
}
