package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"tgreddit/internal/bot"
	"tgreddit/internal/classifier"
	"tgreddit/internal/config"
	"tgreddit/internal/delivery"
	"tgreddit/internal/fetcher"
	"tgreddit/internal/media"
	"tgreddit/internal/reddit"
	"tgreddit/internal/scheduler"
	"tgreddit/internal/server"
	"tgreddit/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath, storage.Options{
		OverwriteSubscriptions: cfg.OverwriteSubscriptions,
	})
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	cls, err := classifier.New(cfg.VideoHosts)
	if err != nil {
		log.Error("create classifier", "error", err)
		os.Exit(1)
	}

	client := reddit.New(reddit.Options{
		BaseURL:   cfg.Reddit.BaseURL,
		UserAgent: cfg.Reddit.UserAgent,
		Timeout:   cfg.Reddit.Timeout,
		CacheTTL:  cfg.Reddit.CacheTTL,
	}, log)
	posts := fetcher.New(client, cls, log)

	b, err := bot.New(cfg.TelegramBotToken, store, posts, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	dispatcher := delivery.New(b,
		media.NewYtDlp(cfg.Downloads.YtDlpPath, cfg.Downloads.Timeout, log),
		media.NewHTTPDownloader(cfg.Reddit.UserAgent, cfg.Downloads.Timeout),
		cfg.LinksBaseURL,
		log,
	)
	b.SetDispatcher(dispatcher)

	sched := scheduler.New(store, posts, dispatcher, scheduler.Options{
		Interval:        cfg.CheckInterval,
		SkipInitialSend: cfg.SkipInitialSend,
		DeliveryTimeout: cfg.DeliveryTimeout,
		Defaults:        cfg.ListingDefaults(),
	}, log)

	sup := suture.New("tgreddit", suture.Spec{
		EventHook: (&sutureslog.Handler{Logger: log}).MustHook(),
		Timeout:   cfg.ShutdownTimeout,
	})
	sup.Add(sched)
	sup.Add(b)
	if cfg.MetricsAddr != "" {
		sup.Add(server.New(cfg.MetricsAddr, store, log))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("shutting down, waiting for in-flight deliveries", "signal", sig.String())
		cancel()
		sig = <-sigCh
		log.Warn("forced exit", "signal", sig.String())
		os.Exit(1)
	}()

	log.Info("starting bot", "check_interval", cfg.CheckInterval)

	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("supervisor stopped", "error", err)
	}
	if unstopped, err := sup.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		log.Warn("services did not stop in time", "count", len(unstopped))
	}

	log.Info("bot stopped")
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
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
