package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"go-feeds/config"
	"go-feeds/internal/handler"
	"go-feeds/internal/importer"
	"go-feeds/internal/scheduler"
	"go-feeds/internal/service"
	"go-feeds/internal/store"
	"go-feeds/internal/trigger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := cfg.LogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Server.Mode == gin.ReleaseMode {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// 初始化数据库
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return err
	}
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	items := store.NewItemStore(db)
	subs := store.NewSubscriptionStore(db)
	blobs := store.NewBlobStore(db)
	events := store.NewEventLog(db)

	// 初始化服务
	llmSvc := service.NewLLMService(db, &http.Client{Timeout: cfg.LLM.Timeout})
	if err := llmSvc.SeedDefaults(cfg.LLM.APIKey); err != nil {
		return err
	}
	fetcher := service.NewFetcher(cfg.Fetch.Timeout, cfg.Fetch.UserAgent)
	extractor := service.NewExtractor(cfg.Extractor.URL, cfg.Extractor.APIKey, cfg.Extractor.Timeout)
	// 字幕服务通常部署在内网,不走公网限制
	transcripts := service.NewTranscriptClient(cfg.Transcript.URL,
		service.NewFetcherWithClient(&http.Client{Timeout: cfg.Fetch.Timeout}, cfg.Fetch.UserAgent))
	feedSvc := service.NewFeedService(items, logger)
	subSvc := service.NewSubscriptionService(subs, logger)

	// 导入流水线
	dispatcher := importer.NewDispatcher(
		importer.NewWebsiteImporter(fetcher, extractor, llmSvc, blobs, items, logger),
		importer.NewYouTubeImporter(transcripts, blobs, items, logger),
		importer.NewComicImporter(fetcher, items, logger),
		events,
		logger,
	)
	retry := trigger.RetryPolicy{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		BaseDelay:    cfg.Retry.BaseDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		LeaseTimeout: cfg.Retry.LeaseTimeout,
	}
	runner := trigger.NewRunner(items, dispatcher, retry, logger)
	items.Observe(runner)
	if _, err := runner.Recover(context.Background()); err != nil {
		return err
	}

	// 启动定时任务
	sched := scheduler.NewScheduler(scheduler.NewIntervalEmitter(subs, items, logger), cfg.Cron.IntervalSchedule, logger)
	if err := sched.Start(); err != nil {
		return err
	}

	// 初始化Gin
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Server.Mode == gin.DebugMode {
		r.Use(gin.Logger())
	}

	// 注册路由
	h := handler.NewHandler(handler.Deps{
		Items:          service.NewItemService(items, subs),
		Subscriptions:  subSvc,
		Feeds:          feedSvc,
		Accounts:       service.NewAccountService(items, blobs, subs, logger),
		Settings:       service.NewSettingsService(db),
		LLM:            llmSvc,
		Status:         service.NewStatusService(items, subs, events),
		Blobs:          blobs,
		Reimporter:     runner,
		Push:           trigger.NewPushReceiver(subs, feedSvc, logger),
		Scheduler:      sched,
		HubVerifyToken: cfg.Server.HubVerifyToken,
		Logger:         logger,
	})
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			sched.Stop()
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	sched.Stop()
	if err := runner.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	return errors.Join(errs...)
}
