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

	"callflow-platform/internal/auth"
	"callflow-platform/internal/config"
	"callflow-platform/internal/dedup"
	"callflow-platform/internal/dtmf"
	"callflow-platform/internal/hints"
	"callflow-platform/internal/metrics"
	"callflow-platform/internal/notify"
	"callflow-platform/internal/reconcile"
	"callflow-platform/internal/reporting"
	"callflow-platform/internal/session"
	"callflow-platform/pkg/logger"
	"callflow-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional env file for local runs; real deployments inject env directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	metrics.Register()

	// Dedup window: Redis when configured, otherwise process-local.
	var window dedup.Window
	if addr := cfg.RedisAddr(); addr != "" {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: addr})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		window = dedup.NewRedisWindow(rdb, cfg.Dedup.Window)
	} else {
		window = dedup.NewMemoryWindow(cfg.Dedup.Window)
		log.Info("redis not configured, using in-process dedup window")
	}

	sessions := session.NewPostgresRepo(db)
	notifications := notify.NewPostgresRepo(db)

	channel := notify.NewLogChannel(log, func() string { return uuid.NewString() })
	queue := notify.NewQueue(notifications, channel, notify.Options{
		DrainInterval: cfg.Dispatch.DrainInterval,
		RetryInterval: cfg.Dispatch.RetryInterval,
		BatchLimit:    cfg.Dispatch.BatchLimit,
		SendDelay:     cfg.Dispatch.SendDelay,
	}, log)
	queue.Start(rootCtx)
	defer queue.Stop()

	input := dtmf.NewEngine()
	detector := hints.NewDetector(sessions, queue, log)
	reconciler := reconcile.NewService(sessions, window, input, detector, queue,
		reconcile.Options{DedupBucket: cfg.Dedup.Bucket}, log)
	reports := reporting.NewService(sessions)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		AuthMW:     auth.RequireAccessToken(authManager),
		DB:         db,
		Reconciler: reconciler,
		Input:      input,
		Hints:      detector,
		Queue:      queue,
		Reporting:  reports,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
