package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baharkarakas/ledgerq/internal/config"
	"github.com/baharkarakas/ledgerq/internal/db"
	"github.com/baharkarakas/ledgerq/internal/lock"
	"github.com/baharkarakas/ledgerq/internal/logger"
	"github.com/baharkarakas/ledgerq/internal/metrics"
	"github.com/baharkarakas/ledgerq/internal/queue"
	"github.com/baharkarakas/ledgerq/internal/repository/postgres"
	"github.com/baharkarakas/ledgerq/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, "worker")
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if os.Getenv("APP_MIGRATE") == "true" {
		if err := db.RunMigrations(ctx, pool); err != nil {
			log.Error("migrations", "err", err)
			os.Exit(1)
		}
	}

	q, err := queue.NewRabbit(cfg.RabbitURL, cfg.QueueName)
	if err != nil {
		log.Error("rabbitmq connect", "err", err)
		os.Exit(1)
	}
	defer q.Close()

	store := lock.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := store.Ping(ctx); err != nil {
		log.Error("redis connect", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	metrics.Init()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
		srv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		log.Info("metrics listening", "port", cfg.MetricsPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server", "err", err)
		}
	}()

	repos := postgres.NewRepositories(pool)
	locks := lock.NewManager(store, cfg.LockTTL, log)
	handlers := worker.NewHandlers(repos.Accounts, repos.Ledger, log)
	router := worker.NewRouter(handlers, log)
	loop := worker.NewLoop(worker.LoopConfig{
		QueueName:    cfg.QueueName,
		MaxAttempts:  cfg.MaxAttempts,
		PollInterval: cfg.PollInterval,
		Backoff:      cfg.Backoff,
	}, q, locks, router, log)

	if err := loop.Run(ctx); err != nil {
		log.Error("worker", "err", err)
		os.Exit(1)
	}
}
