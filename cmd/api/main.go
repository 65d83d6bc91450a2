package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baharkarakas/ledgerq/internal/api"
	"github.com/baharkarakas/ledgerq/internal/auth"
	"github.com/baharkarakas/ledgerq/internal/config"
	"github.com/baharkarakas/ledgerq/internal/db"
	"github.com/baharkarakas/ledgerq/internal/logger"
	"github.com/baharkarakas/ledgerq/internal/metrics"
	"github.com/baharkarakas/ledgerq/internal/queue"
	"github.com/baharkarakas/ledgerq/internal/repository/postgres"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, "api")
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

	repos := postgres.NewRepositories(pool)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, 24*time.Hour)

	metrics.Init()
	r := api.NewRouter(api.Deps{
		Accounts: repos.Accounts,
		Ledger:   repos.Ledger,
		Queue:    q,
		Tokens:   tokens,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
