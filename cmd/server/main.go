// main wires the orchestration core: document store backend, repositories,
// risk gate, scheduler loop, sync validator, and the HTTP surface.
// Business logic lives in the internal service packages.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"arcpay/internal/collab"
	"arcpay/internal/docstore"
	"arcpay/internal/gate"
	"arcpay/internal/ledger"
	"arcpay/internal/notify"
	"arcpay/internal/platform/config"
	"arcpay/internal/platform/logger"
	"arcpay/internal/platform/metrics"
	platformredis "arcpay/internal/platform/redis"
	"arcpay/internal/ports"
	"arcpay/internal/recipients"
	"arcpay/internal/risklog"
	"arcpay/internal/scheduler"
	"arcpay/internal/syncvalidate"
	httpapi "arcpay/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		log.Error("store init failed", "backend", cfg.Store, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	m := metrics.New(prometheus.DefaultRegisterer)
	payments := ledger.New(store)
	assessments := risklog.New(store)
	whitelist := recipients.New(store)

	notifier, closeNotifier := buildNotifier(cfg, log)
	defer closeNotifier()

	balances := collab.NewMemoryBalanceFeed()
	gateSvc := gate.New(
		payments, assessments, whitelist,
		collab.HeuristicScorer{}, collab.StaticVerifier{}, balances, notifier,
		gate.Policy{
			MediumThreshold: cfg.RiskMediumThreshold,
			HighThreshold:   cfg.RiskHighThreshold,
		},
		cfg.CollabTimeout, log, m,
	)
	schedulerSvc := scheduler.New(
		payments, balances, collab.NewEchoExecutor(0), notifier,
		scheduler.Options{
			LeaseTTL:    cfg.LeaseTTL,
			Timeout:     cfg.CollabTimeout,
			MaxAttempts: cfg.MaxAttempts,
			BackoffBase: cfg.BackoffBase,
			Workers:     cfg.TickWorkers,
		},
		log, m,
	)
	validator := syncvalidate.New(payments, assessments, notifier, log, m)

	handler := httpapi.NewHandler(gateSvc, schedulerSvc, validator, payments, collab.RegexClassifier{}, log)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go schedulerSvc.Loop(ctx, cfg.TickInterval)

	go func() {
		log.Info("starting arcpay core",
			"addr", cfg.Addr,
			"store", cfg.Store,
			"tick_interval", cfg.TickInterval,
			"worker_id", schedulerSvc.WorkerID(),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

func buildStore(ctx context.Context, cfg config.Config) (docstore.Store, func(), error) {
	switch cfg.Store {
	case config.StoreRedis:
		client, err := platformredis.New(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return docstore.NewRedisStore(client.Client), func() { client.Close() }, nil
	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		store, err := docstore.NewPostgresStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, func() { db.Close() }, nil
	default:
		store, err := docstore.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func buildNotifier(cfg config.Config, log *slog.Logger) (ports.Notifier, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		return notify.NewLogNotifier(log), func() {}
	}
	kafkaNotifier, err := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	if err != nil {
		log.Warn("kafka notifier unavailable, falling back to log sink", "error", err)
		return notify.NewLogNotifier(log), func() {}
	}
	return kafkaNotifier, func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := kafkaNotifier.Close(flushCtx); err != nil {
			log.Warn("kafka notifier close failed", "error", err)
		}
	}
}
