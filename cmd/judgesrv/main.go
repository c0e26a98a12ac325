// Command judgesrv runs the HTTP API and the worker pool for the
// submission pipeline in a single process, started and stopped
// together as background goroutines.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/klpod221/kode-judge/internal/api"
	"github.com/klpod221/kode-judge/internal/catalog"
	"github.com/klpod221/kode-judge/internal/config"
	"github.com/klpod221/kode-judge/internal/queue"
	"github.com/klpod221/kode-judge/internal/rendezvous"
	"github.com/klpod221/kode-judge/internal/sandbox"
	"github.com/klpod221/kode-judge/internal/service"
	"github.com/klpod221/kode-judge/internal/store"
	"github.com/klpod221/kode-judge/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := logrus.New()
	logger.SetLevel(cfg.GetLogLevel())
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cat, err := catalog.Load(cfg.CatalogSeedPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load language catalog")
	}

	pg, err := store.Open(cfg.Postgres.DSN())
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to postgres")
	}
	defer pg.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 10*time.Second)
	if err := pg.Migrate(migrateCtx); err != nil {
		cancelMigrate()
		logger.WithError(err).Fatal("failed to apply schema")
	}
	cancelMigrate()

	q, err := queue.Connect(cfg.Redis.Addr(), cfg.Redis.QueueName(), cfg.Redis.WorkersKey(), cfg.Redis.FailedKey())
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	defer q.Close()

	rv := rendezvous.New()
	runner := sandbox.NewRunner(cfg.IsolatePath, logger.WithField("component", "sandbox"))

	svc := &service.Service{
		Store:      pg,
		Queue:      q,
		Catalog:    cat,
		Rendezvous: rv,
		Sandbox:    cfg.Sandbox,
		WaitMode:   cfg.WaitModeTimeout,
	}

	pool := &worker.Pool{
		Concurrency: cfg.WorkerConcurrency,
		Store:       pg,
		Queue:       q,
		Catalog:     cat,
		Runner:      runner,
		Rendezvous:  rv,
		Logger:      logger.WithField("component", "worker"),
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workersDone := make(chan struct{})
	go func() {
		pool.Run(workerCtx)
		close(workersDone)
	}()

	health := &api.HealthChecker{
		Ping:  pg.PingContext,
		Queue: q,
	}
	handler := api.NewHandler(svc, cat, health, logger, cfg.Redis.QueueName())
	router := api.NewRouter(handler, logger, 10<<20, cfg.WaitModeTimeout)

	httpServer := &http.Server{
		Addr:              cfg.BindAddress,
		Handler:           router,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       cfg.WaitModeTimeout + 20*time.Second,
		IdleTimeout:        60 * time.Second,
		ReadHeaderTimeout:  5 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.BindAddress).Info("starting judge server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("server forced to shutdown")
	}
	<-workersDone
	logger.Info("server stopped")
}
