package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BuzzLyutic/notebook-tasks/internal/aggregate"
	"github.com/BuzzLyutic/notebook-tasks/internal/config"
	"github.com/BuzzLyutic/notebook-tasks/internal/handler"
	"github.com/BuzzLyutic/notebook-tasks/internal/logger"
	"github.com/BuzzLyutic/notebook-tasks/internal/metrics"
	"github.com/BuzzLyutic/notebook-tasks/internal/paging"
	"github.com/BuzzLyutic/notebook-tasks/internal/prefs"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo/memory"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo/postgres"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo/sqlite"
	"github.com/BuzzLyutic/notebook-tasks/internal/service"
	"github.com/BuzzLyutic/notebook-tasks/internal/worker"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Подключаем логгер
	logger, err := logger.New(cfg.LogDevelopment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Server stopped succsessfully!")
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close() // Запланированное закрытие хранилища
	logger.Info("Store opened", zap.String("driver", cfg.StoreDriver))

	prefStore, err := prefs.OpenFile(cfg.PrefsPath)
	if err != nil {
		return err
	}
	state, err := prefs.Open(prefStore, prefs.WithLogger(logger))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	engine := paging.NewEngine(store, paging.WithLogger(logger), paging.WithMetrics(m))
	counter := aggregate.NewCounter(store, aggregate.WithLogger(logger), aggregate.WithMetrics(m))
	tasks := service.NewTaskService(store, store)
	notebooks := service.NewNotebookService(store)

	r := handler.NewRouter(handler.Handlers{
		Tasks:     handler.NewTaskHandler(tasks, engine, state, logger),
		Counts:    handler.NewCountHandler(counter, state, logger),
		Filter:    handler.NewFilterHandler(state, logger),
		Notebooks: handler.NewNotebookHandler(notebooks, logger),
	}, m, reg)

	srv := &http.Server{ // Создаем сервер
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	pool := worker.NewPool(store, worker.LogScheduler{Logger: logger}, logger,
		cfg.WorkerCount, cfg.ReminderInterval, worker.WithMetrics(m))
	pool.Start(ctx)
	defer pool.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return engine.Follow(gctx, state.Subscribe(gctx)) })
	g.Go(func() error { // Запуск сервера и обработка ошибок
		logger.Info("Server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.DatabaseURL, postgres.WithLogger(logger))
	case config.DriverMemory:
		return memory.New(), nil
	default:
		return sqlite.Open(ctx, cfg.SQLitePath, sqlite.WithLogger(logger))
	}
}
