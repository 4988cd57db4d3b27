package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/rpsmatch/internal/config"
	"github.com/park285/rpsmatch/internal/httpapi"
	"github.com/park285/rpsmatch/internal/jobs"
	"github.com/park285/rpsmatch/internal/match"
	"github.com/park285/rpsmatch/internal/metrics"
	"github.com/park285/rpsmatch/internal/msgcat"
	"github.com/park285/rpsmatch/internal/obslog"
	"github.com/park285/rpsmatch/internal/store"
	"github.com/park285/rpsmatch/internal/store/memstore"
	"github.com/park285/rpsmatch/internal/store/pgstore"
	"github.com/park285/rpsmatch/internal/store/redisstore"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		log.Fatalf("dotenv error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	if err := run(); err != nil {
		obslog.L().Error("server_exit", zap.Error(err))
		obslog.Sync()
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			obslog.L().Warn("store_close_error", zap.Error(err))
		}
	}()

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("message catalog: %w", err)
	}

	var rec *metrics.Recorder
	opts := []match.Option{}
	if cfg.MetricsEnabled {
		rec = metrics.NewRecorder()
		opts = append(opts, match.WithHooks(rec))
	}
	svc := match.NewService(st, opts...)

	if rec != nil {
		sched, err := jobs.Start(ctx, svc, rec, cfg.GaugeRefresh)
		if err != nil {
			return err
		}
		defer func() { _ = sched.Shutdown() }()
	}

	app := httpapi.New(httpapi.Deps{
		Service:        svc,
		Catalog:        cat,
		Metrics:        rec,
		Backend:        string(cfg.StoreBackend),
		AllowedOrigins: cfg.AllowedOrigins,
	})

	errCh := make(chan error, 1)
	go func() {
		obslog.L().Info("server_start",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("backend", string(cfg.StoreBackend)),
			zap.Bool("metrics", rec != nil),
		)
		errCh <- app.Listen(cfg.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	obslog.L().Info("server_shutdown", zap.Duration("timeout", cfg.ShutdownTimeout))
	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.AppConfig) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		st, err := redisstore.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		return st, nil
	case config.BackendPostgres:
		if cfg.DBAutoMigrate {
			mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := pgstore.Migrate(mctx, cfg.DatabaseURL)
			cancel()
			if err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		st, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		return st, nil
	case config.BackendMemory:
		return memstore.New(), nil
	default:
		return nil, errors.New("unknown store backend " + string(cfg.StoreBackend))
	}
}
